package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/sagaflow/pkg/definition"
)

// Catalog reads saga templates from a Loam repository.
// Each document's front matter is a template; its body becomes the description
// when the front matter has none.
type Catalog struct {
	Repo *loam.TypedRepository[TemplateMetadata]
}

// New wraps an existing typed repository.
func New(repo *loam.TypedRepository[TemplateMetadata]) *Catalog {
	return &Catalog{Repo: repo}
}

// Open initializes a read-only, unversioned repository at dir.
func Open(dir string) (*Catalog, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithReadOnly(true),
		loam.WithVersioning(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[TemplateMetadata](repo)), nil
}

// Template loads a single template by document id.
func (c *Catalog) Template(ctx context.Context, id string) (*definition.Template, error) {
	doc, err := c.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loam get failed for %s: %w", id, err)
	}
	return build(doc.ID, doc.Data, doc.Content)
}

// Templates loads every document in the repository.
// Two documents declaring the same saga name are rejected.
func (c *Catalog) Templates(ctx context.Context) ([]*definition.Template, error) {
	docs, err := c.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	templates := make([]*definition.Template, 0, len(docs))
	for _, doc := range docs {
		t, err := build(doc.ID, doc.Data, doc.Content)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[t.Name]; ok {
			return nil, fmt.Errorf("collision detected: saga %q is defined in both %q and %q", t.Name, prev, doc.ID)
		}
		seen[t.Name] = doc.ID
		templates = append(templates, t)
	}
	return templates, nil
}

func build(docID string, meta TemplateMetadata, content string) (*definition.Template, error) {
	if meta.Name == "" {
		meta.Name = trimExtension(docID)
	}
	if meta.Description == "" {
		meta.Description = strings.TrimSpace(content)
	}
	t, err := definition.FromMap(meta.toMap())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", docID, err)
	}
	return t, nil
}

func trimExtension(id string) string {
	return strings.TrimSuffix(filepath.Base(id), filepath.Ext(id))
}
