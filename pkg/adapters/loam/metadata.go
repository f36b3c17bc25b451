package loam

// TemplateMetadata is the front matter of a saga document.
// Steps and compensations stay untyped so the shorthand forms accepted by
// definition.Parse keep working.
type TemplateMetadata struct {
	Name           string           `json:"name" mapstructure:"name"`
	Description    string           `json:"description" mapstructure:"description"`
	CorrelationKey string           `json:"correlation_key" mapstructure:"correlation_key"`
	Parameters     map[string]any   `json:"parameters" mapstructure:"parameters"`
	Defaults       map[string]any   `json:"defaults" mapstructure:"defaults"`
	Steps          []any            `json:"steps" mapstructure:"steps"`
	Compensations  map[string]any   `json:"compensations" mapstructure:"compensations"`
	Events         []map[string]any `json:"events" mapstructure:"events"`
	StartOn        []map[string]any `json:"start_on" mapstructure:"start_on"`
}

// toMap rebuilds the generic document, leaving out empty sections.
func (m TemplateMetadata) toMap() map[string]any {
	doc := map[string]any{"name": m.Name}
	if m.Description != "" {
		doc["description"] = m.Description
	}
	if m.CorrelationKey != "" {
		doc["correlation_key"] = m.CorrelationKey
	}
	if len(m.Parameters) > 0 {
		doc["parameters"] = m.Parameters
	}
	if len(m.Defaults) > 0 {
		doc["defaults"] = m.Defaults
	}
	if len(m.Steps) > 0 {
		doc["steps"] = m.Steps
	}
	if len(m.Compensations) > 0 {
		doc["compensations"] = m.Compensations
	}
	if len(m.Events) > 0 {
		doc["events"] = toAnySlice(m.Events)
	}
	if len(m.StartOn) > 0 {
		doc["start_on"] = toAnySlice(m.StartOn)
	}
	return doc
}

func toAnySlice(items []map[string]any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
