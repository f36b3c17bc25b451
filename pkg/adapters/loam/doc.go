// Package loam loads saga templates from a Loam document repository, so a
// directory of Markdown files with YAML front matter can act as a saga catalog.
package loam
