// Package issuemsg turns issue types reported by the check backend into
// sentences for the error summary.
package issuemsg

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/pkg/render"
)

//go:embed messages.yaml
var defaultMessages []byte

// Message holds the templates for one issue type.
type Message struct {
	Singular string `yaml:"singular"`
	Plural   string `yaml:"plural"`
}

type catalogFile struct {
	Fallback     Message            `yaml:"fallback"`
	MissingField string             `yaml:"missing_field"`
	Messages     map[string]Message `yaml:"messages"`
}

// Catalog renders issue summaries. It is built once and shared; lookups
// are read-only after construction.
type Catalog struct {
	engine       *render.Engine
	fallback     Message
	missingField string
	messages     map[string]Message
}

// Default builds the catalog from the embedded message file.
func Default(engine *render.Engine) (*Catalog, error) {
	return Parse(engine, defaultMessages)
}

// Load builds the catalog from a YAML file. An empty path loads the
// embedded defaults.
func Load(engine *render.Engine, path string) (*Catalog, error) {
	if path == "" {
		return Default(engine)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read issue messages: %w", err)
	}
	return Parse(engine, data)
}

// Parse builds a catalog from YAML. Every template is compiled up front so
// a broken message fails at startup instead of on the results page.
func Parse(engine *render.Engine, data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse issue messages: %w", err)
	}
	if f.Fallback.Singular == "" || f.Fallback.Plural == "" {
		return nil, fmt.Errorf("parse issue messages: fallback singular and plural are required")
	}
	if f.MissingField == "" {
		return nil, fmt.Errorf("parse issue messages: missing_field is required")
	}

	c := &Catalog{
		engine:       engine,
		fallback:     f.Fallback,
		missingField: f.MissingField,
		messages:     make(map[string]Message, len(f.Messages)),
	}
	check := []string{f.Fallback.Singular, f.Fallback.Plural, f.MissingField}
	for issueType, m := range f.Messages {
		if m.Singular == "" {
			m.Singular = f.Fallback.Singular
		}
		if m.Plural == "" {
			m.Plural = f.Fallback.Plural
		}
		c.messages[strings.ToLower(issueType)] = m
		check = append(check, m.Singular, m.Plural)
	}
	for _, src := range check {
		if err := engine.Parse(src); err != nil {
			return nil, fmt.Errorf("parse issue messages: %q: %w", src, err)
		}
	}

	logger.Debug("issue message catalog loaded", "issue_types", len(c.messages))
	return c, nil
}

// Len is the number of issue types with their own messages.
func (c *Catalog) Len() int { return len(c.messages) }

// Lookup returns the templates for issueType and whether it is known.
func (c *Catalog) Lookup(issueType string) (Message, bool) {
	m, ok := c.messages[strings.ToLower(issueType)]
	if !ok {
		return c.fallback, false
	}
	return m, true
}

// IssueSummary renders the sentence for rows affected by issueType on field.
func (c *Catalog) IssueSummary(issueType, field string, rows int) string {
	m, _ := c.Lookup(issueType)
	src, kind := m.Plural, "plural"
	if rows == 1 {
		src, kind = m.Singular, "singular"
	}
	out, err := c.engine.Render("issue:"+strings.ToLower(issueType)+":"+kind, src, map[string]interface{}{
		"count": rows,
		"field": field,
	})
	if err != nil {
		return fmt.Sprintf("%d %s: %s", rows, field, issueType)
	}
	return out
}

// MissingField renders the sentence for a field absent from the source.
func (c *Catalog) MissingField(field string) string {
	out, err := c.engine.Render("issue:missing-field", c.missingField, map[string]interface{}{"field": field})
	if err != nil {
		return field + " column is missing"
	}
	return out
}
