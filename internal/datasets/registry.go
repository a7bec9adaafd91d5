// Package datasets is the registry of datasets the service can check.
package datasets

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Dataset describes one dataset users can check or submit.
type Dataset struct {
	Slug       string `yaml:"slug" json:"slug"`
	Name       string `yaml:"name" json:"name"`
	Collection string `yaml:"collection" json:"collection"`
	// RequiresGeometryType asks the user whether geometries are points or
	// polygons before uploading.
	RequiresGeometryType bool `yaml:"requires_geometry_type" json:"requiresGeometryType"`
}

// Registry looks up datasets by slug. It is immutable once built.
type Registry struct {
	bySlug map[string]Dataset
	order  []string
}

// NewRegistry builds a registry. Slugs must be unique and non-empty;
// a missing collection defaults to the slug.
func NewRegistry(list []Dataset) (*Registry, error) {
	r := &Registry{
		bySlug: make(map[string]Dataset, len(list)),
	}
	for _, d := range list {
		d.Slug = strings.TrimSpace(d.Slug)
		if d.Slug == "" {
			return nil, fmt.Errorf("dataset without slug")
		}
		if _, dup := r.bySlug[d.Slug]; dup {
			return nil, fmt.Errorf("duplicate dataset %q", d.Slug)
		}
		if d.Collection == "" {
			d.Collection = d.Slug
		}
		if d.Name == "" {
			d.Name = r.displayName(d.Slug)
		}
		r.bySlug[d.Slug] = d
		r.order = append(r.order, d.Slug)
	}
	return r, nil
}

// Get returns the dataset for slug.
func (r *Registry) Get(slug string) (Dataset, bool) {
	d, ok := r.bySlug[slug]
	return d, ok
}

// Name returns the display name for slug. Unknown slugs are title-cased
// with hyphens turned into spaces.
func (r *Registry) Name(slug string) string {
	if d, ok := r.bySlug[slug]; ok {
		return d.Name
	}
	return r.displayName(slug)
}

// RequiresGeometryType reports whether the journey must ask for the
// geometry type of slug.
func (r *Registry) RequiresGeometryType(slug string) bool {
	return r.bySlug[slug].RequiresGeometryType
}

// All returns datasets in configuration order.
func (r *Registry) All() []Dataset {
	out := make([]Dataset, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.bySlug[slug])
	}
	return out
}

// Sorted returns datasets ordered by display name, for select lists.
func (r *Registry) Sorted() []Dataset {
	out := r.All()
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Casers are stateful, so one is made per call.
func (r *Registry) displayName(slug string) string {
	return cases.Title(language.BritishEnglish).String(strings.ReplaceAll(slug, "-", " "))
}
