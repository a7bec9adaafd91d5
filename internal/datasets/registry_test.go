package datasets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]Dataset{
		{Slug: "tree", Name: "Tree", Collection: "tree-preservation-order", RequiresGeometryType: true},
		{Slug: "article-4-direction-area"},
		{Slug: "brownfield-land", Name: "Brownfield land"},
	})
	require.NoError(t, err)
	return r
}

func TestRegistryLookup(t *testing.T) {
	r := testRegistry(t)

	tree, ok := r.Get("tree")
	require.True(t, ok)
	assert.Equal(t, "tree-preservation-order", tree.Collection)
	assert.True(t, r.RequiresGeometryType("tree"))
	assert.False(t, r.RequiresGeometryType("brownfield-land"))
	assert.False(t, r.RequiresGeometryType("unknown"))

	a4, ok := r.Get("article-4-direction-area")
	require.True(t, ok)
	assert.Equal(t, "Article 4 Direction Area", a4.Name)
	assert.Equal(t, "article-4-direction-area", a4.Collection)

	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestRegistryNameFallback(t *testing.T) {
	r := testRegistry(t)
	assert.Equal(t, "Tree", r.Name("tree"))
	assert.Equal(t, "Conservation Area Document", r.Name("conservation-area-document"))
}

func TestRegistryOrder(t *testing.T) {
	r := testRegistry(t)

	var slugs []string
	for _, d := range r.All() {
		slugs = append(slugs, d.Slug)
	}
	assert.Equal(t, []string{"tree", "article-4-direction-area", "brownfield-land"}, slugs)

	slugs = slugs[:0]
	for _, d := range r.Sorted() {
		slugs = append(slugs, d.Slug)
	}
	assert.Equal(t, []string{"article-4-direction-area", "brownfield-land", "tree"}, slugs)
}

func TestRegistryRejectsBadConfig(t *testing.T) {
	_, err := NewRegistry([]Dataset{{Slug: " "}})
	assert.Error(t, err)

	_, err = NewRegistry([]Dataset{{Slug: "tree"}, {Slug: "tree"}})
	assert.Error(t, err)
}
