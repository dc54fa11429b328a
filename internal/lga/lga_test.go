package lga

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	require.Len(t, Catalog, 29)

	seen := map[string]bool{}
	for _, c := range Catalog {
		require.False(t, seen[c.Slug], c.Slug)
		seen[c.Slug] = true
		require.NotEmpty(t, c.Name)
	}
	require.Equal(t, len(Catalog), len(Slugs()))
	require.Equal(t, "BREAK_ODAY", Slugs()[0])
}

func TestLookup(t *testing.T) {
	c, ok := Lookup(" hobart ")
	require.True(t, ok)
	require.Equal(t, "Hobart City Council", c.Name)

	_, ok = Lookup("SYDNEY")
	require.False(t, ok)
}

func TestResolve(t *testing.T) {
	matches := Resolve("HOBART", 3)
	require.Len(t, matches, 1)
	require.Equal(t, 1.0, matches[0].Similarity)

	matches = Resolve("Launceston City", 3)
	require.Len(t, matches, 3)
	require.Equal(t, "LAUNCESTON", matches[0].Council.Slug)
	require.GreaterOrEqual(t, matches[0].Similarity, matches[1].Similarity)

	matches = Resolve("Glenorchi", 1)
	require.Equal(t, "GLENORCHY", matches[0].Council.Slug)

	matches = Resolve("waratah wynyard", 0)
	require.Equal(t, "WARATAH_WYNYARD", matches[0].Council.Slug)

	require.Empty(t, Resolve("  ", 3))
}

func TestIsPortalCode(t *testing.T) {
	for _, code := range []string{"LGA003", "LGA120"} {
		require.True(t, IsPortalCode(code), code)
	}
	for _, code := range []string{"", "HOBART", "LGA3", "LGA0003", "lga003", "LGA00A"} {
		require.False(t, IsPortalCode(code), code)
	}
}
