// Package lga is the catalog of Tasmanian local government areas the portal lists notices for.
//
// The portal identifies a council by an opaque code of the form LGA### (e.g. LGA003). The
// catalog does not know those codes, it only knows councils by name and a readable slug, so
// it is used to help an operator find a council, never to choose what is harvested.
package lga

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

type Council struct {
	// Slug is the catalog's own key, it is not a portal code.
	Slug string
	Name string
}

// Catalog is every Tasmanian council.
var Catalog = []Council{
	{Slug: "BREAK_ODAY", Name: "Break O'Day Council"},
	{Slug: "BRIGHTON", Name: "Brighton Council"},
	{Slug: "BURNIE", Name: "Burnie City Council"},
	{Slug: "CENTRAL_COAST", Name: "Central Coast Council"},
	{Slug: "CENTRAL_HIGHLANDS", Name: "Central Highlands Council"},
	{Slug: "CIRCULAR_HEAD", Name: "Circular Head Council"},
	{Slug: "CLARENCE", Name: "Clarence City Council"},
	{Slug: "DERWENT_VALLEY", Name: "Derwent Valley Council"},
	{Slug: "DEVONPORT", Name: "Devonport City Council"},
	{Slug: "DORSET", Name: "Dorset Council"},
	{Slug: "FLINDERS", Name: "Flinders Council"},
	{Slug: "GEORGE_TOWN", Name: "George Town Council"},
	{Slug: "GLAMORGAN_SPRING_BAY", Name: "Glamorgan Spring Bay Council"},
	{Slug: "GLENORCHY", Name: "Glenorchy City Council"},
	{Slug: "HOBART", Name: "Hobart City Council"},
	{Slug: "HUON_VALLEY", Name: "Huon Valley Council"},
	{Slug: "KENTISH", Name: "Kentish Council"},
	{Slug: "KING_ISLAND", Name: "King Island Council"},
	{Slug: "KINGBOROUGH", Name: "Kingborough Council"},
	{Slug: "LATROBE", Name: "Latrobe Council"},
	{Slug: "LAUNCESTON", Name: "City of Launceston"},
	{Slug: "MEANDER_VALLEY", Name: "Meander Valley Council"},
	{Slug: "NORTHERN_MIDLANDS", Name: "Northern Midlands Council"},
	{Slug: "SORELL", Name: "Sorell Council"},
	{Slug: "SOUTHERN_MIDLANDS", Name: "Southern Midlands Council"},
	{Slug: "TASMAN", Name: "Tasman Council"},
	{Slug: "WARATAH_WYNYARD", Name: "Waratah-Wynyard Council"},
	{Slug: "WEST_COAST", Name: "West Coast Council"},
	{Slug: "WEST_TAMAR", Name: "West Tamar Council"},
}

// Slugs returns the slug of every council in catalog order.
func Slugs() []string {
	slugs := make([]string, len(Catalog))
	for i, c := range Catalog {
		slugs[i] = c.Slug
	}
	return slugs
}

// IsPortalCode reports whether code has the shape of a portal jurisdiction code.
func IsPortalCode(code string) bool {
	digits, ok := strings.CutPrefix(code, "LGA")
	if !ok || len(digits) != 3 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Lookup finds a council by its exact slug, ignoring case.
func Lookup(slug string) (Council, bool) {
	for _, c := range Catalog {
		if strings.EqualFold(c.Slug, strings.TrimSpace(slug)) {
			return c, true
		}
	}
	return Council{}, false
}

type Match struct {
	Council    Council
	Similarity float64
}

// normalize reduces names and slugs to the same alphabet so "Hobart City Council",
// "hobart" and "HOBART" compare closely.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ", "'", "").Replace(s)
	for _, filler := range []string{" city council", " council", "city of "} {
		s = strings.ReplaceAll(s, filler, "")
	}
	return strings.Join(strings.Fields(s), " ")
}

// Resolve ranks the catalog by similarity to name, best first. An exact slug match is
// returned alone with a similarity of 1.
func Resolve(name string, limit int) []Match {
	if c, ok := Lookup(name); ok {
		return []Match{{Council: c, Similarity: 1}}
	}

	target := normalize(name)
	if target == "" {
		return nil
	}

	matches := make([]Match, 0, len(Catalog))
	for _, c := range Catalog {
		similarity := max(
			matchr.JaroWinkler(target, normalize(c.Name), false),
			matchr.JaroWinkler(target, normalize(c.Slug), false),
		)
		if similarity > 0 {
			matches = append(matches, Match{Council: c, Similarity: similarity})
		}
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
