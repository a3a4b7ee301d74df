package discogs

import (
	"strings"

	"github.com/samber/lo"
)

type Artist struct {
	Name string `json:"name"`
	Join string `json:"join"`
}

type Track struct {
	Position string   `json:"position"`
	Title    string   `json:"title"`
	Duration string   `json:"duration"`
	Artists  []Artist `json:"artists"`
}

type Image struct {
	URI   string `json:"uri"`
	Thumb string `json:"uri150"`
}

type Prices struct {
	Currency string
	Min      *float64
	Median   *float64
	Max      *float64
}

func (p Prices) Empty() bool {
	return nil == p.Min && nil == p.Median && nil == p.Max
}

// Release is the normalized, immutable record a fetch produces. Everything
// downstream (text export, video generation, captions) reads from it.
type Release struct {
	ID      int64
	Title   string
	Artists []Artist
	Year    int
	Country string
	Labels  []string
	Tracks  []Track
	Images  []Image
	Prices  Prices
}

func JoinArtists(artists []Artist) string {
	return strings.Join(lo.FilterMap(artists, func(a Artist, _ int) (string, bool) { return a.Name, a.Name != "" }), ", ")
}

// TrackArtists prefers track-level credits and falls back to the release
// artists, which is what Various-artists compilations need.
func (r *Release) TrackArtists(t Track) string {
	if len(t.Artists) > 0 {
		return JoinArtists(t.Artists)
	}
	if len(r.Artists) > 0 {
		return r.Artists[0].Name
	}
	return ""
}

var sideHeadings = map[string]struct{}{
	"that side":  {},
	"this side":  {},
	"logo side":  {},
	"info side":  {},
	"other side": {},
	"both sides": {},
	"this-side":  {},
	"that-side":  {},
	"side a":     {},
	"side b":     {},
}

func normalizeHeading(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// isHeading filters tracklist entries that are vinyl side headings rather
// than playable tracks. Items Discogs types as non-track are dropped
// upstream; this catches releases where a heading was entered as a plain
// untimed track.
func isHeading(typ, title, duration string) bool {
	if typ != "" && typ != "track" {
		return true
	}
	if duration != "" {
		return false
	}
	_, ok := sideHeadings[normalizeHeading(title)]
	return ok
}
