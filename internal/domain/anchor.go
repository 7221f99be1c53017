package domain

import "strings"

// DefaultHref is the target reference of content units without one.
const DefaultHref = "#"

// Provenance tags describing where the content of an anchor comes from.
const (
	WhereText               = "text"
	WhereTextRaw            = "text::raw"
	WhereTextParent         = "text::parent"
	WhereTextHidden         = "text:none"
	WhereAttributePrefix    = "attribute::"
	WhereParentAttributePfx = "attribute::parent::"
)

// Anchor is a content unit extracted from a page: a target reference, the
// searchable text, and its provenance.
type Anchor struct {
	Href    string `json:"href"`
	Content string `json:"content"`
	Where   string `json:"where"`
}

// NewAnchor builds an anchor, defaulting a blank href to DefaultHref.
func NewAnchor(href, content, where string) Anchor {
	if strings.TrimSpace(href) == "" {
		href = DefaultHref
	}
	return Anchor{Href: href, Content: content, Where: where}
}

// Indexable reports whether the anchor carries both a reference and some text.
func (a Anchor) Indexable() bool {
	return strings.TrimSpace(a.Href) != "" && strings.TrimSpace(a.Content) != ""
}

// SearchHit is a scored anchor returned by the search engine.
type SearchHit struct {
	Href    string
	Content string
	Where   string
	Score   float64
	// Matches counts raw query term occurrences; only used for tie-breaking.
	Matches int
}
