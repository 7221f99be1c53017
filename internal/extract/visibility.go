package extract

import (
	"strconv"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/net/html"
)

// hiddenClassFragments mark an element as not visually visible when any of
// them occurs inside its class attribute.
var hiddenClassFragments = []string{
	"hidden", "d-none", "sr-only", "visually-hidden", "invisible", "screen-reader",
}

// visibility decides whether an element is rendered, from its attributes and
// those of its ancestors. It is shared by concurrent requests.
type visibility struct {
	classes *ahocorasick.Matcher
}

func newVisibility() *visibility {
	return &visibility{classes: ahocorasick.NewStringMatcher(hiddenClassFragments)}
}

// hidden reports whether n or one of its ancestors is hidden.
func (v *visibility) hidden(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && v.hiddenElement(n) {
			return true
		}
	}
	return false
}

func (v *visibility) hiddenElement(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(strings.TrimSpace(attr.Val), "true") {
				return true
			}
		case "style":
			if hiddenStyle(attr.Val) {
				return true
			}
		case "class":
			if len(v.classes.MatchThreadSafe([]byte(strings.ToLower(attr.Val)))) > 0 {
				return true
			}
		}
	}
	return false
}

// hiddenStyle inspects inline style declarations.
func hiddenStyle(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important")))
		switch prop {
		case "display":
			if value == "none" {
				return true
			}
		case "visibility":
			if value == "hidden" || value == "collapse" {
				return true
			}
		case "opacity", "width", "height", "max-width", "max-height":
			if isZeroLength(value) {
				return true
			}
		}
	}
	return false
}

// isZeroLength reports whether a CSS number or length ("0", "0px", "0.0em", "0%") is zero.
func isZeroLength(value string) bool {
	num := strings.TrimRightFunc(value, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || r == '%'
	})
	if num == "" {
		return false
	}
	f, err := strconv.ParseFloat(num, 64)
	return err == nil && f == 0
}
