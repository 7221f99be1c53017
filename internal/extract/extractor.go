// Package extract turns raw page content into the content units (anchors)
// indexed by the search engine. Every strategy implements Extractor so the
// matcher can chain them.
package extract

import (
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/TrasparenzAI/rule-service/internal/domain"
)

// Page is the input of an extraction: the page markup and, when known, its URL.
type Page struct {
	Content string
	URL     string
}

// Extractor produces content units from a page. Malformed or non-markup
// input yields an empty slice, not an error.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, page Page, allTags bool) ([]domain.Anchor, error)
}

// inline elements do not break words when their markup is stripped.
var inline = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Bdi: true, atom.Bdo: true,
	atom.Cite: true, atom.Code: true, atom.Em: true, atom.I: true, atom.Kbd: true,
	atom.Mark: true, atom.Q: true, atom.S: true, atom.Small: true, atom.Span: true,
	atom.Strong: true, atom.Sub: true, atom.Sup: true, atom.U: true, atom.Font: true,
}

// invisible elements never contribute text.
var invisible = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Head: true,
}

// collapse normalizes every whitespace run to a single space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// plainText strips the tags of a markup fragment, decodes its entities and
// normalizes whitespace.
func plainText(fragment string) string {
	var (
		b    strings.Builder
		skip int
	)
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapse(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			a := tagAtom(z)
			if invisible[a] {
				skip++
			}
			if !inline[a] {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			a := tagAtom(z)
			if invisible[a] && skip > 0 {
				skip--
			}
			if !inline[a] {
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func tagAtom(z *html.Tokenizer) atom.Atom {
	name, _ := z.TagName()
	return atom.Lookup(name)
}

// nodeText returns the visible text of n and its descendants, normalized.
func nodeText(n *html.Node) string {
	var b strings.Builder
	writeNodeText(&b, n)
	return collapse(b.String())
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if invisible[n.DataAtom] {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	block := n.Type == html.ElementNode && !inline[n.DataAtom]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}
	if block {
		b.WriteByte(' ')
	}
}
