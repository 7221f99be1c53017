package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/logger"
)

// DOMExtractor parses the page into a DOM and reads anchors, their parents
// and a configurable list of attributes.
type DOMExtractor struct {
	attributes []string
	visibility *visibility
	logger     logger.Logger
}

// NewDOMExtractor creates a DOM extractor storing the given attribute names.
func NewDOMExtractor(attributes []string, log logger.Logger) *DOMExtractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &DOMExtractor{
		attributes: attributes,
		visibility: newVisibility(),
		logger:     log,
	}
}

// Name implements Extractor.
func (e *DOMExtractor) Name() string { return "dom" }

// Extract implements Extractor. Without allTags every anchor yields its own
// text, its parent text and the configured attributes of both. With allTags
// every element other than an anchor yields its own text.
func (e *DOMExtractor) Extract(ctx context.Context, page Page, allTags bool) ([]domain.Anchor, error) {
	if !strings.Contains(strings.ToLower(page.Content), "html") {
		e.logger.Warn("Content is not an HTML page", logger.String("url", page.URL))
		return []domain.Anchor{}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	if allTags {
		return e.allElements(doc), nil
	}
	return e.anchors(doc), nil
}

func (e *DOMExtractor) anchors(doc *goquery.Document) []domain.Anchor {
	out := []domain.Anchor{}
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		node := a.Get(0)
		href := strings.TrimSpace(a.AttrOr("href", ""))

		where := domain.WhereText
		if e.visibility.hidden(node) {
			where = domain.WhereTextHidden
		}
		out = appendIfText(out, href, nodeText(node), where)

		parent := node.Parent
		hasParent := parent != nil && parent.Type == html.ElementNode
		if hasParent {
			out = appendIfText(out, href, nodeText(parent), domain.WhereTextParent)
		}

		for _, name := range e.attributes {
			if v, ok := a.Attr(name); ok {
				out = appendIfText(out, href, v, domain.WhereAttributePrefix+name)
			}
		}
		if !hasParent {
			return
		}
		for _, name := range e.attributes {
			if v, ok := attr(parent, name); ok {
				out = appendIfText(out, href, v, domain.WhereParentAttributePfx+name)
			}
		}
	})
	return out
}

func (e *DOMExtractor) allElements(doc *goquery.Document) []domain.Anchor {
	out := []domain.Anchor{}
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node.DataAtom == atom.A || invisible[node.DataAtom] {
			return
		}
		out = appendIfText(out, domain.DefaultHref, nodeText(node), domain.WhereText)
	})
	return out
}

func appendIfText(out []domain.Anchor, href, content, where string) []domain.Anchor {
	content = collapse(content)
	if content == "" {
		return out
	}
	return append(out, domain.NewAnchor(href, content, where))
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}
