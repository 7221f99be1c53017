package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/logger"
	"github.com/TrasparenzAI/rule-service/internal/telemetry"
)

// Named groups read from the configured expressions.
const (
	groupAttrs = "attrs"
	groupText  = "text"
	groupHref  = "href"
)

// PatternExtractor finds anchors with two regular expressions: one locating
// anchor markup, one reading the href out of its attribute block. It is fast
// on well formed markup and never parses a DOM.
type PatternExtractor struct {
	anchor    *regexp2.Regexp
	href      *regexp2.Regexp
	logger    logger.Logger
	telemetry *telemetry.Provider
}

// NewPatternExtractor compiles the anchor and href expressions. The anchor
// expression must capture the inner markup in a "text" group and may capture
// the attribute block in an "attrs" group, or the href itself in an "href" group.
func NewPatternExtractor(anchorExpr, hrefExpr string, log logger.Logger, tp *telemetry.Provider) (*PatternExtractor, error) {
	anchor, err := regexp2.Compile(anchorExpr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile anchor expression: %w", err)
	}
	if anchor.GroupNumberFromName(groupText) < 0 {
		return nil, fmt.Errorf("anchor expression has no %q group", groupText)
	}
	href, err := regexp2.Compile(hrefExpr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile href expression: %w", err)
	}
	if href.GroupNumberFromName(groupHref) < 0 {
		return nil, fmt.Errorf("href expression has no %q group", groupHref)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &PatternExtractor{anchor: anchor, href: href, logger: log, telemetry: tp}, nil
}

// Name implements Extractor.
func (e *PatternExtractor) Name() string { return "pattern" }

// Extract emits, per anchor match, the literal inner markup ("text::raw") and
// its tag-stripped, entity-decoded text ("text"). allTags has no meaning for
// this strategy and is ignored.
func (e *PatternExtractor) Extract(ctx context.Context, page Page, _ bool) ([]domain.Anchor, error) {
	if !strings.Contains(page.Content, "<") {
		return []domain.Anchor{}, nil
	}

	var anchors []domain.Anchor
	m, err := e.anchor.FindStringMatch(page.Content)
	for ; m != nil && err == nil; m, err = e.anchor.FindNextMatch(m) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		href, ok := e.hrefOf(m)
		if !ok {
			e.logger.Debug("Anchor candidate skipped, href not matched",
				logger.String("candidate", truncate(m.String(), 200)),
			)
			if e.telemetry != nil {
				e.telemetry.IncrementPatternSkipped()
			}
			continue
		}

		raw := groupValue(m, groupText)
		anchors = append(anchors,
			domain.NewAnchor(href, raw, domain.WhereTextRaw),
			domain.NewAnchor(href, plainText(raw), domain.WhereText),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("match anchors: %w", err)
	}
	if anchors == nil {
		anchors = []domain.Anchor{}
	}
	return anchors, nil
}

// hrefOf reads the href of an anchor match, directly from an "href" group of
// the anchor expression or by running the href expression on the attributes.
func (e *PatternExtractor) hrefOf(m *regexp2.Match) (string, bool) {
	if g := m.GroupByName(groupHref); g != nil && len(g.Captures) > 0 {
		return g.String(), true
	}

	attrs := m.String()
	if g := m.GroupByName(groupAttrs); g != nil && len(g.Captures) > 0 {
		attrs = g.String()
	}
	hm, err := e.href.FindStringMatch(attrs)
	if err != nil || hm == nil {
		return "", false
	}
	g := hm.GroupByName(groupHref)
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return strings.TrimSpace(g.String()), true
}

func groupValue(m *regexp2.Match, name string) string {
	if g := m.GroupByName(name); g != nil {
		return g.String()
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
