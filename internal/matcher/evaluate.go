package matcher

import (
	"context"
	"strings"
	"time"

	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/logger"
	"github.com/TrasparenzAI/rule-service/internal/search"
)

// evaluate tries the terms of rule in declaration order and returns the
// outcome of the first term with a hit. Several hits tied for the best score
// stay a single result for leaves and for the rule the caller asked for; a
// non-leaf child reached through children resolution reports all of them.
func (m *Matcher) evaluate(ctx context.Context, ix *search.Index, rule *domain.Rule, requested bool) (domain.Outcome, bool) {
	for _, term := range rule.Terms {
		start := time.Now()
		all, err := ix.SearchAll(term.Key)
		m.telemetry.RecordSearch(ctx, time.Since(start))
		if err != nil {
			m.logger.Debug("Term not searchable",
				logger.String("rule", rule.Name),
				logger.String("term", term.Key),
				logger.Error(err),
			)
			continue
		}

		hits := search.TopTied(m.filterBanned(ctx, all))
		if len(hits) == 0 {
			continue
		}

		if len(hits) == 1 || rule.IsLeaf() || requested {
			return domain.Single{Result: newResult(rule, term, hits[0])}, true
		}

		results := make([]domain.Result, len(hits))
		for i, h := range hits {
			results[i] = newResult(rule, term, h)
		}
		m.telemetry.IncrementTied()
		return domain.Tied{Rule: rule.Name, Leaf: rule.IsLeaf(), Results: results}, true
	}
	return notFound(rule), false
}

// filterBanned drops hits pointing at banned hrefs. When every hit is banned
// the hits are returned unchanged.
func (m *Matcher) filterBanned(ctx context.Context, hits []domain.SearchHit) []domain.SearchHit {
	if len(m.banned) == 0 || len(hits) == 0 {
		return hits
	}
	kept := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		if _, banned := m.banned[strings.ToLower(strings.TrimSpace(h.Href))]; !banned {
			kept = append(kept, h)
		}
	}
	dropped := len(hits) - len(kept)
	if dropped == 0 {
		return hits
	}
	if len(kept) == 0 {
		m.telemetry.RecordBanned(ctx, dropped, true)
		return hits
	}
	m.telemetry.RecordBanned(ctx, dropped, false)
	return kept
}

func newResult(rule *domain.Rule, term domain.Term, hit domain.SearchHit) domain.Result {
	status := term.Code
	if status == 0 {
		status = domain.DefaultTermCode
	}
	return domain.Result{
		URL:     hit.Href,
		Rule:    rule.Name,
		Term:    term.Key,
		Content: hit.Content,
		Where:   hit.Where,
		Leaf:    rule.IsLeaf(),
		Status:  status,
		Score:   hit.Score,
	}
}

func notFound(rule *domain.Rule) domain.NotFound {
	return domain.NotFound{Rule: rule.Name, Terms: rule.TermKeys(), Leaf: rule.IsLeaf()}
}
