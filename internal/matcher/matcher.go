// Package matcher resolves transparency rules against one page: it runs the
// extraction fallback chain, builds a fresh search index per stage and turns
// the hits of the rule terms into classification outcomes.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/TrasparenzAI/rule-service/internal/catalog"
	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/extract"
	"github.com/TrasparenzAI/rule-service/internal/logger"
	"github.com/TrasparenzAI/rule-service/internal/search"
	"github.com/TrasparenzAI/rule-service/internal/telemetry"
)

// Request kinds, used as metric labels.
const (
	kindRule     = "rule"
	kindChildren = "children"
)

// Request asks to classify one page.
type Request struct {
	// Content is the page markup, raw or base64 encoded.
	Content string
	// URL of the page. Required by stages that fetch the page themselves.
	URL string
	// Root selects the catalog scope; empty means the default root.
	Root string
	// Rule names the rule to resolve; empty means the root rule.
	Rule string
	// Known holds outcomes the caller already has, by child rule name.
	// ExecuteChildren does not evaluate those children again.
	Known map[string]domain.Outcome
}

// Stage is one step of the fallback chain.
type Stage struct {
	Name      string
	Extractor extract.Extractor
	AllTags   bool
	// NeedsURL skips the stage for requests without a URL.
	NeedsURL bool
}

// Options tune the matcher.
type Options struct {
	// MaxPageLength rejects larger pages (bytes, after decoding). Zero disables the check.
	MaxPageLength int
	// MaxUnitLength drops longer content units from the index (runes).
	MaxUnitLength int
	// BannedURLs are hrefs never returned while any other hit exists.
	BannedURLs []string
}

// Matcher is safe for concurrent use; every call works on request-local state.
type Matcher struct {
	catalog   *catalog.Catalog
	analyzer  *search.Analyzer
	stages    []Stage
	opts      Options
	banned    map[string]struct{}
	logger    logger.Logger
	telemetry *telemetry.Provider
}

// New creates a matcher running stages in order.
func New(
	cat *catalog.Catalog,
	analyzer *search.Analyzer,
	stages []Stage,
	opts Options,
	log logger.Logger,
	tp *telemetry.Provider,
) *Matcher {
	banned := make(map[string]struct{}, len(opts.BannedURLs))
	for _, u := range opts.BannedURLs {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			banned[u] = struct{}{}
		}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if tp == nil {
		tp = telemetry.NewProvider()
	}
	return &Matcher{
		catalog:   cat,
		analyzer:  analyzer,
		stages:    stages,
		opts:      opts,
		banned:    banned,
		logger:    log,
		telemetry: tp,
	}
}

// Catalog returns the rule catalog the matcher resolves against.
func (m *Matcher) Catalog() *catalog.Catalog {
	return m.catalog
}

// Execute resolves the requested rule. Stages run in order until one of them
// finds a term of the rule; when every stage misses it returns
// domain.ErrRuleNotFound. A failure of the last stage is returned as is.
func (m *Matcher) Execute(ctx context.Context, req Request) (domain.Outcome, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "matcher.execute",
		attribute.String("rule.root", req.Root),
		attribute.String("rule.name", req.Rule),
	)
	defer span.End()

	outcome, err := m.execute(ctx, req)
	m.telemetry.RecordRequest(ctx, kindRule, resultLabel(err))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (m *Matcher) execute(ctx context.Context, req Request) (domain.Outcome, error) {
	rule, page, err := m.prepare(req)
	if err != nil {
		return nil, err
	}

	stages := m.stagesFor(page)
	for i, stage := range stages {
		last := i == len(stages)-1
		start := time.Now()

		ix, stageErr := m.index(ctx, stage, page)
		if stageErr != nil {
			m.telemetry.RecordStage(ctx, stage.Name, telemetry.OutcomeFailed, time.Since(start))
			if last || ctx.Err() != nil {
				return nil, fmt.Errorf("stage %s: %w", stage.Name, stageErr)
			}
			m.logger.Warn("Stage failed, falling back",
				logger.String("stage", stage.Name),
				logger.String("rule", rule.Name),
				logger.Error(stageErr),
			)
			continue
		}

		if outcome, found := m.evaluate(ctx, ix, rule, true); found {
			m.telemetry.RecordStage(ctx, stage.Name, telemetry.OutcomeHit, time.Since(start))
			m.logger.Debug("Rule resolved",
				logger.String("stage", stage.Name),
				logger.String("rule", rule.Name),
				logger.Int("status", outcome.Code()),
			)
			return outcome, nil
		}
		m.telemetry.RecordStage(ctx, stage.Name, telemetry.OutcomeNotFound, time.Since(start))
	}

	return nil, fmt.Errorf("%w: no term of %q matched", domain.ErrRuleNotFound, rule.Name)
}

// ExecuteChildren resolves every direct child of the requested rule and
// returns one outcome per child, in declaration order. All children share the
// index of a stage. The next stage runs only while more than half of the
// children are still not found, and only for those children.
func (m *Matcher) ExecuteChildren(ctx context.Context, req Request) ([]domain.Outcome, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "matcher.execute_children",
		attribute.String("rule.root", req.Root),
		attribute.String("rule.name", req.Rule),
	)
	defer span.End()

	outcomes, err := m.executeChildren(ctx, req)
	m.telemetry.RecordRequest(ctx, kindChildren, resultLabel(err))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return outcomes, err
}

func (m *Matcher) executeChildren(ctx context.Context, req Request) ([]domain.Outcome, error) {
	parent, page, err := m.prepare(req)
	if err != nil {
		return nil, err
	}

	children := m.catalog.Children(parent)
	outcomes := make([]domain.Outcome, len(children))
	final := make([]bool, len(children))
	for i, child := range children {
		if known, ok := req.Known[child.Name]; ok && known != nil {
			outcomes[i] = known
			final[i] = true
			continue
		}
		outcomes[i] = notFound(child)
	}

	stages := m.stagesFor(page)
	for i, stage := range stages {
		pending := pendingChildren(outcomes, final)
		if len(pending) == 0 {
			break
		}
		last := i == len(stages)-1
		start := time.Now()

		ix, stageErr := m.index(ctx, stage, page)
		if stageErr != nil {
			m.telemetry.RecordStage(ctx, stage.Name, telemetry.OutcomeFailed, time.Since(start))
			if ctx.Err() != nil || (last && !anyFound(outcomes)) {
				return nil, fmt.Errorf("stage %s: %w", stage.Name, stageErr)
			}
			m.logger.Warn("Stage failed, falling back",
				logger.String("stage", stage.Name),
				logger.String("rule", parent.Name),
				logger.Error(stageErr),
			)
			continue
		}

		hits := 0
		for _, idx := range pending {
			if outcome, found := m.evaluate(ctx, ix, children[idx], false); found {
				outcomes[idx] = outcome
				hits++
			}
		}
		stageOutcome := telemetry.OutcomeNotFound
		if hits > 0 {
			stageOutcome = telemetry.OutcomeHit
		}
		m.telemetry.RecordStage(ctx, stage.Name, stageOutcome, time.Since(start))

		if missing := len(pendingChildren(outcomes, final)); missing*2 <= len(children) {
			break
		}
	}
	return outcomes, nil
}

// prepare decodes the page, enforces the size limit and resolves the rule.
func (m *Matcher) prepare(req Request) (*domain.Rule, extract.Page, error) {
	content := DecodeContent(req.Content)
	if m.opts.MaxPageLength > 0 && len(content) > m.opts.MaxPageLength {
		m.telemetry.IncrementContentTooLarge()
		return nil, extract.Page{}, fmt.Errorf("%w: %d bytes, limit %d",
			domain.ErrContentTooLarge, len(content), m.opts.MaxPageLength)
	}

	rule, err := m.catalog.Resolve(req.Root, req.Rule)
	if err != nil {
		return nil, extract.Page{}, err
	}
	return rule, extract.Page{Content: content, URL: req.URL}, nil
}

func (m *Matcher) stagesFor(page extract.Page) []Stage {
	stages := make([]Stage, 0, len(m.stages))
	for _, s := range m.stages {
		if s.NeedsURL && page.URL == "" {
			continue
		}
		stages = append(stages, s)
	}
	return stages
}

// index runs one stage extraction and builds its index.
func (m *Matcher) index(ctx context.Context, stage Stage, page extract.Page) (*search.Index, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "matcher.stage",
		attribute.String("stage", stage.Name),
		attribute.Bool("all_tags", stage.AllTags),
	)
	defer span.End()

	units, err := stage.Extractor.Extract(ctx, page, stage.AllTags)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	m.telemetry.RecordExtraction(ctx, stage.Extractor.Name(), len(units))

	ix := search.Build(units, m.analyzer, m.opts.MaxUnitLength)
	m.telemetry.RecordIndex(ctx, ix.Len())
	span.SetAttributes(
		attribute.Int("units", len(units)),
		attribute.Int("documents", ix.Len()),
	)
	return ix, nil
}

func pendingChildren(outcomes []domain.Outcome, final []bool) []int {
	var pending []int
	for i, o := range outcomes {
		if !final[i] && !domain.Found(o) {
			pending = append(pending, i)
		}
	}
	return pending
}

func anyFound(outcomes []domain.Outcome) bool {
	for _, o := range outcomes {
		if domain.Found(o) {
			return true
		}
	}
	return false
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
