package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/logger"
	"github.com/TrasparenzAI/rule-service/internal/telemetry"
)

var (
	// ErrSessionClosed is returned by a Renderer whose browser session is gone.
	ErrSessionClosed = errors.New("browser session closed")
	// ErrNoURL is returned when the browser extractor is asked for a page without URL.
	ErrNoURL = errors.New("page has no url")
)

// Renderer fetches a URL in a browser session and returns the rendered markup.
// A Renderer is never used by two callers at once.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close()
}

// SessionFactory opens a new browser session.
type SessionFactory func(ctx context.Context) (Renderer, error)

// BrowserOptions configures the browser extractor.
type BrowserOptions struct {
	// PageTimeout bounds one render; zero disables it.
	PageTimeout time.Duration
	// RatePerSecond paces renders across all callers; zero or less disables pacing.
	RatePerSecond float64
}

// BrowserExtractor renders a page URL through a shared headless browser
// session and extracts anchors from the rendered markup with a DOMExtractor.
//
// The session is created lazily and every render holds the session lock for
// its whole duration, recovery included, so at most one page is rendered at a
// time and no caller ever observes a session being replaced.
type BrowserExtractor struct {
	mu         sync.Mutex
	session    Renderer
	newSession SessionFactory

	dom       *DOMExtractor
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    logger.Logger
	telemetry *telemetry.Provider
}

// NewBrowserExtractor creates a browser extractor. No session is opened until the first render.
func NewBrowserExtractor(
	factory SessionFactory,
	dom *DOMExtractor,
	opts BrowserOptions,
	log logger.Logger,
	tp *telemetry.Provider,
) *BrowserExtractor {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &BrowserExtractor{
		newSession: factory,
		dom:        dom,
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    opts.PageTimeout,
		logger:     log,
		telemetry:  tp,
	}
}

// Name implements Extractor.
func (e *BrowserExtractor) Name() string { return "browser" }

// Extract implements Extractor. The page content is ignored: the URL is
// rendered and its final markup handed to the DOM extractor.
func (e *BrowserExtractor) Extract(ctx context.Context, page Page, allTags bool) ([]domain.Anchor, error) {
	if page.URL == "" {
		return nil, ErrNoURL
	}
	source, err := e.Render(ctx, page.URL)
	if err != nil {
		return nil, err
	}
	return e.dom.Extract(ctx, Page{Content: source, URL: page.URL}, allTags)
}

// Render returns the rendered markup of url. A closed session is replaced
// and the render retried once; a second failure is returned.
func (e *BrowserExtractor) Render(ctx context.Context, url string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for browser slot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	source, err := e.renderLocked(ctx, url)
	if err != nil && errors.Is(err, ErrSessionClosed) && ctx.Err() == nil {
		e.logger.Warn("Browser session lost, recreating",
			logger.String("url", url),
			logger.Error(err),
		)
		e.discardLocked()
		if e.telemetry != nil {
			e.telemetry.IncrementBrowserRecreate()
		}
		source, err = e.renderLocked(ctx, url)
	}
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			e.discardLocked()
		}
		e.recordFetch("error")
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	e.recordFetch("ok")
	return source, nil
}

func (e *BrowserExtractor) renderLocked(ctx context.Context, url string) (string, error) {
	if e.session == nil {
		session, err := e.newSession(ctx)
		if err != nil {
			return "", fmt.Errorf("open browser session: %w", err)
		}
		e.session = session
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.session.Render(ctx, url)
}

func (e *BrowserExtractor) discardLocked() {
	if e.session != nil {
		e.session.Close()
		e.session = nil
	}
}

func (e *BrowserExtractor) recordFetch(result string) {
	if e.telemetry != nil {
		e.telemetry.RecordBrowserFetch(result)
	}
}

// Close releases the browser session, if any.
func (e *BrowserExtractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discardLocked()
}
