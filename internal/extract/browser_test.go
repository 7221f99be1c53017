package extract_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/extract"
	"github.com/TrasparenzAI/rule-service/internal/logger"
	"github.com/TrasparenzAI/rule-service/internal/telemetry"
)

// fakeSession renders a fixed page, failing with the queued errors first.
type fakeSession struct {
	page     string
	failures []error
	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
	closed   atomic.Bool
	delay    time.Duration
}

func (s *fakeSession) Render(ctx context.Context, _ string) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return "", err
	}
	return s.page, ctx.Err()
}

func (s *fakeSession) Close() { s.closed.Store(true) }

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	next     func() *fakeSession
	err      error
}

func (f *fakeFactory) open(context.Context) (extract.Renderer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := f.next()
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

const renderedPage = `<html><body><nav><a href="/trasparenza">Amministrazione trasparente</a></nav></body></html>`

func newBrowser(f *fakeFactory, tp *telemetry.Provider) *extract.BrowserExtractor {
	dom := extract.NewDOMExtractor(nil, logger.NewNop())
	return extract.NewBrowserExtractor(f.open, dom, extract.BrowserOptions{}, logger.NewNop(), tp)
}

func TestBrowserExtractor_RendersAndExtracts(t *testing.T) {
	t.Parallel()

	var inFlight, maxSeen atomic.Int32
	f := &fakeFactory{next: func() *fakeSession {
		return &fakeSession{page: renderedPage, inFlight: &inFlight, maxSeen: &maxSeen}
	}}
	b := newBrowser(f, nil)

	anchors, err := b.Extract(context.Background(), extract.Page{URL: "https://ente.example/"}, false)
	require.NoError(t, err)
	assert.Equal(t, []domain.Anchor{
		{Href: "/trasparenza", Content: "Amministrazione trasparente", Where: domain.WhereText},
		{Href: "/trasparenza", Content: "Amministrazione trasparente", Where: domain.WhereTextParent},
	}, anchors)

	_, err = b.Extract(context.Background(), extract.Page{URL: "https://ente.example/"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(), "session is reused")
}

func TestBrowserExtractor_NoURL(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{}
	b := newBrowser(f, nil)

	_, err := b.Extract(context.Background(), extract.Page{Content: renderedPage}, false)
	require.ErrorIs(t, err, extract.ErrNoURL)
	assert.Zero(t, f.count(), "no session opened")
}

func TestBrowserExtractor_RecreatesClosedSession(t *testing.T) {
	t.Parallel()

	var inFlight, maxSeen atomic.Int32
	first := true
	f := &fakeFactory{next: func() *fakeSession {
		s := &fakeSession{page: renderedPage, inFlight: &inFlight, maxSeen: &maxSeen}
		if first {
			s.failures = []error{extract.ErrSessionClosed}
			first = false
		}
		return s
	}}
	tp := telemetry.NewProvider()
	b := newBrowser(f, tp)

	source, err := b.Render(context.Background(), "https://ente.example/")
	require.NoError(t, err)
	assert.Equal(t, renderedPage, source)

	require.Equal(t, 2, f.count())
	assert.True(t, f.sessions[0].closed.Load(), "dead session closed")
	assert.False(t, f.sessions[1].closed.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(tp.Metrics.BrowserRecreate), 0)
}

func TestBrowserExtractor_SecondFailurePropagates(t *testing.T) {
	t.Parallel()

	var inFlight, maxSeen atomic.Int32
	f := &fakeFactory{next: func() *fakeSession {
		return &fakeSession{inFlight: &inFlight, maxSeen: &maxSeen, failures: []error{extract.ErrSessionClosed}}
	}}
	b := newBrowser(f, nil)

	_, err := b.Render(context.Background(), "https://ente.example/")
	require.ErrorIs(t, err, extract.ErrSessionClosed)
	assert.Equal(t, 2, f.count(), "retried exactly once")

	// The next call starts from a fresh session.
	_, err = b.Render(context.Background(), "https://ente.example/")
	require.ErrorIs(t, err, extract.ErrSessionClosed)
	assert.Equal(t, 4, f.count())
}

func TestBrowserExtractor_PageErrorKeepsSession(t *testing.T) {
	t.Parallel()

	var inFlight, maxSeen atomic.Int32
	pageErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	f := &fakeFactory{next: func() *fakeSession {
		return &fakeSession{page: renderedPage, inFlight: &inFlight, maxSeen: &maxSeen, failures: []error{pageErr}}
	}}
	b := newBrowser(f, nil)

	_, err := b.Render(context.Background(), "https://missing.example/")
	require.ErrorIs(t, err, pageErr)

	_, err = b.Render(context.Background(), "https://ente.example/")
	require.NoError(t, err)
	assert.Equal(t, 1, f.count())
}

func TestBrowserExtractor_SessionOpenFailure(t *testing.T) {
	t.Parallel()

	f := &fakeFactory{err: errors.New("chrome not found")}
	b := newBrowser(f, nil)

	_, err := b.Render(context.Background(), "https://ente.example/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestBrowserExtractor_SerializesRenders(t *testing.T) {
	t.Parallel()

	var inFlight, maxSeen atomic.Int32
	f := &fakeFactory{next: func() *fakeSession {
		return &fakeSession{page: renderedPage, inFlight: &inFlight, maxSeen: &maxSeen, delay: 5 * time.Millisecond}
	}}
	b := newBrowser(f, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Render(context.Background(), "https://ente.example/")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load(), "one render at a time")
	assert.Equal(t, 1, f.count())
}

func TestBrowserExtractor_Close(t *testing.T) {
	t.Parallel()

	var inFlight, maxSeen atomic.Int32
	f := &fakeFactory{next: func() *fakeSession {
		return &fakeSession{page: renderedPage, inFlight: &inFlight, maxSeen: &maxSeen}
	}}
	b := newBrowser(f, nil)

	_, err := b.Render(context.Background(), "https://ente.example/")
	require.NoError(t, err)
	b.Close()
	assert.True(t, f.sessions[0].closed.Load())
}
