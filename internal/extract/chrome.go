package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// ChromeOptions configures headless Chrome sessions.
type ChromeOptions struct {
	// RemoteURL is the DevTools websocket of an already running browser.
	// When empty a local Chrome process is started.
	RemoteURL string
	// Arguments are extra command line switches, "name" or "name=value",
	// with or without the leading dashes.
	Arguments []string
}

// NewChromeSessionFactory returns a SessionFactory backed by chromedp.
func NewChromeSessionFactory(opts ChromeOptions) SessionFactory {
	return func(ctx context.Context) (Renderer, error) {
		// The session outlives the request that opened it.
		var (
			allocCtx    context.Context
			allocCancel context.CancelFunc
		)
		if opts.RemoteURL != "" {
			allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
		} else {
			execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
			execOpts = append(execOpts, chromeFlags(opts.Arguments)...)
			allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
		}

		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		stop := context.AfterFunc(ctx, browserCancel)
		err := chromedp.Run(browserCtx)
		stop()
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start browser: %w", err)
		}

		return &chromeSession{
			ctx:         browserCtx,
			cancel:      browserCancel,
			allocCancel: allocCancel,
		}, nil
	}
}

func chromeFlags(args []string) []chromedp.ExecAllocatorOption {
	flags := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			flags = append(flags, chromedp.Flag(name, value))
			continue
		}
		flags = append(flags, chromedp.Flag(arg, true))
	}
	return flags
}

// chromeSession is one browser process (or remote connection). Every render
// opens its own tab and closes it afterwards.
type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func (s *chromeSession) Render(ctx context.Context, url string) (string, error) {
	if s.ctx.Err() != nil {
		return "", ErrSessionClosed
	}

	tabCtx, cancel := chromedp.NewContext(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var source string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &source, chromedp.ByQuery),
	)
	if err != nil {
		if s.ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrSessionClosed, err)
		}
		return "", err
	}
	return source, nil
}

func (s *chromeSession) Close() {
	s.cancel()
	s.allocCancel()
}
