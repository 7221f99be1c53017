// Package bootstrap wires the configuration into a running rule service:
// logger, catalog, extraction stages, matcher and HTTP server.
package bootstrap

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/TrasparenzAI/rule-service/internal/api"
	"github.com/TrasparenzAI/rule-service/internal/catalog"
	"github.com/TrasparenzAI/rule-service/internal/config"
	"github.com/TrasparenzAI/rule-service/internal/extract"
	"github.com/TrasparenzAI/rule-service/internal/logger"
	"github.com/TrasparenzAI/rule-service/internal/matcher"
	"github.com/TrasparenzAI/rule-service/internal/search"
	"github.com/TrasparenzAI/rule-service/internal/server"
	"github.com/TrasparenzAI/rule-service/internal/telemetry"
)

// base64 grows a page by 4/3; the body limit leaves room for it.
const bodyOverhead = 2

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    logger.Logger
	Telemetry *telemetry.Provider
	Catalog   *catalog.Catalog
	Matcher   *matcher.Matcher

	browser *extract.BrowserExtractor
}

// LoadConfig reads path, or builds the configuration from defaults and the
// environment when path is empty, and validates it.
func LoadConfig(path string, debug bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return nil, err
	}
	if debug {
		cfg.Service.Debug = true
		cfg.Logging.Level = "debug"
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the service logger.
func NewLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, err
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// New wires the components described by cfg.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	tp := telemetry.NewProvider()

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	app := &App{Config: cfg, Logger: log, Telemetry: tp, Catalog: cat}
	stages, err := app.stages()
	if err != nil {
		return nil, err
	}

	app.Matcher = matcher.New(
		cat,
		search.NewAnalyzer(cfg.Search.Tokens),
		stages,
		matcher.Options{
			MaxPageLength: cfg.Matcher.MaxPageLength,
			MaxUnitLength: cfg.Search.MaxLengthContent,
			BannedURLs:    cfg.Matcher.BannedURLs,
		},
		log,
		tp,
	)

	log.Info("Rule service wired",
		logger.String("default_root", cat.DefaultRoot()),
		logger.Strings("roots", cat.Roots()),
		logger.Int("rules", cat.Len()),
		logger.Strings("stages", cfg.Matcher.Stages),
	)
	return app, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	switch {
	case cfg.Rules.HasDefinitions():
		return catalog.Load(&cfg.Rules.Definitions, cfg.Rules.Root)
	case cfg.Rules.File != "":
		return catalog.LoadFile(cfg.Rules.File, cfg.Rules.Root)
	default:
		return catalog.Default(cfg.Rules.Root)
	}
}

// stages builds the fallback chain in the configured order.
func (a *App) stages() ([]matcher.Stage, error) {
	cfg := a.Config
	pattern, err := extract.NewPatternExtractor(cfg.Extract.AnchorRegex, cfg.Extract.HrefRegex, a.Logger, a.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("pattern extractor: %w", err)
	}
	dom := extract.NewDOMExtractor(cfg.Extract.TagAttributes, a.Logger)

	stages := make([]matcher.Stage, 0, len(cfg.Matcher.Stages))
	for _, name := range cfg.Matcher.Stages {
		switch name {
		case config.StagePattern:
			stages = append(stages, matcher.Stage{Name: name, Extractor: pattern})
		case config.StageDOM:
			stages = append(stages, matcher.Stage{Name: name, Extractor: dom})
		case config.StageDOMAllTags:
			stages = append(stages, matcher.Stage{Name: name, Extractor: dom, AllTags: true})
		case config.StageBrowser:
			stages = append(stages, matcher.Stage{Name: name, Extractor: a.browserExtractor(dom), NeedsURL: true})
		default:
			return nil, fmt.Errorf("unknown stage %q", name)
		}
	}
	return stages, nil
}

func (a *App) browserExtractor(dom *extract.DOMExtractor) *extract.BrowserExtractor {
	if a.browser == nil {
		cfg := a.Config.Browser
		factory := extract.NewChromeSessionFactory(extract.ChromeOptions{
			RemoteURL: cfg.RemoteURL,
			Arguments: cfg.Arguments,
		})
		a.browser = extract.NewBrowserExtractor(factory, dom, extract.BrowserOptions{
			PageTimeout:   cfg.PageTimeout,
			RatePerSecond: cfg.RatePerSecond,
		}, a.Logger, a.Telemetry)
	}
	return a.browser
}

// Server builds the HTTP server exposing the matcher.
func (a *App) Server() *server.Server {
	cfg := a.Config
	handler := api.NewHandler(a.Matcher, a.Catalog, int64(cfg.Matcher.MaxPageLength)*bodyOverhead)

	return server.NewBuilder(server.Config{
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
	}).
		WithLogger(a.Logger).
		WithMetrics(a.Telemetry.Handler()).
		WithHealthCheck("catalog", a.catalogCheck).
		WithRoutes(func(r *gin.Engine) {
			handler.Register(r, cfg.Auth.JWTSecret)
		}).
		Build()
}

func (a *App) catalogCheck() server.CheckResult {
	if a.Catalog.Len() == 0 {
		return server.CheckResult{Status: server.HealthStatusUnhealthy, Message: "no rules loaded"}
	}
	return server.CheckResult{
		Status:  server.HealthStatusHealthy,
		Message: fmt.Sprintf("%d rules in %s", a.Catalog.Len(), strings.Join(a.Catalog.Roots(), ", ")),
	}
}

// Close releases the browser session, if one was opened.
func (a *App) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	_ = a.Logger.Sync()
}
