// Package common holds what the subcommands share: flag keys and the
// construction of the wired application.
package common

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/TrasparenzAI/rule-service/internal/bootstrap"
)

// Viper keys bound by the root command.
const (
	KeyConfig = "config"
	KeyDebug  = "debug"
)

// Version is set at build time with -ldflags "-X .../cmd/common.Version=...".
var Version = "dev"

// Options tweak NewApp for a subcommand.
type Options struct {
	// Quiet logs only warnings and errors, for commands printing to stdout.
	Quiet bool
	// Console switches the log encoding to the human readable one.
	Console bool
}

// NewApp loads the configuration selected by the global flags and wires the service.
func NewApp(opts Options) (*bootstrap.App, error) {
	cfg, err := bootstrap.LoadConfig(viper.GetString(KeyConfig), viper.GetBool(KeyDebug))
	if err != nil {
		return nil, err
	}
	if Version != "dev" {
		cfg.Service.Version = Version
	}
	if opts.Quiet && !cfg.Service.Debug {
		cfg.Logging.Level = "warn"
	}
	if opts.Console {
		cfg.Logging.Format = "console"
	}

	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	app, err := bootstrap.New(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return app, nil
}
