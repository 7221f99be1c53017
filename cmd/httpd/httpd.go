// Package httpd implements the command running the HTTP service.
package httpd

import (
	"github.com/spf13/cobra"

	"github.com/TrasparenzAI/rule-service/cmd/common"
	"github.com/TrasparenzAI/rule-service/internal/logger"
)

// Command returns the httpd command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "httpd",
		Short: "Serve the rule API over HTTP",
		Long: `Serve the rule API:

  GET  /v1/rules         rule trees
  POST /v1/rules         classify a page against one rule
  POST /v1/rules/child   classify a page against every child of a rule

plus /health, /health/memory and /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := common.NewApp(common.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			if err = app.Server().Run(cmd.Context()); err != nil {
				app.Logger.Error("Server stopped with error", logger.Error(err))
				return err
			}
			return nil
		},
	}
}
