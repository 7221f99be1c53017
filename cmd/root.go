// Package cmd implements the rule-service command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TrasparenzAI/rule-service/cmd/classify"
	"github.com/TrasparenzAI/rule-service/cmd/common"
	"github.com/TrasparenzAI/rule-service/cmd/httpd"
	"github.com/TrasparenzAI/rule-service/cmd/rules"
)

var rootCmd = &cobra.Command{
	Use:   "rule-service",
	Short: "Classify public administration pages against transparency rules",
	Long: `rule-service matches the pages of a public administration website against
the tree of transparency obligations and tells which link leads to each section.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	// .env values must be visible before viper reads the environment.
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization cycle
	// (bindConfig refers to rootCmd).
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return bindConfig()
	}

	flags := rootCmd.PersistentFlags()
	flags.String(common.KeyConfig, "", "config file (default: CONFIG_PATH, then built-in defaults)")
	flags.Bool(common.KeyDebug, false, "enable debug logging and gin debug mode")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("rule-service %s\n", common.Version)
		},
	})
	rootCmd.AddCommand(httpd.Command())
	rootCmd.AddCommand(classify.Command())
	rootCmd.AddCommand(rules.Command())
}

// bindConfig lets flags win over CONFIG_PATH and APP_DEBUG.
func bindConfig() error {
	if err := viper.BindPFlag(common.KeyConfig, rootCmd.PersistentFlags().Lookup(common.KeyConfig)); err != nil {
		return fmt.Errorf("bind config flag: %w", err)
	}
	if err := viper.BindPFlag(common.KeyDebug, rootCmd.PersistentFlags().Lookup(common.KeyDebug)); err != nil {
		return fmt.Errorf("bind debug flag: %w", err)
	}
	if err := viper.BindEnv(common.KeyConfig, "CONFIG_PATH"); err != nil {
		return fmt.Errorf("bind CONFIG_PATH: %w", err)
	}
	if err := viper.BindEnv(common.KeyDebug, "APP_DEBUG"); err != nil {
		return fmt.Errorf("bind APP_DEBUG: %w", err)
	}
	return nil
}
