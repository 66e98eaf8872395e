// Package cli implements the gqlmock command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockedprovider/pkg/logging"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	logLevel  string
	logFormat string
}

func (g *globalFlags) logger(w io.Writer) *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(g.logLevel),
		Format: logging.ParseFormat(g.logFormat),
		Output: w,
	})
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "gqlmock",
		Short: "gqlmock serves and queries mocked GraphQL schemas",
		Long: `gqlmock builds a mocked GraphQL provider from a schema and an optional YAML
mock configuration. Every field the configuration leaves out gets a generated
value of the right type.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(
		newServeCmd(g),
		newQueryCmd(g),
		newValidateCmd(),
	)
	return rootCmd
}

// Execute runs the command line. It is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
