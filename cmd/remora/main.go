// Package main provides the remora binary.
//
// Remora attaches to a SQL Tools Service peer, tracks its profiler
// trace sessions and long-running tasks, and serves both to MCP
// clients over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remora-db/remora/internal/cli"
	"github.com/remora-db/remora/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "remora",
		Short:         "Remora - profiler session and task tracking for SQL Tools Service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Remora version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}
