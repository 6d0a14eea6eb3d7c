// Command mcp-census runs an MCP server that answers questions with U.S.
// Census Bureau data.
//
// Configuration is read from config.yaml (see pkg/config) with
// MCP_CENSUS_* environment overrides. CENSUS_API_KEY is required.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("mcp-census failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mcp-census",
		Short:         "MCP server for U.S. Census Bureau data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("mcp-census version %s\n", version))

	root.AddCommand(newServeCmd(), newIndexCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcp-census version %s\n", version)
		},
	}
}
