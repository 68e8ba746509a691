// Package cmd provides the mcp-firewall CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpfirewall/sidecar/internal/config"
)

var appViper = viper.New()

var rootCmd = &cobra.Command{
	Use:   "mcp-firewall",
	Short: "A policy-enforcing reverse proxy for MCP tool calls",
	Long: `mcp-firewall sits in front of an MCP tool-invocation endpoint and
admits, rate-limits, signs and audits every request against a declarative
policy document before it reaches the upstream service.

Environment variables with the MCP_FIREWALL_ prefix supply any flag not
given on the command line, e.g. MCP_FIREWALL_UPSTREAM=http://127.0.0.1:9100.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		config.InitEnv(appViper)
	})
}
