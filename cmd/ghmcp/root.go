package ghmcp

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ghmcp",
	Short: "ghmcp - a GitHub MCP server with sandboxed code execution",
	Long: "ghmcp is an MCP server that executes untrusted JavaScript snippets in " +
		"isolated interpreter processes. Running snippets can invoke credentialed " +
		"GitHub operations mid-run through a host callback bridge.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.ghmcp/ghmcp.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(auditCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of ghmcp",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ghmcp v%s\n", version)
	},
}
