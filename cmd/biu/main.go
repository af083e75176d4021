// Package main is the entry point for the biu CLI.
//
// biu serves the routes described in a YAML file with the embeddable
// server from the http package.
//
// Usage:
//
//	biu serve -c biu.yaml              # Start the server
//	biu config validate -c biu.yaml    # Validate configuration
//	biu config show -c biu.yaml        # Print the effective configuration
//	biu version                        # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time, e.g. go build -ldflags "-X main.version=1.0.0".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "biu",
	Short: "A small one-request-per-connection HTTP server",
	Long: `biu is a small HTTP/1.x server that answers exactly one request per
connection on a bounded pool of workers.

Example config:
  server:
    addr: ":8080"
    workers: 16
  routes:
    - method: GET
      prefix: /
      kind: static
      root: ./public
    - method: GET
      prefix: /health
      kind: text
      body: ok`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "biu %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
