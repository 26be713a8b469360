// Package main provides the netmirror command line: a content shell that
// resolves its destination from a remote endpoint and shows it.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "netmirror",
	Short: "Resolve and display remotely configured content",
	Long: `netmirror asks a resolver endpoint where its content lives, decodes the
answer and renders the destination. It tracks connectivity, shows an offline
or error view when loading fails, and lets the user retry.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath  string
	resolverURL string
	verbose     bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to JSON config file")
	rootCmd.PersistentFlags().StringVar(&resolverURL, "resolver-url", "", "Resolver endpoint (overrides config and NETMIRROR_RESOLVER_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed debug information")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
