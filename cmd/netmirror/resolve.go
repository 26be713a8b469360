package main

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/netmirror/internal/observability"
	"github.com/jonathan/netmirror/internal/resolver"
	"github.com/spf13/cobra"
)

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Query the resolver once and print the destination",
	Long: `Fetch the resolver endpoint, decode token_hash and print the destination
without rendering it. Exits non-zero with the failure kind on error.`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(resolveCmd)
}

type resolveResult struct {
	Resolver    string        `json:"resolver"`
	Destination string        `json:"destination,omitempty"`
	Error       string        `json:"error,omitempty"`
	Kind        resolver.Kind `json:"kind,omitempty"`
}

func runResolve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd, lookupEnv)
	if err != nil {
		return err
	}

	client := newResolverClient(cfg)
	result := resolveResult{Resolver: client.URL()}

	resp, err := client.Resolve(cmd.Context())
	if err == nil {
		result.Destination, err = resolver.Decode(resp)
	}
	if err != nil {
		result.Error = err.Error()
		result.Kind = resolver.KindOf(err)
	}

	out := cmd.OutOrStdout()
	switch {
	case resolveJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	case err == nil && cfg.Verbose:
		observability.NewPrinter(out).PrintResolved(result.Resolver, result.Destination)
	case err == nil:
		fmt.Fprintln(out, result.Destination)
	}

	if err != nil {
		if cfg.Verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "resolver: %s\n", result.Resolver)
		}
		return fmt.Errorf("resolve failed (%s): %w", result.Kind, err)
	}
	return nil
}
