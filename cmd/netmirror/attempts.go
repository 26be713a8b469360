package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/netmirror/internal/db"
	"github.com/jonathan/netmirror/internal/observability"
	"github.com/spf13/cobra"
)

var (
	attemptsSessionID string
	attemptsLimit     int
	attemptsJSON      bool
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List recorded load attempts of a session",
	Long:  "List the load attempts a session recorded in the diagnostics database, newest first.",
	RunE:  runAttempts,
}

func init() {
	attemptsCmd.Flags().StringVar(&attemptsSessionID, "session-id", "", "Session ID (required)")
	attemptsCmd.Flags().IntVar(&attemptsLimit, "limit", db.DefaultListLimit, "Maximum number of attempts")
	attemptsCmd.Flags().BoolVar(&attemptsJSON, "json", false, "Print attempts as JSON")
	_ = attemptsCmd.MarkFlagRequired("session-id")
	rootCmd.AddCommand(attemptsCmd)
}

func runAttempts(cmd *cobra.Command, _ []string) error {
	sessionID, err := uuid.Parse(attemptsSessionID)
	if err != nil {
		return fmt.Errorf("invalid --session-id: %w", err)
	}

	cfg, err := loadSettings(cmd, lookupEnv)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or database_url config is required")
	}

	database, err := connectDatabase(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	attempts, err := database.ListAttempts(cmd.Context(), sessionID, attemptsLimit)
	if err != nil {
		return err
	}

	if attemptsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(attempts)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintAttempts(attempts)
	return nil
}
