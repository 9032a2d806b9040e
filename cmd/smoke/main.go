package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/internal/smoke"
	"github.com/okian/talentlens/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

var (
	baseURL string
	kinds   []string
	rounds  int
	workers int
	timeout time.Duration
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:          "smoke",
	Short:        "Drive a running talentlens server and verify its responses",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		if err := logger.Init(logger.WithFormat(logger.FormatText), logger.WithOutput(os.Stderr)); err != nil {
			return err
		}
		if err := logger.SetLevelString(level); err != nil {
			return err
		}

		parsed := make([]model.Kind, 0, len(kinds))
		for _, raw := range kinds {
			k, err := model.ParseKind(raw)
			if err != nil {
				return err
			}
			parsed = append(parsed, k)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
		defer cancel()

		report, err := smoke.Run(ctx, smoke.Config{
			BaseURL: baseURL,
			Kinds:   parsed,
			Rounds:  rounds,
			Workers: workers,
			Timeout: timeout,
			Verbose: verbose,
		}, logger.Named("smoke"))
		if err != nil {
			return fmt.Errorf("smoke run failed: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the service")
	f.StringSliceVar(&kinds, "kinds", []string{string(model.KindEmployee), string(model.KindTeam)}, "subject kinds to exercise")
	f.IntVar(&rounds, "rounds", smoke.DefaultRounds, "analyses per subject")
	f.IntVar(&workers, "workers", runtime.NumCPU(), "concurrent analyze requests")
	f.DurationVar(&timeout, "timeout", smoke.DefaultTimeout, "HTTP request timeout")
	f.BoolVar(&verbose, "verbose", false, "log every request")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
