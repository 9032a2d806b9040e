package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	app "github.com/okian/talentlens/internal/app"
	"github.com/okian/talentlens/internal/domain/model"
)

var (
	analyzePeriod string
	analyzeKind   string
	analyzeFocus  []string
	historyLimit  int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <kind> <id>",
	Short: "Analyze one subject and print the recorded result",
	Args:  cobra.ExactArgs(2),
	RunE:  runAnalyze,
}

var historyCmd = &cobra.Command{
	Use:   "history <kind> <id>",
	Short: "Print recorded analyses of a subject, newest first",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzePeriod, "period", model.DefaultPeriod, "analysis period")
	analyzeCmd.Flags().StringVar(&analyzeKind, "analysis-kind", model.DefaultAnalysisKind, "analysis kind")
	analyzeCmd.Flags().StringSliceVar(&analyzeFocus, "focus", nil, "focus areas (repeatable)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", app.DefaultHistoryLimit, "maximum records to print")
	rootCmd.AddCommand(analyzeCmd, historyCmd, statsCmd)
}

// withService runs fn against a service built from configuration.
func withService(cmd *cobra.Command, fn func(svc *app.Service) (any, error)) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	out, err := fn(svc)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	kind, err := model.ParseKind(args[0])
	if err != nil {
		return err
	}
	params := model.Parameters{AnalysisKind: analyzeKind, Period: analyzePeriod, FocusAreas: analyzeFocus}
	return withService(cmd, func(svc *app.Service) (any, error) {
		return svc.AnalyzeOne(cmd.Context(), kind, args[1], params)
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	kind, err := model.ParseKind(args[0])
	if err != nil {
		return err
	}
	if historyLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	return withService(cmd, func(svc *app.Service) (any, error) {
		return svc.History(cmd.Context(), kind, args[1], historyLimit)
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(svc *app.Service) (any, error) {
		return svc.Stats(cmd.Context()), nil
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
