package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/talentlens/internal/adapters/llm"
	"github.com/okian/talentlens/internal/adapters/repository"
	app "github.com/okian/talentlens/internal/app"
	"github.com/okian/talentlens/internal/config"
	"github.com/okian/talentlens/internal/domain/interpret"
	"github.com/okian/talentlens/internal/domain/prompt"
	"github.com/okian/talentlens/internal/domain/scoring"
	"github.com/okian/talentlens/pkg/logger"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "talentlens",
	Short: "AI-assisted analysis of employees and teams",
	Long:  "talentlens compiles subject data into prompts, asks a language model for a structured analysis, and records every result with its provenance.",
	// No subcommand runs the HTTP server.
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file (default: "+config.EnvConfig+" env var)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// setup loads configuration and initializes the global logger. Logs go to
// stderr so command output on stdout stays machine readable.
func setup(ctx context.Context) (*config.Config, logger.Logger, error) {
	if cfgPath != "" {
		if err := os.Setenv(config.EnvConfig, cfgPath); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		return nil, nil, err
	}
	return cfg, logger.Get(), nil
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.RecordStore, error) {
	opts := []repository.Option{
		repository.WithCapacity(cfg.RecordCapacity),
		repository.WithLogger(log.Named("store")),
	}
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return repository.NewMemoryStore(opts...), nil
	case config.StoreSQLite:
		return repository.OpenSQLite(ctx, cfg.StorePath, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown store_driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
}

// buildService wires the pipeline from configuration. The caller owns the
// returned service and must Close it.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	seed, err := repository.LoadSeed(cfg.SubjectsPath)
	if err != nil {
		return nil, err
	}
	dir, err := repository.NewDirectory(seed.Subjects()...)
	if err != nil {
		return nil, err
	}

	invoker, err := llm.NewInvoker(llm.Config{
		Provider:       cfg.ModelProvider,
		APIKey:         cfg.ModelAPIKey,
		Model:          cfg.ModelName,
		BaseURL:        cfg.ModelBaseURL,
		MaxTokens:      cfg.ModelMaxTokens,
		Temperature:    cfg.ModelTemperature,
		Timeout:        cfg.ModelTimeout(),
		MaxRetries:     cfg.RetryMaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay(),
	}, scoring.NewGenerator(), llm.WithLogger(log.Named("llm")))
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if sink, ok := store.(repository.SubjectSink); ok {
		if err := dir.Persist(ctx, sink); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	log.Info(ctx, "pipeline ready",
		logger.String("provider", invoker.ProviderName()),
		logger.Bool("liveModel", invoker.Live()),
		logger.String("store", cfg.StoreDriver),
		logger.Int("capacity", cfg.RecordCapacity),
	)

	return app.New(dir, store, prompt.NewCompiler(), invoker,
		interpret.New(interpret.WithLogger(log.Named("interpret"))),
		app.WithLogger(log.Named("service")),
		app.WithBatchConcurrency(cfg.BatchConcurrency),
		app.WithMaxBatchSize(cfg.MaxBatchSize),
		app.WithMaxHistoryLimit(cfg.MaxHistoryLimit),
	), nil
}
