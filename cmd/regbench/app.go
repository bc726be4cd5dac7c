package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/llm"
	"github.com/joseph-ayodele/regbench/internal/llm/gemini"
	"github.com/joseph-ayodele/regbench/internal/llm/openai"
	"github.com/joseph-ayodele/regbench/internal/metrics"
	"github.com/joseph-ayodele/regbench/internal/pipeline"
	"github.com/joseph-ayodele/regbench/internal/repository"
	"github.com/joseph-ayodele/regbench/internal/retry"
	"github.com/joseph-ayodele/regbench/internal/storage"
)

// options holds the persistent flags.
type options struct {
	configFile  string
	envFile     string
	logLevel    string
	logFormat   string
	store       string
	workers     int
	metricsFile string
}

// app is everything a subcommand needs, built once per invocation.
type app struct {
	cfg     *common.Config
	logger  *slog.Logger
	repo    repository.Repository
	metrics *metrics.Metrics
	proc    *pipeline.Processor
	out     io.Writer
}

// loadConfig layers config sources and applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command, o *options) (*common.Config, error) {
	cfg, err := common.LoadConfigWith(common.LoadOptions{EnvFile: o.envFile, YAMLFile: o.configFile})
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if flags.Changed("store") {
		cfg.Store.Backend = o.store
	}
	if flags.Changed("workers") {
		cfg.Benchmark.Workers = o.workers
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.TextfilePath = o.metricsFile
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg common.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newOracle picks the provider client. Every stage shares it; stages pass
// their own model on each request.
func newOracle(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Oracle, error) {
	rc := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	switch cfg.Provider {
	case common.ProviderGemini:
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Retry:       rc,
		}, logger)
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, "gemini client", err)
		}
		return c, nil
	default:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			Retry:       rc,
		}, logger), nil
	}
}

// noOracle backs commands that never reach a model.
var noOracle = llm.OracleFunc(func(context.Context, llm.Request) (string, error) {
	return "", common.NewAppError(common.CodeConfig, "this command does not call the oracle", common.ErrInvalidInput)
})

// run builds the app, hands it to fn and tears it down. needOracle also
// validates the LLM settings.
func run(cmd *cobra.Command, o *options, needOracle bool, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	if needOracle {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateStore()
	}
	if err != nil {
		return err
	}

	ctx, _ := common.NewRunID(cmd.Context())
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
	ctx = common.WithLogger(ctx, logger)
	log := common.LoggerFrom(ctx, logger)
	log.Debug("regbench.start", "command", cmd.Name(), "store", cfg.Store.Backend)

	repo, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Warn("regbench.repository.close_failed", "error", err)
		}
	}()

	oracle := llm.Oracle(noOracle)
	if needOracle {
		if oracle, err = newOracle(ctx, cfg.LLM, logger); err != nil {
			return err
		}
	}
	output, err := storage.NewLocal(cfg.OutputDir)
	if err != nil {
		return common.NewAppError(common.CodeConfig, "output dir", err)
	}

	m := metrics.New()
	a := &app{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		metrics: m,
		proc:    pipeline.Build(cfg, repo, oracle, output, m, logger),
		out:     cmd.OutOrStdout(),
	}
	runErr := fn(ctx, a)

	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			log.Warn("regbench.metrics.write_failed", "path", path, "error", err)
		}
	}
	return runErr
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
