// Package main provides the matric CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orneryd/matric/pkg/config"
	"github.com/orneryd/matric/pkg/embed"
	"github.com/orneryd/matric/pkg/matric"
	"github.com/orneryd/matric/pkg/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "matric",
		Short: "Matric - self-linking knowledge base backend",
		Long: `Matric is a knowledge-base backend whose notes are embedded into
vector space and automatically cross-linked by semantic similarity.
Expensive work (embedding, linking, revision, tagging) runs on a
priority job queue drained by background workers.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("matric v%s (%s)\n", version, commit)
		},
	})

	var configPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the matric server",
		Long:  "Start the HTTP API, the job workers, and the linking engine.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: auto-discover matric.yaml)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	if configPath != "" {
		log.Info().Str("path", configPath).Msg("loaded config file")
	}

	dbConfig := &matric.Config{
		AutoPipeline:    cfg.Jobs.AutoPipeline,
		Workers:         cfg.Jobs.Workers,
		PollInterval:    cfg.Jobs.PollInterval,
		JobTimeout:      cfg.Jobs.JobTimeout,
		MinLinks:        cfg.Graph.MinLinks,
		MaxLinks:        cfg.Graph.MaxLinks,
		OverfetchFactor: cfg.Graph.Overfetch,
		MinSimilarity:   cfg.Graph.MinSimilarity,
		KeepPruned:      cfg.Graph.KeepPruned,
		SyncWrites:      cfg.Storage.SyncWrites,
		Logger:          log,
	}
	if cfg.Embedding.Enabled {
		embedConfig := embed.DefaultOllamaConfig()
		embedConfig.APIURL = cfg.Embedding.APIURL
		embedConfig.Model = cfg.Embedding.Model
		embedConfig.Dimensions = cfg.Embedding.Dimensions
		embedConfig.Timeout = cfg.Embedding.Timeout
		dbConfig.Embedder = embed.NewOllama(embedConfig)
		log.Info().
			Str("model", cfg.Embedding.Model).
			Str("api_url", cfg.Embedding.APIURL).
			Msg("embedding provider configured")
	} else {
		log.Warn().Msg("embedding disabled, notes will not be auto-linked")
	}

	db, err := matric.Open(cfg.Storage.DataDir, dbConfig)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	log.Info().Str("data_dir", cfg.Storage.DataDir).Msg("database open")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(db, log)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func buildLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var log zerolog.Logger
	if cfg.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}
