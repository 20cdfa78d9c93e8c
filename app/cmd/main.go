package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ragkb/app/agent"
	"ragkb/app/config"
	"ragkb/app/server"
	"ragkb/loader"
	"ragkb/types"
)

var (
	cfgFile  string
	envFile  string
	corpus   string
	preview  int
	verbose  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ragkb",
	Short: "Question answering over a single ingested text corpus",
	Long: `ragkb ingests one text corpus, splits it into overlapping token windows,
embeds them into a vector index and answers questions grounded in the
closest passages.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ingest a corpus file and answer one question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd, strings.Join(args, " "))
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Print how a corpus file is split into chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChunk(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	askCmd.Flags().StringVarP(&corpus, "file", "f", "", "corpus file (.txt, .md, .pdf)")
	askCmd.MarkFlagRequired("file")
	chunkCmd.Flags().StringVarP(&corpus, "file", "f", "", "corpus file (.txt, .md, .pdf)")
	chunkCmd.MarkFlagRequired("file")
	chunkCmd.Flags().IntVar(&preview, "preview", 60, "characters of each chunk to print")

	rootCmd.AddCommand(serveCmd, askCmd, chunkCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, nil, fmt.Errorf("error loading %s: %w", envFile, err)
	}
	required := rootCmd.PersistentFlags().Changed("config")
	cfg, err := config.Load(cfgFile, required)
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func buildPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*agent.Pipeline, func(), error) {
	providers := cfg.Providers()
	if !providers.IsAvailable() {
		logger.Warn(cfg.MissingCredentials() + " is missing; ingest and ask will fail until it is configured")
	}

	chunker, err := cfg.Chunker(logger)
	if err != nil {
		return nil, nil, err
	}
	index, closeIndex, err := cfg.OpenIndex(ctx, providers.Embedder, logger)
	if err != nil {
		return nil, nil, err
	}

	pipeline := agent.NewPipeline(index, providers, chunker, agent.Options{
		TopK:    cfg.Retrieval.TopK,
		Timeout: cfg.Provider.Timeout,
	}, logger)
	return pipeline, closeIndex, nil
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	pipeline, closeIndex, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	converter := cfg.Converter(logger)
	opts := server.Options{BodyLimitMB: cfg.Server.BodyLimitMB}
	if cfg.Loader.SourceDir != "" {
		opts.Watcher, err = loader.NewWatcher(loader.WatcherConfig{
			SourceDir:      cfg.Loader.SourceDir,
			ArchiveDir:     cfg.Loader.ArchiveDir,
			BadDir:         cfg.Loader.BadDir,
			MonitoringTime: cfg.Loader.MonitoringTime,
		}, converter, func(ctx context.Context, text string) (int, error) {
			res, err := pipeline.Ingest(ctx, text)
			return res.ChunkCount, err
		}, logger)
		if err != nil {
			return err
		}
	}

	s := server.NewServer(cfg.Server.Addr, pipeline, converter, opts, logger)
	err = s.Run(ctx)
	logger.Info("received shutdown signal, server stopped")
	return err
}

func runAsk(cmd *cobra.Command, question string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	pipeline, closeIndex, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	text, err := cfg.Converter(logger).ToText(ctx, corpus)
	if err != nil {
		return err
	}
	res, err := pipeline.Ingest(ctx, text)
	if err != nil {
		return explain(err)
	}
	logger.Debug("corpus ready", "chunks", res.ChunkCount)

	answer, err := pipeline.Ask(ctx, question)
	if err != nil {
		return explain(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer.Answer)
	return nil
}

func runChunk(cmd *cobra.Command) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	chunker, err := cfg.Chunker(logger)
	if err != nil {
		return err
	}

	text, err := cfg.Converter(logger).ToText(cmd.Context(), corpus)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	chunks := types.NewChunks(chunker.Chunk(text))
	fmt.Fprintf(out, "tokenizer: %s, size: %d, overlap: %d\n", chunker.Tokenizer().Name(), chunker.Size(), chunker.Overlap())
	fmt.Fprintf(out, "tokens: %d, chunks: %d\n", loader.CountTokens(chunker.Tokenizer(), text), len(chunks))
	for _, c := range chunks {
		p := []rune(strings.Join(strings.Fields(c.Text), " "))
		if preview >= 0 && len(p) > preview {
			p = append(p[:preview], '…')
		}
		fmt.Fprintf(out, "%s\t%d tokens\t%s\n", c.ID, loader.CountTokens(chunker.Tokenizer(), c.Text), string(p))
	}
	return nil
}

// explain adds the missing setting to configuration errors.
func explain(err error) error {
	var cfgErr *types.ConfigurationError
	if errors.As(err, &cfgErr) {
		return fmt.Errorf("%w (set the provider credentials in the config or environment)", err)
	}
	return err
}
