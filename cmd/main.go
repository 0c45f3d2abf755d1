package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"document-chat/internal/config"
	"document-chat/internal/db"
	"document-chat/internal/embedding"
	"document-chat/internal/llmservice"
	"document-chat/internal/rag"
	"document-chat/internal/vectorindex"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	var cfgPath string
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config file")

	root.AddCommand(
		initCMD(&cfgPath),
		ingestCMD(&cfgPath),
		askCMD(&cfgPath),
		chatsCMD(&cfgPath),
		historyCMD(&cfgPath),
		deleteCMD(&cfgPath),
		describeCMD(&cfgPath),
		imagesCMD(&cfgPath),
		reindexCMD(&cfgPath),
		searchCMD(&cfgPath),
		textCMD(&cfgPath),
	)
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

type app struct {
	cfg *config.Config
	db  *bun.DB
	svc *rag.Service
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	log.Debug().Str("path", path).Str("backend", cfg.RAG.Backend).Msg("Loaded config")
	return cfg, nil
}

func openDB(cfg *config.Config) (*bun.DB, error) {
	sqldb, err := db.ConnectDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db.NewDB(sqldb, cfg.Database.Debug), nil
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	bunDB, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	store, err := db.NewVectorStore(cfg.RAG.Backend, bunDB, cfg.EmbedLLM.Dimension)
	if err != nil {
		bunDB.Close()
		return nil, err
	}
	embedder, err := embedding.New(cfg.EmbedLLM)
	if err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	chat, err := llmservice.New(cfg.ChatLLM)
	if err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("error initializing chat model: %w", err)
	}

	captions := vectorindex.NewFlatIndex(db.CaptionRows{DB: bunDB}, nil)
	svc := rag.New(db.NewRepository(bunDB), store, captions, embedder, chat, cfg.RAG)
	return &app{cfg: cfg, db: bunDB, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing database")
	}
}

func withApp(cfgPath *string, run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(*cfgPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}
