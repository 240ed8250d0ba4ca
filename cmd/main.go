package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-chat/internal/config"
	"document-chat/internal/db"
	"document-chat/internal/embedding"
	"document-chat/internal/helper"
	"document-chat/internal/llmservice"
	"document-chat/internal/parser"
	"document-chat/internal/rag"
	"document-chat/internal/server"
	"document-chat/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	serve := flag.Bool("serve", false, "Run the HTTP server")
	dir := flag.String("dir", "", "Ingest all documents from this directory")
	query := flag.String("query", "", "One-shot question to answer")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config not loaded, using defaults")
		cfg = config.Default()
	}

	ctx := context.Background()
	pipeline, gateway, err := buildPipeline(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing pipeline")
	}

	switch {
	case *dir != "":
		ingestDirectory(ctx, pipeline, *dir)
	case *query != "":
		answerOnce(ctx, pipeline, *query)
	case *serve:
		runServer(ctx, pipeline, gateway, cfg)
	default:
		flag.Usage()
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*rag.Pipeline, *embedding.Gateway, error) {
	gateway, err := embedding.NewOllamaGateway(&cfg.EmbedLLM, cfg.RAG.Dimension)
	if err != nil {
		return nil, nil, err
	}
	generator, err := llmservice.NewGenerator(&cfg.GenLLM)
	if err != nil {
		return nil, nil, err
	}

	var store rag.Store
	var newStore func(ctx context.Context) (rag.Store, error)

	switch cfg.Store.Backend {
	case "postgres":
		bunDB := db.Connect(&cfg.Store.Database)
		if err := db.Init(ctx, bunDB); err != nil {
			return nil, nil, err
		}
		pgStore := db.NewStore(bunDB, cfg.RAG.Dimension)
		store = pgStore
		newStore = func(ctx context.Context) (rag.Store, error) {
			return pgStore.NewStaging(ctx)
		}
	default:
		flat := vectorstore.New(cfg.RAG.Dimension, cfg.RAG.IndexPath, cfg.RAG.MetadataPath)
		if _, err := os.Stat(cfg.RAG.IndexPath); err == nil {
			log.Info().Msg("Loading existing vector store...")
			if err := flat.Restore(); err != nil {
				log.Warn().Err(err).Msg("could not load persisted store, starting empty")
			}
		} else {
			log.Info().Msg("No existing vector store found. Ingest documents first.")
		}
		store = rag.NewMemoryStore(flat)
		newStore = func(context.Context) (rag.Store, error) {
			return rag.NewMemoryStore(
				vectorstore.New(cfg.RAG.Dimension, cfg.RAG.IndexPath, cfg.RAG.MetadataPath),
			), nil
		}
	}

	return rag.New(gateway, generator, store, newStore, cfg), gateway, nil
}

func ingestDirectory(ctx context.Context, pipeline *rag.Pipeline, dir string) {
	docs, warnings, err := parser.ExtractDir(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading documents directory")
	}
	for _, warning := range warnings {
		log.Warn().Msg(warning)
	}
	if len(docs) == 0 {
		log.Fatal().Str("dir", dir).Msg("No supported documents found")
	}

	report, err := pipeline.IngestReplace(ctx, docs)
	if err != nil {
		log.Fatal().Err(err).Msg("Error during ingestion")
	}
	report.Warnings = append(warnings, report.Warnings...)
	helper.PrettyPrint(report)
}

func answerOnce(ctx context.Context, pipeline *rag.Pipeline, query string) {
	result, err := pipeline.Answer(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering query")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", result.Query)

	log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, source := range result.Sources {
		fmt.Printf("%d. %s (score: %.3f) - %s\n", source.Rank, source.Source, source.Distance, source.Preview)
	}
	fmt.Println()

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", result.Answer)
}

func runServer(ctx context.Context, pipeline *rag.Pipeline, gateway *embedding.Gateway, cfg *config.Config) {
	if err := helper.CreateFolder(cfg.RAG.DocumentsDir); err != nil {
		log.Fatal().Err(err).Msg("Error creating documents directory")
	}

	if models, err := gateway.CheckHealth(ctx); err != nil {
		log.Warn().Err(err).Msg("Ollama is not reachable; chat requests will be refused until it is")
	} else {
		log.Info().Strs("models", models).Msg("Ollama is running")
	}

	srv := server.New(pipeline, gateway, cfg)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("HTTP server stopped")
	}
}
