package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"vendor-chat-backend/internal/cache"
	"vendor-chat-backend/internal/chat"
	"vendor-chat-backend/internal/compose"
	"vendor-chat-backend/internal/config"
	"vendor-chat-backend/internal/db"
	"vendor-chat-backend/internal/intent"
	"vendor-chat-backend/internal/llm"
	"vendor-chat-backend/internal/logging"
	"vendor-chat-backend/internal/search"
	"vendor-chat-backend/internal/server"
	"vendor-chat-backend/internal/store"
	"vendor-chat-backend/internal/vendor"
	"vendor-chat-backend/internal/websearch"
)

// app is every collaborator built once for the process.
type app struct {
	orchestrator  *chat.Orchestrator
	collaborators map[string]bool
	checks        map[string]server.HealthChecker
	closers       []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(cfg config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{collaborators: map[string]bool{}, checks: map[string]server.HealthChecker{}}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	lex, err := intent.LoadLexicon(cfg.LexiconFile)
	if err != nil {
		return nil, err
	}
	prompts, err := llm.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	oa := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	model := llm.New(oa, prompts, cfg.Model, cfg.ModerationModel, logging.Component(logger, "llm"))
	a.collaborators["llm"] = cfg.OpenAIAPIKey != ""

	var database *db.DB
	var st chat.Store
	switch {
	case cfg.DatabaseURL != "":
		database, err = db.New(cfg.DatabaseDriver(), cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		a.checks["database"] = database
		st = store.NewDatabaseStore(database, lex.RegionalTerms)
		a.collaborators["database"] = true
	case cfg.CatalogFile != "":
		ms, err := store.LoadCatalogFile(cfg.CatalogFile, lex.RegionalTerms)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("file", cfg.CatalogFile).Int("vendors", ms.Len()).Msg("vendor catalogue loaded")
		st = ms
		a.collaborators["catalog"] = true
	default:
		logger.Warn().Msg("neither DB_URL nor VENDOR_CATALOG_FILE is set; only vector metadata and web search can answer vendor questions")
	}

	vectors, err := buildVectors(cfg, database, search.NewOpenAIEmbedder(oa, cfg.EmbeddingModel), a)
	if err != nil {
		return nil, err
	}

	web := buildWebSearch(cfg, logger, a)

	resolver := vendor.NewResolver(vectors, st, web,
		vendor.WithTopK(cfg.VectorTopK),
		vendor.WithWebResults(cfg.WebSearchMaxResults),
		vendor.WithLogger(logging.Component(logger, "resolver")),
	)

	composeOpts := []compose.Option{compose.WithLogger(logging.Component(logger, "compose"))}
	if cfg.NarrateWithLLM {
		composeOpts = append(composeOpts, compose.WithNarrator(model))
	}

	a.orchestrator = chat.New(chat.Options{
		Classifier: intent.NewClassifier(lex),
		Resolver:   resolver,
		Composer:   compose.New(composeOpts...),
		Store:      st,
		Moderator:  model,
		General:    model,
		InlineHits: cfg.InlineHitsJSON,
		Logger:     logging.Component(logger, "chat"),
	})
	return a, nil
}

func buildVectors(cfg config.Config, database *db.DB, embedder search.Embedder, a *app) (vendor.VectorSearcher, error) {
	switch strings.ToLower(cfg.VectorBackend) {
	case "qdrant":
		q, err := search.NewQdrant(cfg.QdrantAddress, cfg.QdrantCollection, embedder)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, q.Close)
		a.collaborators["vector_search"] = true
		return q, nil
	case "pgvector":
		if database == nil || database.Driver() != db.DriverPostgres {
			return nil, fmt.Errorf("VECTOR_BACKEND=pgvector needs a postgres DB_URL")
		}
		a.collaborators["vector_search"] = true
		return search.NewPGVector(database, embedder), nil
	case "none", "":
		return search.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}
}

// buildWebSearch returns nil when no API key is configured. A Redis that
// cannot be reached disables caching rather than the search.
func buildWebSearch(cfg config.Config, logger zerolog.Logger, a *app) vendor.WebSearcher {
	if cfg.WebSearchAPIKey == "" {
		return nil
	}
	var c cache.Client = cache.Noop{}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, web search results will not be cached")
		} else {
			c = rc
			a.closers = append(a.closers, rc.Close)
			a.collaborators["cache"] = true
		}
	}
	a.collaborators["web_search"] = true
	return websearch.New(websearch.Options{
		Endpoint: cfg.WebSearchURL,
		APIKey:   cfg.WebSearchAPIKey,
		RPS:      cfg.WebSearchRPS,
		Cache:    c,
		CacheTTL: cfg.WebSearchCacheTTL,
		Logger:   logging.Component(logger, "websearch"),
	})
}
