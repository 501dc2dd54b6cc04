package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"google.golang.org/genai"

	"docuexplore/internal/api"
	"docuexplore/internal/auth"
	"docuexplore/internal/config"
	"docuexplore/internal/logger"
	"docuexplore/internal/redis"
	"docuexplore/internal/service/assistant"
	"docuexplore/internal/service/docai"
	"docuexplore/internal/service/search"
	"docuexplore/internal/session"
	"docuexplore/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv(config.ConfigEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Fatal("create gemini client", "error", err)
	}
	documents, err := docai.New(genaiClient, docai.Options{
		Model:             cfg.Gemini.Model,
		Temperature:       cfg.Gemini.Temperature,
		TopP:              cfg.Gemini.TopP,
		TopK:              cfg.Gemini.TopK,
		MaxOutputTokens:   cfg.Gemini.MaxOutputTokens,
		PollInterval:      cfg.PollInterval(),
		ProcessingTimeout: cfg.ProcessingTimeout(),
		TempDir:           cfg.BasicConfig.UploadDir,
	}, log)
	if err != nil {
		log.Fatal("init document client", "error", err)
	}
	documents.StartStagedFileCleaner(ctx, docai.DefaultStagedCleanupInterval, docai.DefaultStagedFileTTL)

	titleModel, err := assistant.NewTitleModel(ctx, cfg, genaiClient)
	if err != nil {
		log.Fatal("init title model", "provider", cfg.Title.Provider, "error", err)
	}

	provider, err := newSearchProvider(ctx, cfg)
	if err != nil {
		log.Fatal("init search provider", "provider", cfg.Search.Provider, "error", err)
	}

	svc := session.Services{
		Documents: documents,
		Titles:    assistant.NewTitleSynthesizer(titleModel, log),
		Search:    search.NewSearcher(provider, cfg.Search.MaxRetries, cfg.SearchBackoffBase(), log),
	}

	var (
		store  session.Store
		rdb    *redis.Client
		health func(context.Context) error
	)
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("create redis client", "error", err)
		}
		defer rdb.Close()
		store = session.NewRedisStore(rdb, cfg.SessionTTL())
		health = rdb.Ping
	} else {
		store = session.NewMemoryStore(cfg.SessionTTL())
	}

	manager := worker.NewManager(svc, store, worker.Config{
		QueueSize: cfg.BasicConfig.QueueSize,
		IdleTTL:   cfg.SessionTTL(),
	}, log)
	if rdb != nil {
		manager.EnableInvalidation(ctx, rdb)
	}
	manager.StartReaper(ctx, time.Minute)

	authService := auth.NewService(cfg.SessionTTL())
	handlers := api.NewHandler(manager, authService, cfg.MaxUploadBytes(), health, log)

	if cfg.Log.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	if len(cfg.BasicConfig.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.BasicConfig.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", authService.CSRFHeaderName()},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.BasicConfig.ServerAddress,
		Handler: router,
	}
	go func() {
		log.Info("server listening", "addr", srv.Addr, "search_provider", provider.Name(), "title_provider", cfg.Title.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	manager.Shutdown()
}

// newSearchProvider picks the related-articles backend named in the config.
func newSearchProvider(ctx context.Context, cfg *config.Config) (search.Provider, error) {
	switch cfg.Search.Provider {
	case "duckduckgo":
		return search.NewDuckDuckGoProvider(ctx, cfg.Search.MaxResults, cfg.SearchTimeout())
	case "google":
		apiKey := os.Getenv("GOOGLE_API_KEY")
		engineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
		if apiKey == "" || engineID == "" {
			return nil, errors.New("google search requires GOOGLE_API_KEY and GOOGLE_SEARCH_ENGINE_ID")
		}
		return search.NewGoogleProvider(ctx, apiKey, engineID, cfg.Search.MaxResults)
	default:
		return search.NewTavilyProvider(cfg.Search.BaseURL, cfg.TavilyAPIKey, cfg.Search.MaxResults, cfg.SearchTimeout())
	}
}
