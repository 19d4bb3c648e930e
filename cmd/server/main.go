package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stayscout/hotel-search/internal/config"
	"github.com/stayscout/hotel-search/internal/handler"
	"github.com/stayscout/hotel-search/internal/repository"
	"github.com/stayscout/hotel-search/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	logger.Info("starting hotel search engine",
		"version", Version, "build_time", BuildTime, "git_commit", GitCommit)

	gin.SetMode(cfg.Server.GinMode)

	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	if minPrice, maxPrice, err := repo.PriceBounds(context.Background()); err != nil {
		logger.Warn("failed to read catalog price bounds", "error", err)
	} else {
		logger.Info("connected to PostgreSQL", "min_price", minPrice, "max_price", maxPrice)
	}

	oracle := service.NewOracleClient(&cfg.Oracle, logger)
	var embedder service.Embedder
	var rewriter service.QueryRewriter
	if oracle.IsEnabled() {
		embedder = oracle
		rewriter = oracle
		logger.Info("oracle client initialized",
			"api_base", cfg.Oracle.APIBase,
			"chat_model", cfg.Oracle.ChatModel,
			"embedding_model", cfg.Oracle.EmbeddingModel)
	} else {
		logger.Warn("oracle disabled, searches run keyword-only; set ORACLE_API_KEY to enable semantic ranking and context resolution")
	}

	relaxer, err := service.NewRelaxationPlanner(repo, logger)
	if err != nil {
		logger.Error("failed to initialize relaxation planner", "error", err)
		os.Exit(1)
	}
	defer relaxer.Close()

	cache := service.NewEmbeddingCache(cfg.Ranking.CacheCapacity)
	ranker, err := service.NewSemanticRanker(embedder, cache, cfg.Ranking, logger)
	if err != nil {
		logger.Error("failed to initialize ranker", "error", err)
		os.Exit(1)
	}
	defer ranker.Close()

	searchService, err := service.NewSearchService(
		repo,
		service.NewFilterExtractor(logger),
		service.NewContextResolver(rewriter, logger),
		relaxer,
		ranker,
		cfg.Search,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize search service", "error", err)
		os.Exit(1)
	}

	searchHandler := handler.NewSearchHandler(searchService, cfg.Search.TopK, cfg.Search.MaxLimit)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.AllowedOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "hotel-search-engine",
			"version": Version,
		})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/search", searchHandler.Search)
		apiV1.GET("/hotels/:id", searchHandler.GetHotel)
		apiV1.GET("/cities", searchHandler.ListCities)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
