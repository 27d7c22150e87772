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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/conversation"
	"github.com/parleyhq/parley/credits"
	"github.com/parleyhq/parley/internal/activity"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/telemetry"
	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/store"
	"github.com/parleyhq/parley/stream"
)

// Server wires the full service: storage, redis, model callers, the
// conversation manager, the billing pipeline, and the two HTTP listeners.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers

	db       *store.Store
	mongo    *mongo.Client
	redis    *redis.Client
	activity conversation.ActivityStore
	registry *prometheus.Registry

	httpSrv    *http.Server
	metricsSrv *http.Server
	errCh      chan error
}

// NewServer builds all components from the configuration.
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) (*Server, error) {
	db, err := store.Open(cfg.Database.Dialect, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	st := store.New(db, logger)

	var transcripts conversation.TranscriptStore = st
	var mongoClient *mongo.Client
	if cfg.Database.TranscriptBackend == "mongo" {
		mongoClient, err = mongo.Connect(options.Client().ApplyURI(cfg.Database.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		coll := mongoClient.Database(cfg.Database.MongoDatabase).Collection(cfg.Database.MongoCollection)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mts, err := store.NewMongoTranscriptStore(ctx, coll)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("init mongo transcripts: %w", err)
		}
		transcripts = mts
		logger.Info("using mongo transcript backend",
			zap.String("database", cfg.Database.MongoDatabase),
			zap.String("collection", cfg.Database.MongoCollection))
	}

	var redisClient *redis.Client
	var act conversation.ActivityStore
	var prices credits.PriceStore = st
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		act = activity.NewRedisStore(redisClient, 0, logger)
		prices = credits.NewCachedPriceStore(st, redisClient, 0, logger)
	} else {
		act = activity.NewMemoryStore()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector("parley", registry)

	callers := llm.NewCallerRegistry()
	for _, p := range cfg.Providers {
		callers.Register(p.Name, llm.NewOpenAICompatCaller(llm.OpenAICompatConfig{
			Provider: p.Name,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
		}, logger))
		if p.Default {
			if err := callers.SetDefault(p.Name); err != nil {
				return nil, err
			}
		}
	}
	if names := callers.List(); len(names) > 0 {
		if _, err := callers.Default(); err != nil {
			_ = callers.SetDefault(names[0])
		}
	}

	mgrCfg := conversation.ManagerConfig{
		SupervisorProvider: cfg.Conversation.SupervisorProvider,
		SupervisorModel:    cfg.Conversation.SupervisorModel,
		DefaultMaxTurns:    cfg.Conversation.DefaultMaxTurns,
		MaxConcurrentRuns:  cfg.Conversation.MaxConcurrentRuns,
		GenerateRate:       rate.Limit(cfg.Conversation.GenerateRate),
	}
	manager := conversation.NewManager(mgrCfg, st, transcripts, act, callers, collector, logger)

	accountant := credits.NewAccountant(prices, st, nil, collector, logger)
	pipeline := stream.NewPipeline(transcripts, accountant, st, act, collector, logger)
	service := stream.NewService(manager, pipeline, st, logger)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
		db:        st,
		mongo:     mongoClient,
		redis:     redisClient,
		activity:  act,
		registry:  registry,
		errCh:     make(chan error, 2),
	}
	s.buildHTTPServers(service)
	return s, nil
}

func (s *Server) buildHTTPServers(service *stream.Service) {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/conversations/stream", stream.NewSSEHandler(service, s.logger))
	mux.Handle("GET /v1/conversations/ws", stream.NewWSHandler(service, s.logger))
	mux.HandleFunc("POST /v1/conversations/{id}/stop", s.handleStop)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:     mux,
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// WriteTimeout stays zero: SSE and WebSocket responses are
		// open-ended.
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.metricsSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		Handler: metricsMux,
	}
}

// handleStop clears a conversation's liveness flag. The run notices at
// its next iteration boundary and winds down without a terminal event.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "conversation id required", http.StatusBadRequest)
		return
	}
	if err := s.activity.Deactivate(r.Context(), id); err != nil {
		s.logger.Error("stop failed", zap.String("conversation_id", id), zap.Error(err))
		http.Error(w, "stop failed", http.StatusInternalServerError)
		return
	}
	s.logger.Info("conversation stop requested", zap.String("conversation_id", id))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","version":%q}`, Version)
}

// Start launches both listeners.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()
	go func() {
		s.logger.Info("metrics server listening", zap.String("addr", s.metricsSrv.Addr))
		if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()
	return nil
}

// WaitForShutdown blocks until a termination signal or listener failure,
// then shuts everything down gracefully.
func (s *Server) WaitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case v := <-sig:
		s.logger.Info("shutdown signal received", zap.String("signal", v.String()))
	case err := <-s.errCh:
		s.logger.Error("listener failed", zap.Error(err))
	}
	s.Shutdown()
}

// Shutdown stops the listeners and releases external resources.
func (s *Server) Shutdown() {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	if err := s.metricsSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics shutdown", zap.Error(err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("redis close", zap.Error(err))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Disconnect(ctx); err != nil {
			s.logger.Warn("mongo disconnect", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	s.logger.Info("shutdown complete")
}
