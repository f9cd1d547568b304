// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/yjing-lab/pulsegraph/internal/config"
	"github.com/yjing-lab/pulsegraph/internal/logging"
	"github.com/yjing-lab/pulsegraph/internal/metrics"
	"github.com/yjing-lab/pulsegraph/internal/pattern"
	"github.com/yjing-lab/pulsegraph/internal/ratelimit"
	"github.com/yjing-lab/pulsegraph/internal/realtime"
	"github.com/yjing-lab/pulsegraph/internal/scoring"
	"github.com/yjing-lab/pulsegraph/internal/store"
	"github.com/yjing-lab/pulsegraph/internal/timestep"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and the analysis components behind it.
type Server struct {
	cfg        *config.Config
	corpus     store.Corpus
	index      timestep.Index
	classifier pattern.Classifier
	transform  scoring.Transform
	baseline   *scoring.Baseline
	hub        *realtime.Hub
	limiter    *ratelimit.Limiter
	db         *sql.DB // nil if using file shards
	router     *gin.Engine
	httpSrv    *http.Server
	logger     *slog.Logger
	cancelRun  context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCorpus sets a custom transaction corpus (for testing)
func WithCorpus(c store.Corpus) Option {
	return func(s *Server) {
		s.corpus = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.Env),
		index:  cfg.TimeIndex(),
	}

	// Apply options first (may set corpus/logger)
	for _, opt := range opts {
		opt(s)
	}

	s.classifier = pattern.NewClassifier(cfg.RiskThreshold)
	s.transform = scoring.NewTransform().
		WithScorecard(cfg.ScoreBase, cfg.ScorePDO).
		WithWeights(cfg.WeightProb, cfg.WeightAmount, cfg.WeightLogOdds)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise day shards)
	if s.corpus == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}

			// Configure connection pool
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)

			// Test connection
			if err := db.Ping(); err != nil {
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}

			s.db = db
			s.corpus = store.NewPostgresStore(db, s.index)
			s.logger.Info("using PostgreSQL corpus", "url", maskDSN(cfg.DatabaseURL))
		} else {
			shards, err := store.NewShardStore(cfg.DataDir, s.index,
				store.WithLogger(logging.Component(s.logger, "store")))
			if err != nil {
				return nil, fmt.Errorf("failed to open shard directory: %w", err)
			}
			s.corpus = shards
			s.logger.Info("using day-sharded CSV corpus", "dir", cfg.DataDir)

			if cfg.IsDevelopment() {
				seeded, err := shards.SeedIfEmpty(300)
				if err != nil {
					s.logger.Warn("failed to seed sample data", "error", err)
				} else if seeded {
					s.logger.Info("seeded sample transaction data", "rows", 300)
				}
			}
		}
	}

	// Cached amount baseline for score normalization
	s.baseline = scoring.NewBaseline(s.corpus, logging.Component(s.logger, "scoring")).
		WithPercentile(cfg.AmountPercentile)

	// Alert hub for WebSocket streaming
	s.hub = realtime.NewHub(s.logger)
	s.logger.Info("realtime alerts enabled")

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Rate limiting
	s.limiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.limiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Query ID
	s.router.Use(s.queryIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) queryIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing query ID (from load balancer, etc.)
		queryID := c.GetHeader("X-Query-ID")
		if queryID == "" {
			queryID = generateQueryID()
		}

		// Add to context
		ctx := logging.WithQueryID(c.Request.Context(), queryID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Query-ID", queryID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time alert streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	v1 := s.router.Group("/api/v1")
	{
		// Network views
		v1.GET("/network/ego", s.egoNetworkHandler)
		v1.GET("/network/high-risk", s.highRiskNetworkHandler)

		// Structured intent queries
		v1.POST("/transactions/query", s.transactionQueryHandler)

		// Risk scoring
		v1.GET("/risk/scorecard", s.scorecardHandler)
		v1.POST("/risk/score", s.compositeScoreHandler)
		v1.GET("/risk/baseline", s.baselineHandler)
	}
}

// -----------------------------------------------------------------------------
// Health & info handlers
// -----------------------------------------------------------------------------

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	// Storage reachability. An empty or missing day is a recoverable
	// condition, not an outage.
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["storage"] = "unhealthy"
		} else {
			checks["storage"] = "healthy"
		}
	} else {
		var missing *store.ShardNotFoundError
		_, err := s.corpus.LoadShard(ctx, 0)
		switch {
		case err == nil, errors.As(err, &missing), errors.Is(err, store.ErrNoDataAvailable):
			checks["storage"] = "healthy"
		default:
			checks["storage"] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "PulseGraph",
		"description": "Transaction fraud network analytics",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start alert hub
	go s.hub.Run(runCtx)

	// Sample database pool stats into Prometheus
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines (hub, stats collector)
	if s.cancelRun != nil {
		s.cancelRun()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutine
	if s.limiter != nil {
		s.limiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Hub returns the alert hub so callers can broadcast out-of-band events.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateQueryID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
