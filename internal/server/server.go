package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/agent"
	"github.com/spigell/screener/internal/pipeline"
	"github.com/spigell/screener/internal/resume"
	"github.com/spigell/screener/internal/threads"
)

const (
	defaultAddr     = ":8080"
	shutdownTimeout = 10 * time.Second
	genericFailure  = "Something went wrong, please try again."
)

// Screener is the part of the pipeline exposed over HTTP.
type Screener interface {
	Screen(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Converse(ctx context.Context, msg pipeline.Message) (*agent.Reply, error)
	Stats() pipeline.Snapshot
	Describe() []pipeline.Status
}

type ThreadReader interface {
	Load(ctx context.Context, id string) (*threads.Thread, []threads.Turn, error)
}

type Config struct {
	Addr string `mapstructure:"addr"`
	// PublicDir holds generated documents served under resume.PublicPrefix.
	// Empty disables static serving.
	PublicDir string `mapstructure:"public-dir"`
}

type Server struct {
	engine   *gin.Engine
	screener Screener
	threads  ThreadReader
	addr     string
	logger   *zap.Logger
}

// New builds the router. store may be nil, in which case the thread
// history endpoint answers 404.
func New(cfg Config, screener Screener, store ThreadReader, logger *zap.Logger) (*Server, error) {
	if screener == nil {
		return nil, errors.New("screener is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		engine:   engine,
		screener: screener,
		threads:  store,
		addr:     cfg.Addr,
		logger:   logger,
	}

	engine.GET("/healthz", s.health)

	api := engine.Group("/api")
	api.POST("/screen", s.screen)
	api.POST("/threads/:id/messages", s.message)
	api.GET("/threads/:id", s.thread)

	if cfg.PublicDir != "" {
		engine.Static(resume.PublicPrefix, cfg.PublicDir)
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(started)),
		)
	}
}
