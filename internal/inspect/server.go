// Package inspect serves a small HTTP API over a running panel: the tracked
// state, the selection commands and pass-through RPC calls.
package inspect

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bhandras/devpanel/internal/panel"
	"github.com/bhandras/devpanel/pkg/logger"
)

const (
	defaultCallTimeout = 10 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// Server exposes one panel over HTTP.
type Server struct {
	panel       *panel.Panel
	callTimeout time.Duration
	origins     []string
	router      *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithCallTimeout bounds pass-through RPC calls.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithAllowedOrigins sets the CORS allow list. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New builds the HTTP router for p.
func New(p *panel.Panel, opts ...Option) *Server {
	s := &Server{
		panel:       p,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.origins
	}
	router.Use(cors.New(corsCfg))
	router.Use(LoggingMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "devpanel inspect API")
	})

	v1 := router.Group("/v1")
	{
		v1.GET("/state", s.State)
		v1.GET("/instances", s.Instances)
		v1.GET("/instances/:id/plugins", s.Plugins)
		v1.GET("/selection", s.Selection)
		v1.POST("/selection/instance", s.SelectInstance)
		v1.POST("/selection/plugin", s.SelectPlugin)
		v1.GET("/view", s.View)
		v1.GET("/logs", s.Logs)
		v1.DELETE("/logs", s.ClearLogs)
		v1.POST("/reset", s.Reset)
		v1.GET("/kinds", s.Kinds)
		v1.POST("/rpc/:kind", s.Call)
	}

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("inspect: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
