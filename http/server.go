// Package http serves the prediction form, the JSON API and the live
// websocket endpoint.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type ServerConfig struct {
	Addr           string
	Timeout        time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "localhost:8501",
		Timeout:        30 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// NewHandler builds the routed, middleware-wrapped handler for api.
func NewHandler(config ServerConfig, api *API) http.Handler {
	mux := http.NewServeMux()
	api.Register(mux)

	chain := Chain(
		RecoveryMiddleware(api.logger),
		LoggerMiddleware(api.logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)
	return chain(mux)
}

func NewServer(config ServerConfig, api *API) *Server {
	return &Server{
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           NewHandler(config, api),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: api.logger,
	}
}

// Start blocks until the server stops; a clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", fmt.Sprintf("ws://%s/ws/predict", s.server.Addr)))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
