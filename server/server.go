package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Installer completes marketplace installations and exposes the stored sessions.
// *client.Client implements it.
type Installer interface {
	ExchangeCode(ctx context.Context, code string, userType oauthmodel.UserType) (*sessions.Record, error)
	Sessions() sessions.Store
}

// Server receives the HighLevel install redirect and serves health and metrics endpoints.
type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	installer Installer
	gatherer  prometheus.Gatherer
	logger    zerolog.Logger
}

type Option func(*Server)

func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

// WithGatherer sets the registry /metrics is served from. Defaults to prometheus.DefaultGatherer.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(installer Installer, options ...Option) *Server {
	s := &Server{
		env:       "DEV",
		mux:       http.NewServeMux(),
		installer: installer,
		gatherer:  prometheus.DefaultGatherer,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes returns the registered route patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.logger.Debug().Str("method", method).Str("path", path).Msg("route registered")
	}
}
