// Package api serves the read-only status API: health, Prometheus metrics,
// proposal summaries and the current rules, plus a few token-protected
// endpoints for staff tooling.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/metrics"
	"github.com/oooz/oooz-bot/src/rules"
	"github.com/oooz/oooz-bot/src/sugestie"
	"github.com/oooz/oooz-bot/src/warns"
)

// Proposals is the part of the sugestie engine the API reads.
type Proposals interface {
	List(ctx context.Context, filter sugestie.Filter) []*sugestie.Proposal
	Get(ctx context.Context, id string) (*sugestie.Proposal, error)
	Update(ctx context.Context, id string) error
}

type Rules interface {
	Current(ctx context.Context) (rules.Version, error)
}

type Warnings interface {
	Warnings(ctx context.Context, user string) []warns.Warning
	ActiveCount(ctx context.Context, user string) int
}

type Deps struct {
	Proposals Proposals
	Rules     Rules
	Warnings  Warnings
	Metrics   *metrics.Metrics
	Config    config.API
	Now       func() time.Time
	Logger    *slog.Logger
}

type Server struct {
	deps   Deps
	log    *slog.Logger
	engine *gin.Engine

	ipLimit      *RateLimiter
	subjectLimit *RateLimiter

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		deps:         deps,
		log:          deps.Logger.With("component", "api"),
		ipLimit:      NewRateLimiter(120, time.Minute),
		subjectLimit: NewRateLimiter(60, time.Minute),
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestID(), s.accessLog())
	s.attachRoutes(s.engine)
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on Config.Listen and serves in the background. It does
// nothing when Listen is empty.
func (s *Server) Start(context.Context) error {
	addr := s.deps.Config.Listen
	if addr == "" {
		s.log.Info("api disabled")
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.srv, s.ln = srv, ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped", "error", err)
		}
	}()
	s.log.Info("api listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, nil when not serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop shuts the server down, waiting up to ten seconds for open requests.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("api shutdown", "error", err)
	}
}
