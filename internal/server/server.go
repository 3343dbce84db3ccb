// Package server exposes a health store over HTTP.
//
// Paths mirror store addresses without the authority:
//
//	GET|POST|PUT|DELETE /{category}/{metric}[/{id}]
//	POST                /{category}/{metric}/bulk
//	GET|POST|PUT|DELETE /access[/{caller}[/{metric}]]
//	GET|POST|DELETE     /profile
//	POST                /batch
//	GET                 /debug/dump
//
// The caller identity is taken from the X-Caller header. Claiming the
// owner, who manages the access policy, additionally requires the owner
// token as a bearer credential; without a configured token the owner
// cannot be claimed over HTTP at all. Denied operations succeed with empty
// results, the same as in-process calls.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/healthstore/internal/healthstore"
)

// CallerHeader carries the caller identity of a request.
const CallerHeader = "X-Caller"

// codeUnauthorized marks a request claiming the owner without its token.
const codeUnauthorized = "UNAUTHORIZED"

// DefaultListen is the listen address used when none is configured.
const DefaultListen = "127.0.0.1:8787"

const shutdownTimeout = 5 * time.Second

// Server serves one open store.
type Server struct {
	hs         *healthstore.HealthStore
	logger     *slog.Logger
	mux        *chi.Mux
	ownerToken []byte
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for requests and failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithOwnerToken sets the bearer token a request must carry to act as the
// owner. An empty token keeps the owner identity unavailable.
func WithOwnerToken(token string) Option {
	return func(s *Server) { s.ownerToken = []byte(token) }
}

// New returns a server for hs with all routes configured.
func New(hs *healthstore.HealthStore, opts ...Option) *Server {
	s := &Server{hs: hs, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/debug/dump", s.dump)

	r.Group(func(r chi.Router) {
		r.Use(s.requireCaller)

		r.Post("/batch", s.batch)

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", s.query)
			r.Post("/", s.insert)
			r.Put("/", s.update)
			r.Delete("/", s.delete)
		})

		r.Route("/access", func(r chi.Router) {
			s.mount(r, "/")
			s.mount(r, "/{caller}")
			s.mount(r, "/{caller}/{metric}")
		})

		r.Route("/{category}/{metric}", func(r chi.Router) {
			s.mount(r, "/")
			s.mount(r, "/{id}")
			r.Post("/bulk", s.bulkInsert)
		})
	})
	return r
}

// mount registers the four record operations on pattern.
func (s *Server) mount(r chi.Router, pattern string) {
	r.Get(pattern, s.query)
	r.Post(pattern, s.insert)
	r.Put(pattern, s.update)
	r.Delete(pattern, s.delete)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "authority", s.hs.Router().Authority())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("request",
					"method", r.Method,
					"path", r.URL.Path,
					"caller", r.Header.Get(CallerHeader),
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
