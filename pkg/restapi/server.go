package restapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cuemby/sitekeeper/pkg/coordinator"
	"github.com/cuemby/sitekeeper/pkg/journal"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/metrics"
)

// Server is the Master's HTTP adapter: §6's /operations surface plus
// /metrics, /health, /ready, /live for operability.
type Server struct {
	coord   *coordinator.Coordinator
	journal *journal.Journal
	log     zerolog.Logger
	router  chi.Router

	http *http.Server
}

// NewServer builds the router. Call ListenAndServe (or use Router
// directly, e.g. in tests) to start serving.
func NewServer(coord *coordinator.Coordinator, j *journal.Journal) *Server {
	s := &Server{
		coord:   coord,
		journal: j,
		log:     log.WithComponent("restapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/operations", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/cancel", s.handleCancel)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/live", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	s.router = r
	return s
}

// Router returns the http.Handler, for embedding or testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks serving on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
