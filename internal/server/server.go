// Package server assembles the forgewire serve command: the demo components
// on a chi router, the shared-state broker and its websocket hub, and the
// Prometheus endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/forgewire"
	forgewirechi "github.com/pthm/forgewire/adapters/chi"
	"github.com/pthm/forgewire/internal/config"
	"github.com/pthm/forgewire/internal/demo"
	"github.com/pthm/forgewire/lib/shared"
)

// WatchPath is where the shared-state hub accepts websocket subscribers.
const WatchPath = "/_watch"

// Server is a configured, not yet listening, demo server.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *forgewire.Registry
	broker   *shared.Broker
	hub      *shared.Hub
	metrics  *prometheus.Registry
	store    *demo.Store
	closers  []func() error
	router   chi.Router
}

// New builds a server from a validated configuration.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	keys, _ := cfg.Keys()
	consistency, _ := cfg.Consistency()

	store, closeStore, err := openStore(ctx, cfg.Shared, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		hub:     shared.NewHub(shared.WithHubLogger(logger.Named("hub"))),
		metrics: prometheus.NewRegistry(),
		store:   demo.NewStore("Buy groceries", "Review pull request", "Write documentation"),
		closers: []func() error{closeStore},
	}
	s.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.broker, err = shared.NewBroker(store,
		shared.WithConsistency(consistency),
		shared.WithNotifier(s.hub),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	opts := append(demo.Options(s.store),
		forgewire.WithPrefix(cfg.Prefix),
		forgewire.WithPreviousKeys(keys[1:]...),
		forgewire.WithLogger(logger.Named("wire")),
		forgewire.WithBroker(s.broker),
		forgewire.WithMetrics(s.metrics),
	)
	s.registry = forgewire.NewRegistry(keys[0], opts...)
	s.registry.Add(demo.Definitions()...)

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		demo.Handler(s.registry, watchURL(req), func(err error) {
			s.logger.Error("render page", zap.Error(err))
		}).ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{Registry: s.metrics}))
	r.Method(http.MethodGet, WatchPath, s.hub)
	forgewirechi.Mount(r, s.registry)
	return r
}

func watchURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + WatchPath
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the component registry.
func (s *Server) Registry() *forgewire.Registry {
	return s.registry
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", s.cfg.Addr), zap.String("prefix", s.registry.Prefix()))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the shared store.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
