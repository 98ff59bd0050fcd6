// Package httpapi exposes the listing workflows over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/listing_marketplace/internal/journal"
	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
	"github.com/R3E-Network/listing_marketplace/internal/metrics"
	"github.com/R3E-Network/listing_marketplace/internal/middleware"
	"github.com/R3E-Network/listing_marketplace/pkg/logger"
)

// Keyring resolves account names from requests to signers.
type Keyring interface {
	Signer(name string) (mp.Signer, error)
}

// Options configures a Server.
type Options struct {
	Runs           journal.Store
	Metrics        *metrics.Collector
	Logger         *logger.Logger
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
	WatchInterval  time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server serves the marketplace API.
type Server struct {
	ctrl    *mp.Controller
	keyring Keyring
	runs    journal.Store
	metrics *metrics.Collector
	log     *logger.Logger
	opts    Options
	limiter *middleware.RateLimiter

	upgrader websocket.Upgrader
}

// NewServer creates a server.
func NewServer(ctrl *mp.Controller, keyring Keyring, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 2 * time.Second
	}
	s := &Server{
		ctrl:    ctrl,
		keyring: keyring,
		runs:    opts.Runs,
		metrics: opts.Metrics,
		log:     log,
		opts:    opts,
		limiter: middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst, log),
	}
	cors := middleware.NewCORS(opts.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || cors.Allows(origin)
		},
	}
	return s
}

// Handler returns the routed API with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging(s.log), middleware.Metrics(s.metrics))

	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.limiter.Middleware)
	api.HandleFunc("/listings", s.createListing).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id:[0-9]+}", s.getListing).Methods(http.MethodGet)
	api.HandleFunc("/listings/{id:[0-9]+}", s.closeListing).Methods(http.MethodDelete)
	api.HandleFunc("/listings/{id:[0-9]+}/buy", s.buyUnits).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id:[0-9]+}/watch", s.watchListing).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.listRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.getRun).Methods(http.MethodGet)

	return middleware.NewCORS(s.opts.AllowedOrigins).Middleware(r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	done := make(chan struct{})
	defer close(done)
	s.limiter.StartCleanup(10*time.Minute, done)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
