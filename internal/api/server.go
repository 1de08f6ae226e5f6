// Package api serves the operator HTTP surface: on-demand checks, settings,
// interval polling, stored state and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"onbid_bot/internal/metrics"
	"onbid_bot/internal/model"
	"onbid_bot/internal/scheduler"
	"onbid_bot/internal/storage"
)

// Runner runs check cycles on demand.
type Runner interface {
	Run(ctx context.Context, keyword string) (*model.RunResult, error)
	Last() *model.RunResult
}

// Options configures the HTTP server.
type Options struct {
	Addr string
	// Keyword is used when neither the request nor the settings name one.
	Keyword string
	// CheckTimeout bounds /api/check, which runs a whole cycle inline.
	CheckTimeout time.Duration
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	runner  Runner
	store   storage.Storage
	metrics *metrics.Metrics
	log     *slog.Logger
	opts    Options

	router     http.Handler
	httpServer *http.Server
	now        func() time.Time

	// base outlives requests; polling cycles run under it.
	base   context.Context
	cancel context.CancelFunc

	// settingsMu serializes read-modify-write of the settings record.
	settingsMu sync.Mutex

	mu      sync.Mutex
	polling *scheduler.Handle
}

// NewServer creates a Server.
func NewServer(runner Runner, store storage.Storage, m *metrics.Metrics, log *slog.Logger, opts Options) *Server {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 5 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner:  runner,
		store:   store,
		metrics: m,
		log:     log,
		opts:    opts,
		now:     time.Now,
		base:    base,
		cancel:  cancel,
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.opts.CheckTimeout + 10*time.Second,
	}
	s.log.Info("http server listening", "addr", s.opts.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops polling, waits for an in-flight polling cycle within ctx
// and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	h := s.polling
	s.polling = nil
	s.mu.Unlock()

	if h != nil {
		h.Stop()
		done := make(chan struct{})
		go func() {
			h.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.log.Warn("polling cycle still running at shutdown")
		}
	}
	s.cancel()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ResumePolling restarts interval polling when the saved settings say it
// was running before the process stopped.
func (s *Server) ResumePolling(ctx context.Context) error {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	if !st.IsRunning {
		return nil
	}
	_, err = s.startPolling(ctx)
	return err
}
