// Package health exposes an operator-facing HTTP status server reporting
// the gateway connection's liveness, independent of the bot's own event
// traffic.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Status is a point-in-time snapshot of the gateway connection.
type Status struct {
	Connected    bool      `json:"connected"`
	SessionID    string    `json:"session_id,omitempty"`
	LastEventSN  uint64    `json:"last_event_sn"`
	LastEventAt  time.Time `json:"last_event_at,omitempty"`
	ReconnectCount int     `json:"reconnect_count"`
}

// StatusProvider is implemented by whatever owns the live connection
// state; the bot package's runner satisfies it.
type StatusProvider interface {
	Status() Status
}

// Server serves /healthz (liveness, always 200 once the process is up)
// and /statusz (a JSON dump of the current Status).
type Server struct {
	addr     string
	provider StatusProvider
	logger   *slog.Logger
	http     *http.Server
}

// NewServer builds a Server bound to addr (e.g. ":8080"), reporting
// provider's Status at /statusz.
func NewServer(addr string, provider StatusProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{addr: addr, provider: provider, logger: logger}

	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/statusz", s.handleStatusz).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("health request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatusz(w http.ResponseWriter, _ *http.Request) {
	status := s.provider.Status()
	w.Header().Set("Content-Type", "application/json")
	if !status.Connected {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Run starts serving and blocks until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health server listening", "addr", s.addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
