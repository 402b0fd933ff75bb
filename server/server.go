package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"moorecollect/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// NewRouter wires every endpoint of the collection front end. CORS wraps
// the router so preflight requests are answered for every path.
func NewRouter(h *Handler) http.Handler {
	router := mux.NewRouter()
	router.Use(requestLogMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/titles", h.ListTitlesHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions", h.StartSessionHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{contributor}", h.EndSessionHandler).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{contributor}/title", h.SelectTitleHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{contributor}/current", h.CurrentHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{contributor}/next", h.NextHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{contributor}/submit", h.SubmitHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{contributor}/candidates", h.CandidatesHandler).Methods(http.MethodGet)
	api.HandleFunc("/contributors/{contributor}/duration", h.DurationHandler).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.StatsHandler).Methods(http.MethodGet)
	api.HandleFunc("/audio", h.AudioHandler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return corsMiddleware(router)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request served",
			logger.String("requestId", id),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("elapsed", time.Since(start)))
	})
}

// Start serves router on addr until SIGINT/SIGTERM, then drains in-flight
// requests.
func Start(ctx context.Context, addr string, router http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logger.String("addr", addr))
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

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
