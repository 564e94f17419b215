package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/NamanBalaji/chunkdl/internal/logger"
	"github.com/NamanBalaji/chunkdl/internal/progress"
)

// ProgressSource supplies the most recent progress snapshot.
type ProgressSource interface {
	Latest() progress.Snapshot
}

// NewRouter exposes health, progress and Prometheus endpoints.
func NewRouter(src ProgressSource, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no active download"})
			return
		}

		writeJSON(w, http.StatusOK, src.Latest())
	})

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		l := logger.With("monitor")
		l.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logger.With("monitor")
		l.Warn().Err(err).Msg("failed to encode response")
	}
}
