package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
)

// SetupRoutes builds the read API router.
func SetupRoutes(statsHandler *StatsService, health HealthChecker, log logger.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger(log))

	router.HandleFunc("/stats/{practice}", statsHandler.GetStats).Methods(http.MethodGet)
	router.HandleFunc("/healthz", Healthz(health)).Methods(http.MethodGet)

	return router
}

// SetupOpsRoutes builds the router served by the scheduled ingestion daemon.
func SetupOpsRoutes(health HealthChecker, metricsHandler http.Handler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", Healthz(health)).Methods(http.MethodGet)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(log logger.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info(r.Context(), "request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", rec.status),
				logger.String("duration", time.Since(start).String()))
		})
	}
}
