package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
)

// StatsReader is the read side of the statistics store.
type StatsReader interface {
	GetStats(ctx context.Context, practice string, date time.Time) ([]models.StatView, error)
	LatestDate(ctx context.Context, practice string) (time.Time, bool, error)
}

type StatsService struct {
	DBManager StatsReader
	log       logger.Logger
}

func NewStatsService(dbManager StatsReader, log logger.Logger) *StatsService {
	if log == nil {
		log = logger.NewNop()
	}
	return &StatsService{DBManager: dbManager, log: log}
}

// StatsResponse is the body of GET /stats/{practice}.
type StatsResponse struct {
	Practice string            `json:"practice"`
	Fecha    string            `json:"fecha"`
	Regions  []models.StatView `json:"regions"`
	Total    *models.StatView  `json:"total,omitempty"`
}

func (h *StatsService) GetStats(w http.ResponseWriter, r *http.Request) {
	practice := strings.TrimSpace(mux.Vars(r)["practice"])
	if practice == "" {
		http.Error(w, "Practice is required in the URL path /stats/{practice}", http.StatusBadRequest)
		return
	}

	var date time.Time
	dateStr := r.URL.Query().Get("fecha")
	if dateStr == "" {
		latest, ok, err := h.DBManager.LatestDate(r.Context(), practice)
		if err != nil {
			h.log.Error(r.Context(), "failed to query latest date", logger.String("practice", practice), logger.Error(err))
			http.Error(w, "Failed to retrieve statistics", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "No statistics for practice", http.StatusNotFound)
			return
		}
		date = latest
	} else {
		var err error
		date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			http.Error(w, "Invalid 'fecha' format. Use YYYY-MM-DD.", http.StatusBadRequest)
			return
		}
	}

	views, err := h.DBManager.GetStats(r.Context(), practice, date)
	if err != nil {
		h.log.Error(r.Context(), "failed to query stats", logger.String("practice", practice), logger.Error(err))
		http.Error(w, "Failed to retrieve statistics", http.StatusInternalServerError)
		return
	}
	if len(views) == 0 {
		http.Error(w, "No statistics for practice and date", http.StatusNotFound)
		return
	}

	resp := StatsResponse{Practice: views[0].Practice, Fecha: date.Format("2006-01-02"), Regions: []models.StatView{}}
	for i := range views {
		if views[i].RegionID == models.TotalRegionID {
			total := views[i]
			resp.Total = &total
			continue
		}
		resp.Regions = append(resp.Regions, views[i])
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthChecker reports whether a component is healthy, with details for the response body.
type HealthChecker interface {
	Healthy() (bool, any)
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func() (bool, any)

func (f HealthFunc) Healthy() (bool, any) { return f() }

func Healthz(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, details := true, any(nil)
		if checker != nil {
			ok, details = checker.Healthy()
		}
		status, code := "ok", http.StatusOK
		if !ok {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "details": details})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
