// Package api exposes the client's UI triggers over HTTP for the browser
// map front end: feature listing, filter toggles, and the reporting
// workflow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cityfix/cityfix/internal/filter"
	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/render"
	"github.com/cityfix/cityfix/internal/report"
	"github.com/cityfix/cityfix/internal/severity"
	"github.com/cityfix/cityfix/internal/store"
)

// Loader fetches the remote feature collection. *wfs.Client implements it.
type Loader interface {
	GetFeatures(ctx context.Context) ([]models.Feature, error)
}

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	engine   *filter.Engine
	workflow *report.Workflow
	loader   Loader
}

// NewServer creates a new API server.
func NewServer(s store.Store, e *filter.Engine, w *report.Workflow, l Loader) *Server {
	return &Server{
		store:    s,
		engine:   e,
		workflow: w,
		loader:   l,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/features", s.listFeatures)
	mux.HandleFunc("GET /api/v1/features/{id}", s.getFeature)
	mux.HandleFunc("POST /api/v1/features/load", s.loadFeatures)

	mux.HandleFunc("GET /api/v1/filters", s.getFilters)
	mux.HandleFunc("POST /api/v1/filters/{dimension}/{tag}", s.toggleFilter)

	mux.HandleFunc("GET /api/v1/report", s.getSession)
	mux.HandleFunc("POST /api/v1/report/arm", s.armReport)
	mux.HandleFunc("POST /api/v1/report/location", s.pickLocation)
	mux.HandleFunc("POST /api/v1/report/draft", s.setDraft)
	mux.HandleFunc("POST /api/v1/report/submit", s.submitReport)
	mux.HandleFunc("POST /api/v1/report/cancel", s.cancelReport)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// featureOut is the wire shape of one feature for the UI.
type featureOut struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Status      string  `json:"status"`
	Severity    int     `json:"severity"`
	Tier        string  `json:"tier"`
	Description string  `json:"description"`
	Timestamp   string  `json:"timestamp"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Visible     bool    `json:"visible"`
	Popup       string  `json:"popup,omitempty"`
}

func (s *Server) featureOut(e *store.Entry, popup bool) featureOut {
	out := featureOut{
		ID:          e.Issue.ID,
		Category:    string(e.Issue.Category),
		Status:      string(e.Issue.Status),
		Severity:    e.Issue.Severity,
		Tier:        string(severity.Classify(e.Issue.Severity)),
		Description: e.Issue.Description,
		Timestamp:   e.Issue.Timestamp,
		Lat:         e.Issue.Latitude,
		Lon:         e.Issue.Longitude,
		Visible:     s.engine.Attached(e.Issue.ID),
	}
	if popup {
		if m, ok := e.Handle.(*render.Marker); ok {
			out.Popup = m.Popup()
		}
	}
	return out
}

// --- Features ---

func (s *Server) listFeatures(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]featureOut, len(entries))
	for i, e := range entries {
		out[i] = s.featureOut(e, false)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getFeature(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.featureOut(entry, true))
}

func (s *Server) loadFeatures(w http.ResponseWriter, r *http.Request) {
	feats, err := s.loader.GetFeatures(r.Context())
	if err != nil {
		slog.Error("bulk load failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not load features: "+err.Error())
		return
	}

	loaded, skipped, err := s.store.BulkLoad(r.Context(), feats, func(i models.Issue) render.Handle {
		return render.NewMarker(i)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.engine.Recompute(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("features loaded", "loaded", loaded, "skipped", skipped)
	writeJSON(w, http.StatusOK, map[string]int{"loaded": loaded, "skipped": skipped})
}

// --- Filters ---

func (s *Server) getFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Enabled())
}

func (s *Server) toggleFilter(w http.ResponseWriter, r *http.Request) {
	dim := filter.Dimension(r.PathValue("dimension"))
	tag := r.PathValue("tag")

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.engine.Toggle(r.Context(), dim, tag, body.Enabled); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Enabled())
}

// --- Reporting workflow ---

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.workflow.State())
}

func (s *Server) armReport(w http.ResponseWriter, r *http.Request) {
	if err := s.workflow.Arm(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.workflow.State())
}

func (s *Server) pickLocation(w http.ResponseWriter, r *http.Request) {
	var c report.Coordinate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// A pick outside an armed session is ignored, mirroring map clicks
	// that arrive while reporting is not active.
	accepted := s.workflow.Pick(c)
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": accepted,
		"session":  s.workflow.State(),
	})
}

func (s *Server) setDraft(w http.ResponseWriter, r *http.Request) {
	var d report.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.workflow.SetDraft(d); err != nil {
		if errors.Is(err, report.ErrNotReporting) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.workflow.State())
}

func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	issue, err := s.workflow.Submit(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, report.ErrNoLocation):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, report.ErrSubmissionInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, report.ErrCancelled):
			writeError(w, http.StatusConflict, err.Error())
		default:
			// Transport or in-band service failure: the session stays
			// Located so the UI can offer a retry.
			slog.Error("submission failed", "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	entry, err := s.store.Get(r.Context(), issue.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.featureOut(entry, false))
}

func (s *Server) cancelReport(w http.ResponseWriter, r *http.Request) {
	s.workflow.Cancel()
	writeJSON(w, http.StatusOK, s.workflow.State())
}
