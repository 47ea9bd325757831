package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dohpipeline/internal/checkpoint"
	"github.com/JonMunkholm/dohpipeline/internal/pipeline"
)

// maxRunRequestSize bounds the POST /api/runs body.
const maxRunRequestSize = 1 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   s.runner.Slots(),
	})
}

// TableInfo describes one destination table and its load checkpoint.
type TableInfo struct {
	Table      string             `json:"table"`
	Columns    []string           `json:"columns"`
	BatchSize  int                `json:"batch_size"`
	Upsert     bool               `json:"upsert"`
	Checkpoint *checkpoint.Marker `json:"checkpoint,omitempty"`
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	store := s.catalog.Checkpoints()

	var tables []TableInfo
	for _, cfg := range s.catalog.Tables() {
		info := TableInfo{
			Table:     cfg.Table,
			Columns:   cfg.Columns,
			BatchSize: cfg.BatchSize,
			Upsert:    cfg.Upsert,
		}

		m, err := store.Get(r.Context(), checkpoint.LoadKey(cfg.Table))
		switch {
		case err == nil:
			info.Checkpoint = &m
		case !errors.Is(err, checkpoint.ErrNotFound):
			respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		tables = append(tables, info)
	}

	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	markers, err := s.catalog.Checkpoints().List(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if markers == nil {
		markers = []checkpoint.Marker{}
	}
	writeJSON(w, http.StatusOK, markers)
}

type runRequest struct {
	Reload bool `json:"reload"`
}

// handleStartRun starts a background run. The reload flag comes from the
// JSON body or the reload query parameter.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRunRequestSize))
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "REQ001", "could not read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondMessage(w, http.StatusBadRequest, "REQ002", "request body must be JSON like {\"reload\": true}")
			return
		}
	}
	if q := r.URL.Query().Get("reload"); q != "" {
		reload, err := strconv.ParseBool(q)
		if err != nil {
			respondMessage(w, http.StatusBadRequest, "REQ003", "reload must be true or false")
			return
		}
		req.Reload = reload
	}

	run, err := s.runner.Start(req.Reload)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		respondError(w, r, err, http.StatusConflict)
		return
	}
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/api/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	run, ok := s.runner.Get(id)
	if !ok {
		respondMessage(w, http.StatusNotFound, "RUN404", "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
