// Package api exposes the session service and catalog ingestion over HTTP
// and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/mastery"
	"github.com/p-n-ai/pai-mastery/internal/selection"
	"github.com/p-n-ai/pai-mastery/internal/session"
)

const maxBodyBytes = 4 << 20

// API serves the v1 endpoints.
type API struct {
	sessions *session.Service
	catalog  *catalog.Catalog
	items    catalog.Saver
}

// New creates the API handlers. Ingested batches are persisted through
// items before they are served; items may be nil when attempts are not
// durable either.
func New(sessions *session.Service, c *catalog.Catalog, items catalog.Saver) *API {
	return &API{sessions: sessions, catalog: c, items: items}
}

// Register adds the v1 routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/catalog/items", a.handleIngest)
	mux.HandleFunc("POST /v1/sessions", a.handleStartSession)
	mux.HandleFunc("GET /v1/sessions/ws", a.handleSessionStream)
	mux.HandleFunc("POST /v1/sessions/{id}/responses", a.handleSubmitResponse)
	mux.HandleFunc("DELETE /v1/sessions/{id}", a.handleEndSession)
	mux.HandleFunc("GET /v1/learners/{id}/mastery", a.handleGetMastery)
}

type ingestResponse struct {
	Items       int `json:"items"`
	NewConcepts int `json:"new_concepts"`
	Total       int `json:"total"`
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	records, err := catalog.DecodeBatch(data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := a.catalog.IngestAndSave(r.Context(), records, a.items)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{Items: res.Items, NewConcepts: res.NewConcepts, Total: a.catalog.Len()})
}

type startRequest struct {
	LearnerID string   `json:"learner_id"`
	Concepts  []string `json:"concepts,omitempty"`
}

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	started, err := a.sessions.StartSession(r.Context(), req.LearnerID, req.Concepts...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

// responseRequest is a learner answer on the wire. Latency is in
// milliseconds.
type responseRequest struct {
	ItemID    string  `json:"item_id"`
	Score     float64 `json:"score"`
	LatencyMS int64   `json:"latency_ms,omitempty"`
}

func (req responseRequest) response() session.Response {
	return session.Response{
		ItemID:  req.ItemID,
		Score:   req.Score,
		Latency: time.Duration(req.LatencyMS) * time.Millisecond,
	}
}

func (a *API) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := a.sessions.SubmitResponse(r.Context(), r.PathValue("id"), req.response())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sum, err := a.sessions.EndSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type masteryResponse struct {
	LearnerID string             `json:"learner_id"`
	Mastery   map[string]float64 `json:"mastery"`
	States    []mastery.State    `json:"states"`
}

func (a *API) handleGetMastery(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	states, err := a.sessions.MasteryStates(r.Context(), learnerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := masteryResponse{LearnerID: learnerID, Mastery: make(map[string]float64, len(states)), States: states}
	for _, st := range states {
		resp.Mastery[st.ConceptID] = st.P
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrLearnerNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrDuplicateItem),
		errors.Is(err, session.ErrSessionConflict),
		errors.Is(err, session.ErrOutOfSequence):
		return http.StatusConflict
	case errors.Is(err, selection.ErrExhausted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrInvalidItem),
		errors.Is(err, session.ErrInvalidScore),
		errors.Is(err, session.ErrInvalidLearner),
		errors.Is(err, attempt.ErrInvalidAttempt):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
