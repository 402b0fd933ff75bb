package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"moorecollect/config"
	"moorecollect/core/assign"
	"moorecollect/core/keys"
	"moorecollect/core/ledger"
	"moorecollect/core/stats"
	"moorecollect/logger"
	"moorecollect/storage"

	"github.com/gorilla/mux"
)

// Messages shown for expected empty or misconfigured states.
const (
	MsgNoAudio        = "no audio available"
	MsgNoSession      = "no session for this contributor, start one first"
	MsgConfigStorage  = "configure storage variables"
	MsgStorageFailure = "storage unavailable, try again"
)

// Ledger is the read side the handlers need.
type Ledger interface {
	TotalMinutes(ctx context.Context, contributor string) (float64, error)
	AllAnnotations(ctx context.Context) ([]ledger.Annotation, error)
}

// Presigner issues time-limited audio URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Handler serves the collection API. Sessions are per-process and live
// only in memory, keyed by contributor.
type Handler struct {
	assigner   *assign.Assigner
	ledger     Ledger
	presigner  Presigner
	presignTTL time.Duration

	mu       sync.Mutex
	sessions map[string]assign.Session
}

// NewHandler creates a handler.
func NewHandler(a *assign.Assigner, l Ledger, p Presigner, presignTTL time.Duration) *Handler {
	return &Handler{
		assigner:   a,
		ledger:     l,
		presigner:  p,
		presignTTL: presignTTL,
		sessions:   make(map[string]assign.Session),
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SessionPayload is returned by every session endpoint.
type SessionPayload struct {
	Session  assign.Session `json:"session"`
	View     assign.View    `json:"view"`
	AudioURL string         `json:"audioUrl,omitempty"`
}

type startRequest struct {
	Contributor string `json:"contributor" validate:"required,contributor,max=100"`
}

type selectTitleRequest struct {
	Title string `json:"title" validate:"required"`
}

type submitRequest struct {
	Transcription string `json:"transcription"`
	Traduction    string `json:"traduction"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

func writeOK(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logger.ErrorField(err))
	}
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func classify(err error) (int, string) {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, br.msg
	case errors.Is(err, keys.ErrInvalidContributor):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, assign.ErrNotStarted):
		return http.StatusNotFound, MsgNoSession
	case errors.Is(err, assign.ErrUnknownTitle), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, MsgNoAudio
	case errors.Is(err, assign.ErrNoTitle), errors.Is(err, assign.ErrNoSegment):
		return http.StatusConflict, err.Error()
	case errors.Is(err, config.ErrMissingStorage):
		return http.StatusServiceUnavailable, MsgConfigStorage
	}
	return http.StatusBadGateway, MsgStorageFailure
}

func (h *Handler) session(contributor string) (assign.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[contributor]
	return s, ok
}

func (h *Handler) save(s assign.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.Contributor] = s
}

// respond stores s and writes the view, turning ErrNothingLeft into a
// normal response.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, s assign.Session, view assign.View, err error) {
	if err != nil && !errors.Is(err, assign.ErrNothingLeft) {
		writeError(w, err)
		return
	}
	h.save(s)

	payload := SessionPayload{Session: s, View: view}
	message := ""
	switch {
	case errors.Is(err, assign.ErrNothingLeft):
		message = MsgNoAudio
	case view.State == assign.TitleExhausted:
		message = "every segment of this title is done, pick another"
	}
	if view.Segment != "" {
		url, perr := h.presigner.PresignedURL(r.Context(), view.Segment, h.presignTTL)
		if perr != nil {
			logger.Warn("presign failed", logger.String("key", view.Segment), logger.ErrorField(perr))
		}
		payload.AudioURL = url
	}
	writeOK(w, status, payload, message)
}

func (h *Handler) ListTitlesHandler(w http.ResponseWriter, r *http.Request) {
	titles, err := h.assigner.Overview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	msg := ""
	if len(titles) == 0 {
		msg = MsgNoAudio
	}
	writeOK(w, http.StatusOK, titles, msg)
}

// StartSessionHandler opens (or restarts) a session and positions it on the
// first open segment.
func (h *Handler) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[startRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.assigner.ChangeContributor(req.Contributor)
	if err != nil {
		writeError(w, err)
		return
	}
	s, view, err := h.assigner.Next(r.Context(), s)
	h.respond(w, r, http.StatusCreated, s, view, err)
}

func (h *Handler) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	contributor := mux.Vars(r)["contributor"]
	h.mu.Lock()
	delete(h.sessions, contributor)
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CandidatesHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(mux.Vars(r)["contributor"])
	if !ok {
		writeError(w, assign.ErrNotStarted)
		return
	}
	titles, err := h.assigner.CandidateTitles(r.Context(), s)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := ""
	if len(titles) == 0 {
		msg = MsgNoAudio
		titles = []string{}
	}
	writeOK(w, http.StatusOK, titles, msg)
}

func (h *Handler) SelectTitleHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(mux.Vars(r)["contributor"])
	if !ok {
		writeError(w, assign.ErrNotStarted)
		return
	}
	req, err := decodeJSON[selectTitleRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, view, err := h.assigner.SelectTitle(r.Context(), s, req.Title)
	h.respond(w, r, http.StatusOK, s, view, err)
}

func (h *Handler) CurrentHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(mux.Vars(r)["contributor"])
	if !ok {
		writeError(w, assign.ErrNotStarted)
		return
	}
	s, view, err := h.assigner.Current(r.Context(), s)
	h.respond(w, r, http.StatusOK, s, view, err)
}

func (h *Handler) NextHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(mux.Vars(r)["contributor"])
	if !ok {
		writeError(w, assign.ErrNotStarted)
		return
	}
	s, view, err := h.assigner.Next(r.Context(), s)
	h.respond(w, r, http.StatusOK, s, view, err)
}

// SubmitHandler saves the annotation for the current segment. Both texts
// are free-form and may be empty.
func (h *Handler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(mux.Vars(r)["contributor"])
	if !ok {
		writeError(w, assign.ErrNotStarted)
		return
	}
	req, err := decodeJSON[submitRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, view, err := h.assigner.Submit(r.Context(), s, req.Transcription, req.Traduction)
	h.respond(w, r, http.StatusOK, s, view, err)
}

func (h *Handler) DurationHandler(w http.ResponseWriter, r *http.Request) {
	contributor := mux.Vars(r)["contributor"]
	if err := keys.ValidateContributor(contributor); err != nil {
		writeError(w, err)
		return
	}
	minutes, err := h.ledger.TotalMinutes(r.Context(), contributor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"contributor": contributor, "minutes": minutes}, "")
}

func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.AllAnnotations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	msg := ""
	if len(records) == 0 {
		msg = "no annotations yet"
	}
	writeOK(w, http.StatusOK, stats.Summarize(records), msg)
}

func (h *Handler) AudioHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if _, ok := keys.ParseSegmentKey(key); !ok {
		writeError(w, badRequest{"key must be a segment key"})
		return
	}
	url, err := h.presigner.PresignedURL(r.Context(), key, h.presignTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"key": key, "url": url}, "")
}
