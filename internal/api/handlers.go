// ABOUTME: HTTP handlers over the sync engine's streak, profile and history operations
// ABOUTME: Maps engine errors onto status codes and encodes JSON responses
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/harper/om/internal/core"
	"github.com/harper/om/internal/models"
)

// UserHeader carries the caller's user id
const UserHeader = "X-User-ID"

type ctxKey int

const sessionKey ctxKey = iota

// Handler serves the /v1 API
type Handler struct {
	engine   *core.Engine
	sessions *core.Sessions
	log      zerolog.Logger
}

// NewHandler creates an API handler
func NewHandler(engine *core.Engine, sessions *core.Sessions, log zerolog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		sessions: sessions,
		log:      log.With().Str("component", "api").Logger(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type streakResponse struct {
	UserID string `json:"user_id"`
	Streak int    `json:"streak"`
}

type profileResponse struct {
	UserID    string          `json:"user_id"`
	Onboarded bool            `json:"onboarded"`
	Profile   *models.Profile `json:"profile"`
}

type historyResponse struct {
	UserID  string         `json:"user_id"`
	Entries []models.Entry `json:"entries"`
}

// AskRequest submits a question. When Guidance is set it is recorded as the
// reply instead of asking the responder.
type AskRequest struct {
	Message  string `json:"message"`
	Guidance string `json:"guidance,omitempty"`
}

type deleteResponse struct {
	Removed []string `json:"removed"`
}

func (h *Handler) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.sessions.Get(r.Header.Get(UserHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, UserHeader+" header is required")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func sessionFrom(r *http.Request) *core.Session {
	sess, _ := r.Context().Value(sessionKey).(*core.Session)
	return sess
}

// GetStreak handles GET /v1/streak
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	count, err := h.engine.GetStreak(r.Context(), sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streakResponse{UserID: sess.UserID(), Streak: count})
}

// GetProfile handles GET /v1/profile; ?refresh=true forces reconciliation
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var (
		profile *models.Profile
		err     error
	)
	if r.URL.Query().Get("refresh") == "true" {
		profile, err = h.engine.RefreshProfile(r.Context(), sess)
	} else {
		profile, err = h.engine.LoadProfile(r.Context(), sess)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{UserID: sess.UserID(), Onboarded: profile != nil, Profile: profile})
}

// PatchProfile handles PATCH /v1/profile with a flat JSON object of string fields
func (h *Handler) PatchProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	profile, err := h.engine.CompleteProfile(r.Context(), sess, fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{UserID: sess.UserID(), Onboarded: true, Profile: profile})
}

// GetHistory handles GET /v1/history; ?local=true skips the remote
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var (
		entries []models.Entry
		err     error
	)
	if r.URL.Query().Get("local") == "true" {
		entries, err = h.engine.LocalHistory(sess)
	} else {
		entries, err = h.engine.LoadHistory(r.Context(), sess)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{UserID: sess.UserID(), Entries: entries})
}

// PostHistory handles POST /v1/history
func (h *Handler) PostHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		exchange core.Exchange
		err      error
	)
	if req.Guidance != "" {
		exchange, err = h.engine.AppendExchange(r.Context(), sess, req.Message, req.Guidance)
	} else {
		exchange, err = h.engine.Ask(r.Context(), sess, req.Message)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exchange)
}

// DeleteHistoryEntry handles DELETE /v1/history/{entryID}
func (h *Handler) DeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	removed, err := h.engine.DeleteEntry(r.Context(), sess, chi.URLParam(r, "entryID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ids := make([]string, 0, len(removed))
	for _, e := range removed {
		ids = append(ids, e.ID)
	}
	writeJSON(w, http.StatusOK, deleteResponse{Removed: ids})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "remote unavailable and nothing stored locally, try again")
	case errors.Is(err, core.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrEmptyMessage), errors.Is(err, core.ErrEmptyProfile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrSignedOut):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
