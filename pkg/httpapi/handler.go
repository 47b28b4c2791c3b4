package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	"github.com/yixiaowang2001/game-sage-agent/agent/journal"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

const callbackTimeout = 15 * time.Second

type Asker interface {
	AskQuery(ctx context.Context, query contractx.Query) (contractx.FinalAnswer, error)
	Platforms() []contractx.PlatformInfo
}

// Publisher delivers answers to callback urls.
type Publisher interface {
	PublishJSON(ctx context.Context, destination string, payload any) (string, error)
}

type SessionStore interface {
	Session(ctx context.Context, id string) (journal.SessionRecord, []journal.StepRecord, error)
	Recent(ctx context.Context, limit int) ([]journal.SessionRecord, error)
}

type Handler struct {
	asker     Asker
	publisher Publisher
	sessions  SessionStore
	logger    zerolog.Logger
}

// NewHandler wires the API; publisher and sessions may be nil, which turns
// callbacks and session lookups off.
func NewHandler(asker Asker, publisher Publisher, sessions SessionStore) *Handler {
	return &Handler{
		asker:     asker,
		publisher: publisher,
		sessions:  sessions,
		logger:    logx.Component("httpapi"),
	}
}

type askRequest struct {
	Query       string `json:"query"`
	Lang        string `json:"lang,omitempty"`
	Domain      string `json:"domain,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type askResponse struct {
	contractx.FinalAnswer
	CallbackMessageID string `json:"callback_message_id,omitempty"`
	CallbackError     string `json:"callback_error,omitempty"`
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"platforms": len(h.asker.Platforms()),
	})
}

func (h *Handler) ListPlatforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"platforms": h.asker.Platforms()})
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query must not be empty")
		return
	}
	callback := strings.TrimSpace(req.CallbackURL)
	if callback != "" && h.publisher == nil {
		writeError(w, http.StatusBadRequest, "callbacks_disabled", "callback_url given but callbacks are not configured")
		return
	}

	answer, err := h.asker.AskQuery(r.Context(), contractx.NewQuery(req.Query, req.Lang, req.Domain))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}

	resp := askResponse{FinalAnswer: answer}
	if callback != "" {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), callbackTimeout)
		id, err := h.publisher.PublishJSON(ctx, callback, answer)
		cancel()
		if err != nil {
			h.logger.Warn().Err(err).Str("session_id", answer.SessionID).Msg("answer callback failed")
			resp.CallbackError = err.Error()
		}
		resp.CallbackMessageID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "session journal is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.sessions.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list sessions")
		writeError(w, http.StatusInternalServerError, "internal", "could not list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "session journal is not configured")
		return
	}
	session, steps, err := h.sessions.Session(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("get session")
		writeError(w, http.StatusInternalServerError, "internal", "could not load session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session, "steps": steps})
}
