package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/aduan/model"
)

// sessionResponse is the session shape returned to clients.
type sessionResponse struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

func toSessionResponse(sess model.Session) sessionResponse {
	return sessionResponse{
		SessionID:    sess.ID,
		Status:       sess.Status,
		CreatedAt:    sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		LastActivity: sess.LastActivity.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// HandleCreateSession creates a new session explicitly.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil && r.ContentLength > 0 {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("body must be a JSON object"))
			return
		}
	}

	sess, err := h.sessions.NewSession(r.Context(), clientInfoFrom(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toSessionResponse(sess))
}

// HandleGetSession looks up a session, distinguishing live, expired, and
// unknown identifiers.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, outcome, err := h.sessions.Lookup(r.Context(), sessionID)
	if err != nil {
		WriteError(w, err)
		return
	}
	switch outcome {
	case model.LookupFound:
		WriteJSON(w, http.StatusOK, toSessionResponse(sess))
	case model.LookupExpired:
		WriteError(w, model.NewSessionExpiredError(sessionID))
	default:
		WriteError(w, model.NewSessionNotFoundError(sessionID))
	}
}

// HandleCloseSession marks a session inactive.
func (h *Handlers) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.Close(r.Context(), sessionID); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSessionStats reports the active session count.
func (h *Handlers) HandleSessionStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.sessions.ActiveCount(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"active_sessions": count})
}

// clientInfoFrom builds session client details from the request context.
func clientInfoFrom(ctx context.Context) *model.ClientInfo {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return nil
	}
	return &model.ClientInfo{
		UserAgent:    rctx.UserAgent,
		SourceIP:     rctx.SourceIP,
		ConnectionID: rctx.ConnectionID,
	}
}
