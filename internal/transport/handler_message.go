package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/model"
)

const maxMessageBody = 1 << 20 // 1 MiB, image payloads arrive as references

const restartMessage = "Your previous session has ended. I've started a new conversation for you; please send your message again."

// HandleMessage routes one inbound chat message: dedupe, session
// resolution, activity tracking, then intent routing.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.RequestLogger(ctx, h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBody))
	if err != nil {
		WriteError(w, model.NewBadRequestError("request body unreadable or too large"))
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		WriteError(w, model.NewBadRequestError("body must be a JSON object"))
		return
	}
	if details := h.schema.ValidateBody("postMessage", raw); len(details) > 0 {
		WriteValidationError(w, details)
		return
	}

	var msg model.InboundMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		WriteError(w, model.NewBadRequestError("malformed message payload"))
		return
	}

	if h.dedupe != nil && msg.MessageID != "" {
		seen, err := h.dedupe.Seen(ctx, msg.MessageID, h.dedupeTTL)
		if err != nil {
			// Dedupe is best-effort; a broken marker store must not block
			// the conversation.
			logger.Warn("dedupe check failed",
				zap.String("message_id", msg.MessageID), zap.Error(err))
		} else if seen {
			h.metrics.DedupeHitsTotal.Inc()
			logger.Debug("duplicate message dropped", zap.String("message_id", msg.MessageID))
			WriteJSON(w, http.StatusOK, map[string]string{
				"status":     "duplicate",
				"message_id": msg.MessageID,
			})
			return
		}
	}

	sessionID, proceed := h.ensureSession(w, r, msg.SessionID)
	if !proceed {
		return // response already written
	}
	msg.SessionID = sessionID

	h.sessions.TrackActivity(ctx, msg.SessionID)

	out, err := h.router.Route(ctx, msg)
	if err != nil {
		logger.Error("message routing failed",
			zap.String("session_id", msg.SessionID), zap.Error(err))
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// ensureSession resolves the message's session. A blank ID creates a new
// session transparently. An expired or unknown ID gets a fresh session and
// a friendly restart response. Returns proceed=false when the response has
// already been written.
func (h *Handlers) ensureSession(w http.ResponseWriter, r *http.Request, sessionID string) (string, bool) {
	ctx := r.Context()

	if sessionID == "" {
		sess, err := h.sessions.NewSession(ctx, clientInfoFrom(ctx))
		if err != nil {
			WriteError(w, err)
			return "", false
		}
		return sess.ID, true
	}

	_, outcome, err := h.sessions.Lookup(ctx, sessionID)
	if err != nil {
		WriteError(w, err)
		return "", false
	}
	if outcome == model.LookupFound {
		return sessionID, true
	}

	// Expired or unknown: hand the client a fresh session to continue in.
	sess, err := h.sessions.NewSession(ctx, clientInfoFrom(ctx))
	if err != nil {
		WriteError(w, err)
		return "", false
	}
	WriteJSON(w, http.StatusOK, model.OutboundResponse{
		Type:      model.ResponseTypeRAG,
		Response:  restartMessage,
		SessionID: sess.ID,
	})
	return "", false
}
