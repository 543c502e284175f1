package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/session"
)

// Stream message types sent by the server.
const (
	msgItem      = "item"
	msgResult    = "result"
	msgCompleted = "completed"
	msgError     = "error"
)

// streamMessage is a server-to-client frame.
type streamMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Item      *catalog.Item    `json:"item,omitempty"`
	Outcome   *session.Outcome `json:"outcome,omitempty"`
	Summary   *session.Summary `json:"summary,omitempty"`
	Error     string           `json:"error,omitempty"`
	Status    int              `json:"status,omitempty"`
}

// handleSessionStream drives a whole session over one WebSocket: the server
// pushes items, the client answers with responseRequest frames. Closing
// the socket ends the session.
func (a *API) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	learnerID := r.URL.Query().Get("learner_id")
	if learnerID == "" {
		writeError(w, http.StatusBadRequest, session.ErrInvalidLearner.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "learner_id", learnerID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	started, err := a.sessions.StartSession(ctx, learnerID, r.URL.Query()["concept"]...)
	if err != nil {
		_ = wsjson.Write(ctx, conn, errorFrame(err))
		conn.Close(websocket.StatusPolicyViolation, "session not started")
		return
	}
	defer func() {
		// The request context is gone once the client disconnects.
		if _, err := a.sessions.EndSession(context.WithoutCancel(ctx), started.SessionID); err != nil {
			slog.Warn("failed to end streamed session", "session_id", started.SessionID, "error", err)
		}
	}()

	item := started.Item
	if err := wsjson.Write(ctx, conn, streamMessage{Type: msgItem, SessionID: started.SessionID, Item: &item}); err != nil {
		return
	}

	for {
		var req responseRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("websocket read failed", "session_id", started.SessionID, "error", err)
			}
			return
		}

		out, err := a.sessions.SubmitResponse(ctx, started.SessionID, req.response())
		if err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				_ = wsjson.Write(ctx, conn, errorFrame(err))
				conn.Close(websocket.StatusInternalError, "internal error")
				return
			}
			if err := wsjson.Write(ctx, conn, errorFrame(err)); err != nil {
				return
			}
			if ctrl, lookupErr := a.sessions.Session(started.SessionID); lookupErr == nil && ctrl.State() == session.Completed {
				sum := ctrl.Summary()
				_ = wsjson.Write(ctx, conn, streamMessage{Type: msgCompleted, SessionID: started.SessionID, Summary: &sum})
				conn.Close(websocket.StatusNormalClosure, "session completed")
				return
			}
			continue
		}

		if err := wsjson.Write(ctx, conn, streamMessage{Type: msgResult, SessionID: started.SessionID, Outcome: &out}); err != nil {
			return
		}
		if out.Completed {
			_ = wsjson.Write(ctx, conn, streamMessage{Type: msgCompleted, SessionID: started.SessionID, Summary: out.Summary})
			conn.Close(websocket.StatusNormalClosure, "session completed")
			return
		}
		if err := wsjson.Write(ctx, conn, streamMessage{Type: msgItem, SessionID: started.SessionID, Item: out.Next}); err != nil {
			return
		}
	}
}

func errorFrame(err error) streamMessage {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return streamMessage{Type: msgError, Error: msg, Status: status}
}
