package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/bus"
	"github.com/nextlevelbuilder/goaide/internal/providers"
)

// Responder runs one inbound envelope through the agent pipeline and
// returns the reply. The gateway's consumer provides the implementation
// shared with the transport channels.
type Responder interface {
	Respond(ctx context.Context, msg bus.InboundMessage) (string, error)
	RespondStream(ctx context.Context, msg bus.InboundMessage, onChunk func(string)) (string, error)
}

// MessageHandler serves the "api" channel: POST /message and its SSE
// variant POST /message/stream.
type MessageHandler struct {
	responder Responder
	auth      *Auth
}

func NewMessageHandler(responder Responder, auth *Auth) *MessageHandler {
	return &MessageHandler{responder: responder, auth: auth}
}

func (h *MessageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/message", h.auth.Wrap(http.HandlerFunc(h.handleMessage)))
	mux.Handle("/message/stream", h.auth.Wrap(http.HandlerFunc(h.handleStream)))
}

type messageRequest struct {
	Content        string            `json:"content"`
	UserID         string            `json:"user_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Stream         bool              `json:"stream,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type messageResponse struct {
	Content  string `json:"content"`
	ThreadID string `json:"thread_id"`
}

func (h *MessageHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, msg, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Stream {
		h.stream(w, r, msg)
		return
	}

	reply, err := h.responder.Respond(r.Context(), msg)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Content: reply, ThreadID: msg.ThreadID()})
}

func (h *MessageHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	_, msg, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.stream(w, r, msg)
}

func (h *MessageHandler) decode(w http.ResponseWriter, r *http.Request) (messageRequest, bus.InboundMessage, bool) {
	var req messageRequest
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", "")
		return req, bus.InboundMessage{}, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error(), "")
		return req, bus.InboundMessage{}, false
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "content is required", "")
		return req, bus.InboundMessage{}, false
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required", "")
		return req, bus.InboundMessage{}, false
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	msg := bus.InboundMessage{
		Channel:   "api",
		SenderID:  req.UserID,
		UserID:    req.UserID,
		ChatID:    req.ConversationID,
		Content:   req.Content,
		MessageID: "api:" + uuid.NewString(),
		ChatType:  "direct",
		Metadata:  req.Metadata,
	}
	return req, msg, true
}

// stream replies over SSE: content chunks as they arrive, then the
// thread id marker, then the done marker.
func (h *MessageHandler) stream(w http.ResponseWriter, r *http.Request, msg bus.InboundMessage) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported", "")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(data string) {
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	streamed := false
	reply, err := h.responder.RespondStream(r.Context(), msg, func(chunk string) {
		if chunk == "" {
			return
		}
		streamed = true
		emit(chunk)
	})
	if err != nil {
		slog.Warn("http stream run failed", "thread", msg.ThreadID(), "error", err)
		emit("[ERROR] " + err.Error())
		emit("[DONE]")
		return
	}
	// Providers without token streaming return the whole reply at once.
	if !streamed && reply != "" {
		emit(reply)
	}
	emit("[THREAD:" + msg.ThreadID() + "]")
	emit("[DONE]")
}

// writeRunError maps a run failure onto the API contract: provider
// classification errors are the client-visible llm_error; anything else
// is a 500.
func writeRunError(w http.ResponseWriter, err error) {
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		writeError(w, http.StatusBadRequest, "llm_error", apiErr.Message, apiErr.Provider)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error(), "")
}
