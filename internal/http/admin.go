package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/goaide/internal/identity"
	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/store"
)

// ManagementHandler serves the read-mostly /v1 management surface:
// reminder and flow listings, accessible workspaces, and memories.
type ManagementHandler struct {
	reminders store.ReminderStore
	flows     store.FlowStore
	identity  *identity.Resolver
	memories  *memory.Store
	auth      *Auth
}

func NewManagementHandler(reminders store.ReminderStore, flows store.FlowStore, resolver *identity.Resolver, memories *memory.Store, auth *Auth) *ManagementHandler {
	return &ManagementHandler{
		reminders: reminders,
		flows:     flows,
		identity:  resolver,
		memories:  memories,
		auth:      auth,
	}
}

func (h *ManagementHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/v1/reminders", h.auth.Wrap(http.HandlerFunc(h.handleReminders)))
	mux.Handle("/v1/flows", h.auth.Wrap(http.HandlerFunc(h.handleFlows)))
	mux.Handle("/v1/workspaces", h.auth.Wrap(http.HandlerFunc(h.handleWorkspaces)))
	mux.Handle("/v1/memories", h.auth.Wrap(http.HandlerFunc(h.handleMemories)))
}

func (h *ManagementHandler) handleReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", "")
		return
	}
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "thread_id is required", "")
		return
	}
	list, err := h.reminders.ListByThread(r.Context(), threadID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reminders": list})
}

func (h *ManagementHandler) handleFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", "")
		return
	}
	status := r.URL.Query().Get("status")

	var (
		list []store.Flow
		err  error
	)
	switch {
	case r.URL.Query().Get("thread_id") != "":
		list, err = h.flows.ListByThread(r.Context(), r.URL.Query().Get("thread_id"), status)
	case r.URL.Query().Get("user_id") != "":
		list, err = h.flows.ListByUser(r.Context(), r.URL.Query().Get("user_id"), status)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "thread_id or user_id is required", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flows": list})
}

func (h *ManagementHandler) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", "")
		return
	}
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "X-User-ID header is required", "")
		return
	}
	list, err := h.identity.ListAccessibleWorkspaces(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workspaces": list})
}

type memoryCreateRequest struct {
	WorkspaceID string                 `json:"workspace_id"`
	Content     string                 `json:"content"`
	Type        string                 `json:"type,omitempty"`
	Confidence  float64                `json:"confidence,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (h *ManagementHandler) handleMemories(w http.ResponseWriter, r *http.Request) {
	if h.memories == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "the memory system is disabled", "")
		return
	}
	switch r.Method {
	case http.MethodGet:
		workspaceID := r.URL.Query().Get("workspace_id")
		if workspaceID == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "workspace_id is required", "")
			return
		}
		ctx := store.WithWorkspaceID(r.Context(), workspaceID)
		list, err := h.memories.All(ctx, 0, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"memories": list})

	case http.MethodPost:
		var req memoryCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error(), "")
			return
		}
		if req.WorkspaceID == "" || req.Content == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "workspace_id and content are required", "")
			return
		}
		ctx := store.WithWorkspaceID(r.Context(), req.WorkspaceID)
		mem, err := h.memories.Add(ctx, memory.AddParams{
			Content:    req.Content,
			Type:       req.Type,
			Confidence: req.Confidence,
			Source:     "api",
			Metadata:   req.Metadata,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), "")
			return
		}
		writeJSON(w, http.StatusCreated, mem)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST", "")
	}
}
