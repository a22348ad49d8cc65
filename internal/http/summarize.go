package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

const defaultSummaryLength = 500

// SummarizeHandler serves POST /summarize: a stateless utility call
// straight to the model, bypassing the agent loop and its storage.
type SummarizeHandler struct {
	registry        *providers.Registry
	defaultProvider string
	model           string
	auth            *Auth
}

func NewSummarizeHandler(registry *providers.Registry, defaultProvider, model string, auth *Auth) *SummarizeHandler {
	return &SummarizeHandler{
		registry:        registry,
		defaultProvider: defaultProvider,
		model:           model,
		auth:            auth,
	}
}

func (h *SummarizeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/summarize", h.auth.Wrap(http.HandlerFunc(h.handle)))
}

type summarizeRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length,omitempty"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

func (h *SummarizeHandler) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", "")
		return
	}
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error(), "")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "text is required", "")
		return
	}
	maxLength := req.MaxLength
	if maxLength <= 0 {
		maxLength = defaultSummaryLength
	}

	provider, err := h.registry.Get(h.defaultProvider)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), "")
		return
	}

	resp, err := provider.Chat(r.Context(), providers.ChatRequest{
		Model: h.model,
		Messages: []providers.Message{
			{Role: "system", Content: fmt.Sprintf("Summarize the following text in no more than %d characters.", maxLength)},
			{Role: "user", Content: req.Text},
		},
		Options: map[string]interface{}{providers.OptMaxTokens: 1024},
	})
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarizeResponse{Summary: resp.Content})
}
