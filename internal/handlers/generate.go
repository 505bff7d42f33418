package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/snappy-loop/donghua/internal/llm"
)

type promptRequest struct {
	Description string `json:"description"`
}

type promptResponse struct {
	Prompt string `json:"prompt"`
	// Fallback is true when the model returned no text and Prompt holds the placeholder.
	Fallback bool `json:"fallback"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	Image    string `json:"image"`
	MIMEType string `json:"mime_type"`
}

// GeneratePrompt handles POST /v1/prompts
func (h *Handler) GeneratePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	prompt, err := h.agent.GeneratePrompt(r.Context(), req.Description)
	if err != nil {
		writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{Prompt: prompt, Fallback: prompt == llm.FallbackPrompt})
}

// GenerateImage handles POST /v1/images
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload, err := h.agent.GenerateImage(r.Context(), req.Prompt)
	if err != nil {
		writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Image: payload, MIMEType: llm.PreviewMIMEType})
}
