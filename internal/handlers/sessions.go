package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/snappy-loop/donghua/internal/llm"
	"github.com/snappy-loop/donghua/internal/session"
)

const (
	previewFilename = "donghua-3d-character.png"
	promptFilename  = "donghua-3d-character-prompt.txt"
)

type submitPromptRequest struct {
	Description string `json:"description"`
}

// CreateSession handles POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// GetSession handles GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// SubmitPrompt handles POST /api/sessions/{id}/prompt
func (h *Handler) SubmitPrompt(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req submitPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeJSONError(w, http.StatusBadRequest, "description is required")
		return
	}
	if !sess.SubmitDescription(req.Description) {
		writeJSONError(w, http.StatusConflict, "prompt generation already in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

// RequestImage handles POST /api/sessions/{id}/image
func (h *Handler) RequestImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if !sess.RequestImage() {
		writeJSONError(w, http.StatusConflict, "image preview is not available for the current prompt")
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

// DismissImage handles DELETE /api/sessions/{id}/image
func (h *Handler) DismissImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	sess.DismissImage()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// DownloadPrompt handles GET /api/sessions/{id}/prompt.txt
func (h *Handler) DownloadPrompt(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	st := sess.Snapshot().Prompt
	if st.Status != session.StatusSuccess {
		writeJSONError(w, http.StatusNotFound, "no prompt generated")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+promptFilename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(st.Value))
}

// DownloadImage handles GET /api/sessions/{id}/image.png
func (h *Handler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	data, ok := previewBytes(sess)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no image preview")
		return
	}
	w.Header().Set("Content-Type", llm.PreviewMIMEType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+previewFilename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// lookupSession resolves {id} and writes the error response when it fails.
func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, ok := h.sessions.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// previewBytes decodes the session's current preview, if it has one.
func previewBytes(sess *session.Session) ([]byte, bool) {
	st := sess.Snapshot().Image
	if st.Status != session.StatusSuccess {
		return nil, false
	}
	_, data, ok := llm.DecodeDataURI(st.Value)
	return data, ok
}
