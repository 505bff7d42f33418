package handlers

import (
	"bytes"
	"net/http"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/donghua/internal/llm"
)

type exportResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ExportImage handles POST /api/sessions/{id}/image/export
func (h *Handler) ExportImage(w http.ResponseWriter, r *http.Request) {
	if h.previews == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "preview export is not configured")
		return
	}
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	data, ok := previewBytes(sess)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no image preview")
		return
	}

	key := path.Join("previews", sess.ID().String(), uuid.New().String()+".png")
	if err := h.previews.Upload(r.Context(), key, bytes.NewReader(data), llm.PreviewMIMEType, int64(len(data))); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID().String()).Msg("Failed to export preview")
		writeJSONError(w, http.StatusBadGateway, "failed to store preview")
		return
	}
	url, err := h.previews.ObjectURL(r.Context(), key, h.urlExpiry)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to build preview URL")
		writeJSONError(w, http.StatusBadGateway, "failed to build preview url")
		return
	}

	writeJSON(w, http.StatusCreated, exportResponse{Key: key, URL: url})
}
