package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// pageTemplates is the parsed set of all page templates.
var pageTemplates = mustParseTemplates()

func mustParseTemplates() *template.Template {
	t, err := template.New("").ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		panic("parse templates: " + err.Error())
	}
	return t
}

// indexData is what the studio page needs from the server.
type indexData struct {
	AuthEnabled   bool
	ExportEnabled bool
}

// executeTemplate executes the named template with data into w.
func executeTemplate(w io.Writer, name string, data interface{}) error {
	return pageTemplates.ExecuteTemplate(w, name, data)
}

// Index serves GET /, the character studio page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	data := indexData{AuthEnabled: h.authEnabled, ExportEnabled: h.previews != nil}
	if err := executeTemplate(&buf, "index", data); err != nil {
		log.Error().Err(err).Msg("Failed to render index")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
