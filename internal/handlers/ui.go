package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/guardrail/guardrail/internal/config"
)

//go:embed templates/*.html
var templatesFS embed.FS

// UIHandler serves the embedded browser interface.
type UIHandler struct {
	tmpl *template.Template
	cfg  config.UIConfig
}

// NewUIHandler creates a new UIHandler.
func NewUIHandler(cfg config.UIConfig) (*UIHandler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &UIHandler{tmpl: tmpl, cfg: cfg}, nil
}

// Index serves the interface page at GET /.
func (h *UIHandler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, h.cfg); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}
