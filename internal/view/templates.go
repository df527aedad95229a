package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/otp-manager/otp-manager/internal/shared"
	"github.com/otp-manager/otp-manager/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates   *template.Template
	contextPath string
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	ContextPath string
	Data        any
}

// NewEngine parses the embedded templates. Links in pages are rendered
// relative to contextPath.
func NewEngine(contextPath string) (*Engine, error) {
	tpl, err := template.New("root").ParseFS(web.Templates, "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse templates: %w", err)
	}
	if contextPath == "" {
		contextPath = "/"
	}
	return &Engine{templates: tpl, contextPath: contextPath}, nil
}

// Render executes a named template with TemplateData. Nothing reaches w
// unless the whole page rendered.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if data.ContextPath == "" {
		data.ContextPath = e.contextPath
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("view: render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}
