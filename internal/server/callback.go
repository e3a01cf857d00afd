package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/teemow/gmailrelay/internal/logging"
)

//go:embed templates/callback.html
var templateFS embed.FS

var callbackTemplate = template.Must(template.ParseFS(templateFS, "templates/callback.html"))

type callbackPage struct {
	Code  string
	Error string
}

// handleCallbackPage renders the redirect target. It shows the
// authorization code so the user can hand it to the CLI; nothing is stored.
func (s *Server) handleCallbackPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := callbackPage{
		Code:  q.Get("code"),
		Error: q.Get("error"),
	}

	var buf bytes.Buffer
	if err := callbackTemplate.Execute(&buf, page); err != nil {
		s.logger.Error("failed to render callback page", logging.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
