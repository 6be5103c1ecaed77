package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"log/slog"

	"neuroinfer/internal/analysis"
	"neuroinfer/internal/auth"
)

// Analyzer processes one uploaded recording.
type Analyzer interface {
	Analyze(ctx context.Context, filename string, body io.Reader) (*analysis.Result, error)
}

// ModelStatus reports whether inference can run at all.
type ModelStatus interface {
	Available() bool
}

type Options struct {
	MaxUploadBytes int64
	AllowedOrigin  string
}

func NewRouter(
	logger *slog.Logger,
	authSvc *auth.Service,
	analyzer Analyzer,
	model ModelStatus,
	opts Options,
) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"model_loaded": model.Available(),
			"sessions":     authSvc.ActiveSessions(),
		})
	})

	// Auth
	login := &LoginHandler{Auth: authSvc, Logger: logger}
	logout := &LogoutHandler{Auth: authSvc, Logger: logger}
	handlePost(mux, "/login", withBodyLimit(login, 1<<20))
	handlePost(mux, "/logout", withBodyLimit(logout, 1<<20))

	// Analysis
	result := &ResultHandler{Analyzer: analyzer, Model: model, Logger: logger}
	secured := auth.SessionMiddleware(authSvc)
	handlePost(mux, "/getModelResult", withBodyLimit(authenticateUpload(secured, result), opts.MaxUploadBytes))

	return withCORS(withRequestLog(mux, logger), opts.AllowedOrigin)
}

// handlePost routes POST requests for path with and without a trailing
// slash. Other methods get 405 from the mux.
func handlePost(mux *http.ServeMux, path string, h http.Handler) {
	mux.Handle("POST "+path, h)
	mux.Handle("POST "+path+"/{$}", h)
}
