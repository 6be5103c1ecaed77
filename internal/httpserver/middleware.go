package httpserver

import (
	"errors"
	"mime"
	"net/http"
	"time"

	"log/slog"

	"neuroinfer/internal/auth"
)

// uploadMemory is how much of a multipart body is held in memory before
// file parts spill to disk.
const uploadMemory = 32 << 20

func withCORS(next http.Handler, origin string) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withRequestLog(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func withBodyLimit(next http.Handler, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// authenticateUpload checks a query or Bearer token before the body is
// read. The multipart form is parsed ahead of the session check only when
// the token has to come from it.
func authenticateUpload(secured func(http.Handler) http.Handler, next http.Handler) http.Handler {
	early := secured(parseUpload(next))
	late := parseUpload(secured(next))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.TokenOutsideBody(r) != "" {
			early.ServeHTTP(w, r)
			return
		}
		late.ServeHTTP(w, r)
	})
}

// parseUpload reads a multipart body up front so the session token can
// travel as a form field, and removes any spilled parts afterwards.
func parseUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if ct == "multipart/form-data" {
			if err := r.ParseMultipartForm(uploadMemory); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "Upload too large", "")
					return
				}
				writeError(w, http.StatusBadRequest, "Malformed multipart body", "")
				return
			}
			defer r.MultipartForm.RemoveAll()
		}
		next.ServeHTTP(w, r)
	})
}
