package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"log/slog"

	"neuroinfer/internal/analysis"
	"neuroinfer/internal/auth"
	"neuroinfer/internal/converter"
	"neuroinfer/internal/inference"
)

const (
	KindValidation       = "validation"
	KindDecode           = "decode"
	KindEmptyResult      = "empty_result"
	KindModelUnavailable = "model_unavailable"
	KindInference        = "inference"
	KindTimeout          = "timeout"
	KindInternal         = "internal"
)

type errorBody struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
}

// writeJSON encodes v before touching w, so an unencodable value leaves the
// response unwritten and is reported to the caller.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	return err
}

func writeError(w http.ResponseWriter, status int, detail, kind string) {
	_ = writeJSON(w, status, errorBody{Detail: detail, Kind: kind})
}

type LoginHandler struct {
	Auth   *auth.Service
	Logger *slog.Logger
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	s, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.Logger.Info("login rejected", "username", req.Username)
			w.Header().Set("WWW-Authenticate", "Basic")
			writeError(w, http.StatusUnauthorized, "Incorrect username or password", "")
			return
		}
		h.Logger.Error("login", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error", KindInternal)
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]string{
		"access_token": s.Token,
		"token_type":   "bearer",
	})
}

type LogoutHandler struct {
	Auth   *auth.Service
	Logger *slog.Logger
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(auth.TokenFromRequest(r)); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid token", "")
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

type ResultHandler struct {
	Analyzer Analyzer
	Model    ModelStatus
	Logger   *slog.Logger
}

func (h *ResultHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Model.Available() {
		h.fail(w, inference.ErrModelUnavailable)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded", KindValidation)
		return
	}
	defer file.Close()

	res, err := h.Analyzer.Analyze(r.Context(), header.Filename, file)
	if err != nil {
		h.fail(w, err)
		return
	}
	body, err := json.Marshal(map[string]any{
		"result": res.Output.Nested(),
		"status": "success",
	})
	if err != nil {
		h.fail(w, fmt.Errorf("encode result %s: %w", res.ID, err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", res.ID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.Logger.Error("write result", "id", res.ID, "err", err)
	}
}

func (h *ResultHandler) fail(w http.ResponseWriter, err error) {
	status, kind, detail := classify(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("analysis failed", "kind", kind, "err", err)
	} else {
		h.Logger.Info("analysis rejected", "kind", kind, "err", err)
	}
	writeError(w, status, detail, kind)
}

// classify maps a processing error onto a status code, an error kind and
// the detail shown to the client.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, inference.ErrModelUnavailable):
		return http.StatusInternalServerError, KindModelUnavailable, "Model not loaded"
	case errors.Is(err, analysis.ErrValidation):
		return http.StatusBadRequest, KindValidation, "Only .bdf files are accepted"
	case errors.Is(err, converter.ErrDecode):
		return http.StatusInternalServerError, KindDecode, err.Error()
	case errors.Is(err, converter.ErrEmptyResult):
		return http.StatusInternalServerError, KindEmptyResult, err.Error()
	case errors.Is(err, inference.ErrInference):
		return http.StatusInternalServerError, KindInference, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, KindTimeout, "Processing timed out"
	}
	return http.StatusInternalServerError, KindInternal, err.Error()
}
