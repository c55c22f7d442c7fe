package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

type login interface {
	Login(ctx context.Context) (string, error)
}

// HTTPHandler triggers the consent flow and answers with the resolved email.
type HTTPHandler struct {
	flow login
	log  *slog.Logger
}

// NewHTTPHandler creates an HTTP handler for the login flow.
func NewHTTPHandler(flow login, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{flow: flow, log: logger}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	email, err := h.flow.Login(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "Login failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, email)
}
