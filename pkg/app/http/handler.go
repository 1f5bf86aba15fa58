// Package http provides HTTP utilities including chi-compatible error handling
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/smaghili/eitaa-forwarder/pkg/app/errors"
)

// HandlerFunc defines a function that returns an error for clean error handling
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// HandleError wraps an error-returning HandlerFunc into a standard http.HandlerFunc
//
// Usage with chi:
//
//	r.Get("/status", http.HandleError(handler.status))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(w, err)
		}
	}
}

type errorResponse struct {
	ErrMsg     string `json:"error"`
	ErrMsgCode int    `json:"code"`
	Category   string `json:"category,omitempty"`
}

// DefaultErrorHandler handles errors returned from HTTP handlers
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		code := StatusCode(svcErr.Category)
		msg := svcErr.Message
		if msg == "" {
			msg = svcErr.Error()
		}
		_ = WriteJSON(w, code, &errorResponse{
			ErrMsg:     msg,
			ErrMsgCode: code,
			Category:   svcErr.Category.String(),
		})
		return
	}

	_ = WriteJSON(w, http.StatusInternalServerError, &errorResponse{
		ErrMsg:     "Unexpected Service Error",
		ErrMsgCode: http.StatusInternalServerError,
	})
}

// StatusCode maps an error category onto an HTTP status
func StatusCode(cat apperrors.Category) int {
	switch cat {
	case apperrors.CategoryNoError:
		return http.StatusOK
	case apperrors.CategoryConfig:
		return http.StatusBadRequest
	case apperrors.CategoryStartupTimeout, apperrors.CategorySessionExpired:
		return http.StatusServiceUnavailable
	case apperrors.CategoryChannel, apperrors.CategoryDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON encodes v with the given status code
func WriteJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
