package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/warroom/internal/artifact"
	"github.com/MrWong99/warroom/internal/council"
	"github.com/MrWong99/warroom/internal/observe"
	"github.com/MrWong99/warroom/internal/resilience"
	"github.com/MrWong99/warroom/internal/studio"
	"github.com/MrWong99/warroom/pkg/audio"
	"github.com/MrWong99/warroom/pkg/provider/live"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var refusal *studio.RefusalError
	switch {
	case errors.Is(err, studio.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, studio.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.As(err, &refusal):
		return http.StatusUnprocessableEntity
	case errors.Is(err, studio.ErrGenerationFailed), errors.Is(err, resilience.ErrAllFailed),
		errors.Is(err, live.ErrTransportOpen):
		return http.StatusBadGateway
	case errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, council.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		// Connect runs detached from the request, so only a concurrent
		// Disconnect cancels it.
		return http.StatusConflict
	case errors.Is(err, council.ErrClosed), errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes it as a JSON error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	log := observe.Logger(r.Context()).With("op", op, "status", status, "err", err)
	if status >= http.StatusInternalServerError {
		log.Error("web: request failed")
	} else {
		log.Warn("web: request rejected")
	}

	msg := err.Error()
	var refusal *studio.RefusalError
	if errors.As(err, &refusal) {
		msg = refusal.Text
	}
	writeError(w, status, msg)
}

// decode reads a JSON body of at most maxBodyBytes into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", studio.ErrInvalidConfig, err)
	}
	return nil
}
