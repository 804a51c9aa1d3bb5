package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/grovetools/cowork/errors"
)

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Success bool                `json:"success"`
	Error   *errors.CoworkError `json:"error"`
}

// statusFor maps an error code to its HTTP status.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrCodeProcessTimeout:
		return http.StatusRequestTimeout
	case errors.ErrCodeProcessCanceled:
		return http.StatusConflict
	case errors.ErrCodeProcessFailed:
		return http.StatusBadGateway
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeSessionNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Debug("Failed to write response")
	}
}

// writeError renders err as a structured error with the mapped status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	ce, ok := errors.As(err)
	if !ok {
		ce = errors.Wrap(err, errors.ErrCodeInternal, "internal error")
	}
	status := statusFor(ce.Code)

	if ce.Code == errors.ErrCodeRateLimited {
		if secs, ok := ce.Details["retryAfterSeconds"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("code", ce.Code).Error("Request failed")
	}

	s.writeJSON(w, status, errorResponse{Error: ce})
}

// decodeBody reads a JSON body of at most maxBodyBytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid request body")
	}
	return nil
}
