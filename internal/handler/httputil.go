package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/types"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error  string             `json:"error"`
	Code   string             `json:"code"`
	Fields []types.FieldError `json:"fields,omitempty"`
}

// responder carries the logger used when a response cannot be written.
type responder struct {
	logger *zap.Logger
}

// writeJSON marshals v as JSON and writes it with the given status code.
func (rs responder) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.logger.Warn("writeJSON encode error", zap.Error(err))
	}
}

// writeError writes a structured JSON error response.
func (rs responder) writeError(w http.ResponseWriter, status int, code, message string) {
	rs.writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func (rs responder) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *types.ValidationError
		coded      types.Coded
	)
	switch {
	case errors.As(err, &validation):
		rs.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  validation.Error(),
			Code:   validation.Code(),
			Fields: validation.Fields,
		})
	case errors.As(err, &coded):
		rs.writeError(w, statusFor(coded.Code()), coded.Code(), err.Error())
	case r.Context().Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		// Client went away. The command still completes.
		rs.logger.Debug("request abandoned", zap.String("path", r.URL.Path), zap.Error(err))
		rs.writeError(w, http.StatusServiceUnavailable, "REQUEST_ABANDONED", "request abandoned before completion")
	default:
		rs.logger.Error("internal error", zap.String("path", r.URL.Path), zap.Error(err))
		rs.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func statusFor(code string) int {
	switch code {
	case types.CodeValidation:
		return http.StatusBadRequest
	case types.CodeNotFound:
		return http.StatusNotFound
	case types.CodeInvalidTransition, types.CodeDuplicateAlert, types.CodeAlreadyAcknowledged:
		return http.StatusConflict
	case types.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseID extracts a positive integer id path parameter.
func (rs responder) parseID(w http.ResponseWriter, r *http.Request, paramName string) (int64, bool) {
	raw := chi.URLParam(r, paramName)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		rs.writeError(w, http.StatusBadRequest, "INVALID_ID", "invalid id: "+raw)
		return 0, false
	}
	return id, true
}

// parseTime accepts RFC3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// queryParser collects query-string failures into one ValidationError.
type queryParser struct {
	r    *http.Request
	errs types.ValidationError
}

func newQueryParser(r *http.Request) *queryParser { return &queryParser{r: r} }

func (q *queryParser) text(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

func (q *queryParser) timestamp(name string, endOfDay bool) *time.Time {
	raw := q.text(name)
	if raw == "" {
		return nil
	}
	t, err := parseTime(raw, endOfDay)
	if err != nil {
		q.errs.Add(name, err.Error())
		return nil
	}
	return &t
}

func (q *queryParser) number(name string) int {
	raw := q.text(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		q.errs.Add(name, "must be a non-negative integer")
		return 0
	}
	return n
}

func (q *queryParser) flag(name string) *bool {
	raw := q.text(name)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.errs.Add(name, "must be true or false")
		return nil
	}
	return &b
}

func (q *queryParser) status(name string) types.Status {
	raw := q.text(name)
	if raw == "" {
		return ""
	}
	st, ok := types.ParseStatus(raw)
	if !ok {
		q.errs.Add(name, "must be one of pending, escalated, resolved")
	}
	return st
}

func (q *queryParser) severity(name string) types.Severity {
	raw := q.text(name)
	if raw == "" {
		return ""
	}
	sev, ok := types.ParseSeverity(raw)
	if !ok {
		q.errs.Add(name, "must be one of critical, moderate, low")
	}
	return sev
}

func (q *queryParser) err() error { return q.errs.OrNil() }
