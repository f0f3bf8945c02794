package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Error is a non-2xx response from the API
type Error struct {
	Status  int
	Message string
	// Fields holds per-field validation messages keyed by form field name
	Fields map[string][]string
	Body   []byte
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// FirstFieldError returns the first message of the alphabetically first field
func (e *Error) FirstFieldError() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msgs := e.Fields[k]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ""
}

// newError decodes the backend error envelope. The backend uses "message"
// for most failures, "error" for WordPress verification, and "errors" for
// validation failures where each field maps to a string or a list of strings.
func newError(status int, body []byte) *Error {
	apiErr := &Error{Status: status, Body: body}

	var envelope struct {
		Message string                     `json:"message"`
		Error   string                     `json:"error"`
		Errors  map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		apiErr.Message = http.StatusText(status)
		return apiErr
	}

	apiErr.Message = envelope.Message
	if apiErr.Message == "" {
		apiErr.Message = envelope.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	if len(envelope.Errors) > 0 {
		apiErr.Fields = make(map[string][]string, len(envelope.Errors))
		for field, raw := range envelope.Errors {
			var list []string
			if err := json.Unmarshal(raw, &list); err == nil {
				apiErr.Fields[field] = list
				continue
			}
			var single string
			if err := json.Unmarshal(raw, &single); err == nil {
				apiErr.Fields[field] = []string{single}
			}
		}
	}

	return apiErr
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// MessageOf returns the backend message carried by err, or fallback
func MessageOf(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return fallback
}

// FieldErrors returns the per-field validation messages carried by err
func FieldErrors(err error) map[string][]string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Fields
	}
	return nil
}

const (
	codeValidation = "API_VALIDATION_FAILED"
	codeAuth       = "API_UNAUTHENTICATED"
	codeForbidden  = "API_FORBIDDEN"
	codeNotFound   = "API_NOT_FOUND"
	codeServer     = "API_SERVER_ERROR"
	codeRejected   = "API_REQUEST_REJECTED"
	codeCanceled   = "API_REQUEST_CANCELED"
	codeNetwork    = "API_NETWORK_ERROR"
)

// Categorize wraps err with a go-errors category so handlers can decide
// between inline field errors, a toast, or a redirect to login.
func Categorize(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return goerrors.Wrap(err, goerrors.CategoryCommand, "request canceled").
				WithTextCode(codeCanceled)
		}
		return goerrors.Wrap(err, goerrors.CategoryExternal, "network error").
			WithTextCode(codeNetwork)
	}

	switch {
	case apiErr.Status == http.StatusUnprocessableEntity || len(apiErr.Fields) > 0:
		return goerrors.Wrap(err, goerrors.CategoryValidation, apiErr.Message).
			WithTextCode(codeValidation)
	case apiErr.Status == http.StatusUnauthorized || apiErr.Status == StatusSessionExpired:
		return goerrors.Wrap(err, goerrors.CategoryAuth, apiErr.Message).
			WithTextCode(codeAuth)
	case apiErr.Status == http.StatusForbidden:
		return goerrors.Wrap(err, goerrors.CategoryAuthz, apiErr.Message).
			WithTextCode(codeForbidden)
	case apiErr.Status == http.StatusNotFound:
		return goerrors.Wrap(err, goerrors.CategoryNotFound, apiErr.Message).
			WithTextCode(codeNotFound)
	case apiErr.Status >= 500:
		return goerrors.Wrap(err, goerrors.CategoryExternal, apiErr.Message).
			WithTextCode(codeServer)
	default:
		return goerrors.Wrap(err, goerrors.CategoryBadInput, apiErr.Message).
			WithTextCode(codeRejected)
	}
}
