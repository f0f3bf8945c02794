package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/tkilaker/inkdesk/internal/api"
)

type contextKey int

const workspaceKey contextKey = iota

// withWorkspace attaches the session's workspace to the request, creating
// one when the cookie is missing or its workspace expired
func (s *Server) withWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r, sessionName)
		if err != nil {
			s.logger.Debug("discarding unreadable session cookie", "error", err)
		}

		id, _ := sess.Values[sessionKey].(string)
		ws, ok := s.registry.Get(id)
		if !ok {
			ws, err = s.registry.Create()
			if err != nil {
				s.logger.Error("failed to create workspace", "error", err)
				http.Error(w, "Failed to start session", http.StatusInternalServerError)
				return
			}
			sess.Values[sessionKey] = ws.ID
			if err := sess.Save(r, w); err != nil {
				s.logger.Error("failed to save session", "error", err)
				http.Error(w, "Failed to start session", http.StatusInternalServerError)
				return
			}
		}

		ctx := context.WithValue(r.Context(), workspaceKey, ws)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// workspaceFrom returns the workspace attached by withWorkspace
func workspaceFrom(ctx context.Context) *Workspace {
	ws, _ := ctx.Value(workspaceKey).(*Workspace)
	return ws
}

// requireAuth sends signed-out visitors to the login page. JSON callers get
// a 401 instead of a redirect.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := workspaceFrom(r.Context())
		ok, err := ws.Auth.Check(r.Context())
		if err != nil {
			s.logger.Warn("auth check failed", "error", err)
		}
		if !ok {
			if wantsJSON(r) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redirectIfAuthenticated keeps signed-in users away from the guest pages
func (s *Server) redirectIfAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := workspaceFrom(r.Context())
		if ok, _ := ws.Auth.Check(r.Context()); ok {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fail reports a failed backend call. Expired sessions go back to login;
// everything else becomes an error toast and a redirect to back.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback, back string) {
	ws := workspaceFrom(r.Context())
	categorized := api.Categorize(err)

	switch {
	case goerrors.IsCategory(categorized, goerrors.CategoryAuth):
		ws.Auth.Clear()
		ws.Toasts.Error("Your session has expired. Please log in again.")
		back = "/login"
	case goerrors.IsCategory(categorized, goerrors.CategoryValidation):
		msg := fallback
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			if first := apiErr.FirstFieldError(); first != "" {
				msg = first
			}
		}
		ws.Toasts.Error(msg)
	default:
		ws.Toasts.Error(api.MessageOf(err, fallback))
	}

	s.logger.Warn("request failed", "path", r.URL.Path, "error", categorized)
	if wantsJSON(r) {
		status := api.StatusOf(err)
		if status < 400 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]string{"message": api.MessageOf(err, fallback)})
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// formErrors merges backend validation messages into field errors
func formErrors(err error, fields map[string]string) map[string]string {
	if fields == nil {
		fields = map[string]string{}
	}
	for field, msgs := range api.FieldErrors(err) {
		if len(msgs) > 0 {
			fields[field] = msgs[0]
		}
	}
	return fields
}

// isValidation reports whether err is a backend validation failure
func isValidation(err error) bool {
	return goerrors.IsCategory(api.Categorize(err), goerrors.CategoryValidation)
}

// isSessionExpired reports whether err means the backend session is gone
func isSessionExpired(err error) bool {
	return goerrors.IsCategory(api.Categorize(err), goerrors.CategoryAuth)
}

// articleID parses the {id} URL parameter
func articleID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// render writes an HTML component with the given status
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	c.Render(r.Context(), w)
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

const maxJSONBytes = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes))
	return dec.Decode(v)
}
