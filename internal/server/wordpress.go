package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/wordpress"
)

// handlePublishPage renders the WordPress publish modal for an article
func (s *Server) handlePublishPage(w http.ResponseWriter, r *http.Request) {
	article, ok := s.fetchArticle(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	m := workspaceFrom(ctx).Publisher(article.ID, article.Heading)
	render(w, r, http.StatusOK, s.layout(ctx, "Publish to WordPress", publishView(article, m)))
}

// handlePublishVerifySite verifies a candidate site for an article
func (s *Server) handlePublishVerifySite(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(r)
	if !ok {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	m := workspaceFrom(r.Context()).Publisher(id, r.FormValue("heading"))
	s.verifySite(w, r, m, fmt.Sprintf("/articles/%d/wordpress", id))
}

// handlePublishRemoveSite drops a verified site from an article's list
func (s *Server) handlePublishRemoveSite(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(r)
	if !ok {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	workspaceFrom(r.Context()).Publisher(id, "").Remove(chi.URLParam(r, "siteID"))
	redirect(w, r, fmt.Sprintf("/articles/%d/wordpress", id))
}

// handlePublish sends the article to every verified site
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	id, ok := articleID(r)
	if !ok {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	back := fmt.Sprintf("/articles/%d/wordpress", id)

	m := ws.Publisher(id, r.FormValue("heading"))
	result, message, err := m.Publish(ctx, id)
	switch {
	case errors.Is(err, wordpress.ErrNoSites):
		ws.Toasts.Error("Please add at least one verified WordPress site")
		redirect(w, r, back)
		return
	case errors.Is(err, wordpress.ErrPublishInFlight), errors.Is(err, wordpress.ErrVerifyInFlight):
		ws.Toasts.Info("Please wait for the current request to finish")
		redirect(w, r, back)
		return
	case err != nil:
		s.fail(w, r, err, "Failed to publish article", back)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"result": result, "message": message})
		return
	}
	ws.Toasts.Success(message)
	redirect(w, r, fmt.Sprintf("/articles/%d", id))
}

// verifySite runs the candidate from the posted form through m
func (s *Server) verifySite(w http.ResponseWriter, r *http.Request, m *wordpress.Manager, back string) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	m.SetCandidate(api.WordPressSite{
		URL:      strings.TrimSpace(r.PostFormValue(wordpress.FieldURL)),
		Username: strings.TrimSpace(r.PostFormValue(wordpress.FieldUsername)),
		Password: r.PostFormValue(wordpress.FieldPassword),
	})

	_, err := m.Verify(ctx)
	switch {
	case err == nil:
		ws.Toasts.Success("WordPress site verified successfully!")
	case errors.Is(err, wordpress.ErrVerifyInFlight), errors.Is(err, wordpress.ErrPublishInFlight):
		ws.Toasts.Info("Please wait for the current request to finish")
	case isSessionExpired(err) && api.StatusOf(err) != http.StatusUnauthorized:
		s.fail(w, r, err, "", "/login")
		return
	case len(m.FieldErrors()) == 0:
		ws.Toasts.Error(m.LastError())
	}
	redirect(w, r, back)
}

func publishView(article *api.Article, m *wordpress.Manager) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.printf(`<p>Publishing <a href="/articles/%d">%s</a></p>`, article.ID, esc(article.Heading))
		sitesPanel(h, m, fmt.Sprintf("/articles/%d/wordpress", article.ID))

		if m.CanPublish() {
			h.printf(`<form method="post" action="/articles/%d/wordpress/publish" class="card"><input type="hidden" name="heading" value="%s"><button type="submit">Publish to %d site(s)</button></form>`,
				article.ID, esc(article.Heading), len(m.Sites()))
		} else {
			h.raw(`<p class="card"><button type="button" disabled>Publish</button> Verify at least one site first.</p>`)
		}
	})
}

// sitesPanel renders the verified site list and the candidate form. base is
// the route prefix that owns the manager.
func sitesPanel(h *html, m *wordpress.Manager, base string) {
	verifyAction := base + "/verify"
	removePrefix := base + "/sites/"
	if base == "/articles/new" {
		verifyAction = base + "/sites/verify"
	}

	h.raw(`<div class="modal"><h2>WordPress sites</h2>`)
	sites := m.Sites()
	if len(sites) == 0 {
		h.raw(`<p>No verified sites yet.</p>`)
	} else {
		h.raw(`<ul>`)
		for _, site := range sites {
			h.printf(`<li>%s (%s) `, esc(site.URL), esc(site.Username))
			h.postButton(removePrefix+site.ID+"/remove", "Remove")
			h.raw(`</li>`)
		}
		h.raw(`</ul>`)
	}

	candidate := m.Candidate()
	errs := m.FieldErrors()
	h.printf(`<form method="post" action="%s" data-state="%s">`, esc(verifyAction), esc(m.State().String()))
	h.input("url", wordpress.FieldURL, "WordPress URL", candidate.URL, errs)
	h.input("text", wordpress.FieldUsername, "Username", candidate.Username, errs)
	h.input("password", wordpress.FieldPassword, "Application password", "", errs)
	if msg := m.LastError(); msg != "" && len(errs) == 0 {
		h.printf(`<div class="field-error">%s</div>`, esc(msg))
	}
	disabled := ""
	if m.Busy() {
		disabled = " disabled"
	}
	h.printf(`<button type="submit"%s>Verify site</button></form></div>`, disabled)
}
