package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/articles"
	"github.com/tkilaker/inkdesk/internal/config"
	"github.com/tkilaker/inkdesk/internal/postcheck"
	"github.com/tkilaker/inkdesk/internal/search"
	"github.com/tkilaker/inkdesk/internal/validate"
	"github.com/tkilaker/inkdesk/internal/wordpress"
)

// Raw HTML in article content is escaped, not passed through
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// renderMarkdown converts article content to HTML
func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// handleArticleList renders one page of the article history
func (s *Server) handleArticleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	current, err := ws.History.Load(ctx, page)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch articles", "/dashboard")
		return
	}
	if err := ws.Index.Add(current.Records...); err != nil {
		s.logger.Warn("failed to index articles", "error", err)
	}

	pending, _ := ws.Deletes.Pending()
	render(w, r, http.StatusOK, s.layout(ctx, "Articles", articleListView(current, pending)))
}

// handleArticleSearch searches the articles this workspace has loaded
func (s *Server) handleArticleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	hits, err := ws.Index.Search(query, searchResultLimit)
	if err != nil {
		s.logger.Warn("search failed", "query", query, "error", err)
		ws.Toasts.Error("Search failed")
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"query": query, "hits": hits})
		return
	}
	render(w, r, http.StatusOK, s.layout(ctx, "Search", searchView(query, hits)))
}

// generatePage is the bulk generation page state
type generatePage struct {
	Form    articles.GenerateForm
	Presets config.Presets
	Sites   *wordpress.Manager
	Errors  map[string]string
}

// handleGeneratePage renders the bulk generation form
func (s *Server) handleGeneratePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	page := generatePage{
		Form:    articles.NewGenerateForm(s.config.Presets),
		Presets: s.config.Presets,
		Sites:   ws.Generate,
	}
	render(w, r, http.StatusOK, s.layout(ctx, "Generate articles", generateView(page)))
}

// handleGenerate starts a bulk generation job
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := articles.GenerateForm{
		Keywords:         strings.TrimSpace(r.PostFormValue("keywords")),
		Language:         r.PostFormValue("language"),
		GPTVersion:       r.PostFormValue("gptVersion"),
		AIGeneratedTitle: r.PostFormValue("aiGeneratedTitle") != "",
	}
	form.NumFAQs, _ = strconv.Atoi(r.PostFormValue("numFAQs"))
	form.WordCount, _ = strconv.Atoi(r.PostFormValue("wordCount"))
	for _, site := range ws.Generate.Sites() {
		form.Sites = append(form.Sites, site.WordPressSite)
	}
	page := generatePage{Form: form, Presets: s.config.Presets, Sites: ws.Generate}

	message, err := articles.Submit(ctx, ws.Client, form, s.config.Presets)
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			page.Errors = validate.Fields(verrs)
			if msg, ok := page.Errors["numFAQs"]; ok {
				ws.Toasts.Error(msg)
			}
		case isValidation(err):
			page.Errors = formErrors(err, nil)
		case isSessionExpired(err):
			s.fail(w, r, err, "", "/login")
			return
		default:
			ws.Toasts.Error(api.MessageOf(err, "Failed to generate articles"))
		}
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Generate articles", generateView(page)))
		return
	}

	if message == "" {
		message = "Article generation started"
	}
	ws.Generate.Reset()
	ws.Toasts.Success(message)
	redirect(w, r, "/articles")
}

// handleGenerateVerifySite verifies a site for the generation form
func (s *Server) handleGenerateVerifySite(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.verifySite(w, r, ws.Generate, "/articles/new")
}

// handleGenerateRemoveSite drops a verified site from the generation form
func (s *Server) handleGenerateRemoveSite(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	ws.Generate.Remove(chi.URLParam(r, "siteID"))
	redirect(w, r, "/articles/new")
}

// fetchArticle loads an article and keeps the search index current
func (s *Server) fetchArticle(w http.ResponseWriter, r *http.Request) (*api.Article, bool) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)

	id, ok := articleID(r)
	if !ok {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return nil, false
	}
	article, err := ws.Client.GetArticle(ctx, id)
	if err != nil {
		if api.StatusOf(err) == http.StatusNotFound {
			ws.Toasts.Error("Article not found")
			redirect(w, r, "/articles")
			return nil, false
		}
		s.fail(w, r, err, "Failed to fetch article", "/articles")
		return nil, false
	}
	if err := ws.Index.Add(*article); err != nil {
		s.logger.Warn("failed to index article", "id", id, "error", err)
	}
	return article, true
}

// handleArticleView renders an article as HTML
func (s *Server) handleArticleView(w http.ResponseWriter, r *http.Request) {
	article, ok := s.fetchArticle(w, r)
	if !ok {
		return
	}
	body, err := renderMarkdown(article.Content)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render article: %v", err), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	pending, _ := ws.Deletes.Pending()
	render(w, r, http.StatusOK, s.layout(ctx, article.Heading, articleView(article, body, pending == article.ID)))
}

// handleArticleDetails renders the article metadata
func (s *Server) handleArticleDetails(w http.ResponseWriter, r *http.Request) {
	article, ok := s.fetchArticle(w, r)
	if !ok {
		return
	}
	render(w, r, http.StatusOK, s.layout(r.Context(), "Article details", articleDetailsView(article, s.config.Presets)))
}

// handleArticleCheck fetches every published copy of an article
func (s *Server) handleArticleCheck(w http.ResponseWriter, r *http.Request) {
	article, ok := s.fetchArticle(w, r)
	if !ok {
		return
	}
	results := s.postcheck.Check(r.Context(), article.Platforms)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, results)
		return
	}
	render(w, r, http.StatusOK, s.layout(r.Context(), "Published copies", postCheckView(article, results)))
}

// handleDeleteRequest opens the delete confirmation
func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	id, ok := articleID(r)
	if !ok {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	ws.Deletes.Request(id)
	redirect(w, r, deleteReturn(r, ws))
}

// handleDeleteConfirm deletes the pending article
func (s *Server) handleDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)

	id, ok := articleID(r)
	pending, open := ws.Deletes.Pending()
	if !ok || !open || pending != id {
		ws.Toasts.Error("No delete is awaiting confirmation")
		redirect(w, r, "/articles")
		return
	}

	outcome, err := ws.Deletes.Confirm(ctx)
	if err != nil {
		s.fail(w, r, err, "Failed to delete article", deleteReturn(r, ws))
		return
	}

	if err := ws.Index.Remove(outcome.DeletedID); err != nil {
		s.logger.Warn("failed to drop article from index", "id", outcome.DeletedID, "error", err)
	}
	if u := ws.Auth.User(); u != nil {
		if err := s.store.DeleteDraft(ctx, u.ID, outcome.DeletedID); err != nil {
			s.logger.Warn("failed to delete draft", "id", outcome.DeletedID, "error", err)
		}
	}
	ws.CloseEditor(outcome.DeletedID)

	ws.Toasts.Success("Article deleted successfully")
	page := max(outcome.Page, 1)
	redirect(w, r, fmt.Sprintf("/articles?page=%d", page))
}

// handleDeleteCancel closes the confirmation without deleting
func (s *Server) handleDeleteCancel(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	ws.Deletes.Cancel()
	redirect(w, r, deleteReturn(r, ws))
}

// deleteReturn is where the delete buttons send the browser back to
func deleteReturn(r *http.Request, ws *Workspace) string {
	if r.FormValue("from") == "view" {
		if id, ok := articleID(r); ok {
			return fmt.Sprintf("/articles/%d", id)
		}
	}
	return fmt.Sprintf("/articles?page=%d", max(ws.History.Current().CurrentPage, 1))
}

func articleListView(page articles.Page, pendingDelete int) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.raw(`<form method="get" action="/articles/search"><input type="search" name="q" placeholder="Search articles"> <button type="submit">Search</button></form>`)

		if pendingDelete != 0 {
			deleteModal(h, pendingDelete, "list")
		}

		if len(page.Records) == 0 {
			h.raw(`<p>No articles found. <a href="/articles/new">Generate some</a>.</p>`)
			return
		}

		from, to := page.Range()
		h.printf(`<p>Showing %d to %d of %d articles</p>`, from, to, page.Total)
		for _, a := range page.Records {
			h.raw(`<div class="card">`)
			h.printf(`<h3><a href="/articles/%d">%s</a></h3>`, a.ID, esc(a.Heading))
			h.printf(`<p><small>%s &middot; %s &middot; %s &middot; %s</small></p>`,
				esc(a.Type), esc(a.Language), esc(a.Status), a.CreatedAt.Format("Jan 2, 2006"))
			if a.Content != "" {
				h.printf(`<p>%s</p>`, esc(truncate(a.Content, 160)))
			}
			h.printf(`<a href="/articles/%d/edit">Edit</a> <a href="/articles/%d/details">Details</a> `, a.ID, a.ID)
			h.postButton(fmt.Sprintf("/articles/%d/delete", a.ID), "Delete")
			h.raw(`</div>`)
		}

		h.raw(`<div class="pagination">`)
		if page.HasPrev() {
			h.printf(`<a href="/articles?page=%d">Previous</a>`, page.CurrentPage-1)
		}
		for _, n := range page.Window() {
			if n == page.CurrentPage {
				h.printf(`<span>%d</span>`, n)
				continue
			}
			h.printf(`<a href="/articles?page=%d">%d</a>`, n, n)
		}
		if page.HasNext() {
			h.printf(`<a href="/articles?page=%d">Next</a>`, page.CurrentPage+1)
		}
		h.raw(`</div>`)
	})
}

func deleteModal(h *html, id int, from string) {
	h.raw(`<div class="modal" role="dialog"><p>Are you sure you want to delete this article? This cannot be undone.</p>`)
	h.printf(`<form method="post" action="/articles/%d/delete/confirm" style="display:inline"><input type="hidden" name="from" value="%s"><button type="submit">Delete</button></form> `, id, esc(from))
	h.printf(`<form method="post" action="/articles/%d/delete/cancel" style="display:inline"><input type="hidden" name="from" value="%s"><button type="submit">Cancel</button></form>`, id, esc(from))
	h.raw(`</div>`)
}

func searchView(query string, hits []search.Hit) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.printf(`<form method="get" action="/articles/search"><input type="search" name="q" value="%s"> <button type="submit">Search</button></form>`, esc(query))
		if query == "" {
			return
		}
		if len(hits) == 0 {
			h.printf(`<p>No loaded article matches %s.</p>`, esc(query))
			return
		}
		h.raw(`<ul class="card">`)
		for _, hit := range hits {
			h.printf(`<li><a href="/articles/%d">%s</a></li>`, hit.ID, esc(hit.Heading))
		}
		h.raw(`</ul>`)
	})
}

func articleView(article *api.Article, body string, confirmDelete bool) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.printf(`<p><a href="/articles/%d/edit">Edit</a> | <a href="/articles/%d/details">Details</a> | <a href="/articles/%d/wordpress">Publish to WordPress</a>`, article.ID, article.ID, article.ID)
		if len(article.Platforms) > 0 {
			h.printf(` | <a href="/articles/%d/check">Check published copies</a>`, article.ID)
		}
		h.raw(`</p>`)
		h.printf(`<form method="post" action="/articles/%d/delete"><input type="hidden" name="from" value="view"><button type="submit">Delete</button></form>`, article.ID)
		if confirmDelete {
			deleteModal(h, article.ID, "view")
		}
		h.raw(`<article class="card">`)
		h.render(ctx, templ.Raw(body))
		h.raw(`</article>`)
	})
}

func articleDetailsView(a *api.Article, presets config.Presets) templ.Component {
	return view(func(ctx context.Context, h *html) {
		rows := [][2]string{
			{"Heading", a.Heading},
			{"Type", a.Type},
			{"Status", a.Status},
			{"Publish status", a.PublishStatus},
			{"Language", a.Language},
			{"GPT version", articles.GPTLabel(presets, a.GPTVersion)},
			{"FAQs", strconv.Itoa(a.FAQs)},
			{"Created", a.CreatedAt.Format("Jan 2, 2006 15:04")},
			{"Updated", a.UpdatedAt.Format("Jan 2, 2006 15:04")},
		}
		h.raw(`<table class="card">`)
		for _, row := range rows {
			h.printf(`<tr><th>%s</th><td>%s</td></tr>`, esc(row[0]), esc(row[1]))
		}
		h.raw(`</table>`)

		h.raw(`<h2>Published on</h2>`)
		if len(a.Platforms) == 0 {
			h.raw(`<p>This article has not been published yet.</p>`)
		} else {
			h.raw(`<ul class="card">`)
			for _, p := range a.Platforms {
				h.printf(`<li>%s: <a href="%s" target="_blank" rel="noopener noreferrer">%s</a></li>`,
					esc(p.PlatformName), esc(safeURL(p.PostURL)), esc(p.PostURL))
			}
			h.raw(`</ul>`)
		}
		h.printf(`<p><a href="/articles/%d">Back to article</a></p>`, a.ID)
	})
}

func postCheckView(a *api.Article, results []postcheck.Result) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.printf(`<p>%s</p>`, esc(a.Heading))
		if len(results) == 0 {
			h.raw(`<p>This article has not been published yet.</p>`)
			return
		}
		h.raw(`<table class="card"><tr><th>Platform</th><th>Status</th><th>Title</th><th>Length</th></tr>`)
		for _, res := range results {
			status := string(res.Status)
			if res.HTTPStatus != 0 {
				status = fmt.Sprintf("%s (%d)", status, res.HTTPStatus)
			}
			if res.Error != "" {
				status += ": " + res.Error
			}
			h.printf(`<tr><td><a href="%s" target="_blank" rel="noopener noreferrer">%s</a></td><td>%s</td><td>%s</td><td>%d</td></tr>`,
				esc(safeURL(res.URL)), esc(res.Platform), esc(status), esc(res.Title), res.Length)
		}
		h.raw(`</table>`)
	})
}

func generateView(page generatePage) templ.Component {
	return view(func(ctx context.Context, h *html) {
		f, p := page.Form, page.Presets

		h.raw(`<form method="post" action="/articles/new" class="card">`)
		h.printf(`<div class="field"><label for="keywords">Keywords (one per line)</label><textarea id="keywords" name="keywords" rows="5">%s</textarea>`, esc(f.Keywords))
		fieldError(h, page.Errors, "keywords")
		h.raw(`</div>`)

		h.raw(`<div class="field"><label for="language">Language</label><select id="language" name="language">`)
		for _, l := range p.Languages {
			h.printf(`<option value="%s"%s>%s</option>`, esc(l), selected(l == f.Language), esc(l))
		}
		h.raw(`</select>`)
		fieldError(h, page.Errors, "language")
		h.raw(`</div>`)

		h.printf(`<div class="field"><label for="numFAQs">Number of FAQs</label><input id="numFAQs" type="number" name="numFAQs" min="1" max="%d" value="%d">`, p.MaxFAQs, f.NumFAQs)
		fieldError(h, page.Errors, "numFAQs")
		h.raw(`</div>`)

		h.raw(`<div class="field"><label for="gptVersion">GPT version</label><select id="gptVersion" name="gptVersion">`)
		for _, v := range p.GPTVersions {
			h.printf(`<option value="%s"%s>%s</option>`, esc(v.Value), selected(v.Value == f.GPTVersion), esc(v.Label))
		}
		h.raw(`</select>`)
		fieldError(h, page.Errors, "gptVersion")
		h.raw(`</div>`)

		h.raw(`<div class="field"><label for="wordCount">Word count</label><select id="wordCount" name="wordCount">`)
		for _, c := range p.WordCounts {
			h.printf(`<option value="%d"%s>%d words (%s)</option>`, c.Words, selected(c.Words == f.WordCount), c.Words, esc(c.ArticleType))
		}
		h.raw(`</select>`)
		fieldError(h, page.Errors, "wordCount")
		h.raw(`</div>`)

		h.printf(`<div class="field"><label><input type="checkbox" name="aiGeneratedTitle" value="1"%s> AI generated title</label></div>`, checked(f.AIGeneratedTitle))
		h.fieldErrors(page.Errors, "keywords", "language", "numFAQs", "gptVersion", "wordCount")

		sites := page.Sites.Sites()
		h.printf(`<p>%d WordPress site(s) will receive the generated articles.</p>`, len(sites))
		h.raw(`<button type="submit">Generate</button></form>`)

		sitesPanel(h, page.Sites, "/articles/new")
	})
}

func fieldError(h *html, errs map[string]string, name string) {
	if msg, ok := errs[name]; ok {
		h.printf(`<div class="field-error">%s</div>`, esc(msg))
	}
}

// safeURL keeps only http and https links
func safeURL(u string) string {
	lower := strings.ToLower(strings.TrimSpace(u))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "#"
}
