package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/tkilaker/inkdesk/internal/config"
	"github.com/tkilaker/inkdesk/internal/database"
	"github.com/tkilaker/inkdesk/internal/logging"
	"github.com/tkilaker/inkdesk/internal/server"
)

const (
	testPassword = "Secret1!"
	apiSession   = "api_session"
)

// fakeAPI is a minimal stand-in for the content backend
type fakeAPI struct {
	mu        sync.Mutex
	content   string
	deleted   []int
	published int
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/sanctum/csrf-cookie" {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "csrf", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_, err := r.Cookie(apiSession)
	signedIn := err == nil

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/client/check-auth":
		if !signedIn {
			apiJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		apiJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user":          map[string]any{"id": 1, "first_name": "Ada", "last_name": "Lovelace", "username": "ada", "email": "ada@example.com"},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/client/login":
		var body struct {
			Login    string `json:"login"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Password != testPassword {
			apiJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "The given data was invalid.",
				"errors":  map[string][]string{"login": {"These credentials do not match our records."}},
			})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: apiSession, Value: "s1", Path: "/"})
		apiJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	case r.Method == http.MethodPost && r.URL.Path == "/api/client/logout":
		http.SetCookie(w, &http.Cookie{Name: apiSession, Value: "", Path: "/", MaxAge: -1})
		apiJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
	case !signedIn:
		apiJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
	case r.Method == http.MethodGet && r.URL.Path == "/api/client/dashboard/stats":
		apiJSON(w, http.StatusOK, map[string]any{
			"stats":           map[string]any{"total_articles": 3, "published_articles": 1, "publication_rate": 33.3, "total_words": 3000},
			"recent_articles": []any{},
		})
	case r.Method == http.MethodGet && r.URL.Path == "/api/contents/articles/show":
		apiJSON(w, http.StatusOK, map[string]any{
			"data":         []any{f.article()},
			"current_page": 1,
			"last_page":    1,
			"per_page":     10,
			"total":        1,
		})
	case r.Method == http.MethodGet && r.URL.Path == "/api/contents/articles/show/7":
		apiJSON(w, http.StatusOK, f.article())
	case r.Method == http.MethodPut && r.URL.Path == "/api/contents/articles/update/7":
		var body struct {
			Content string `json:"article_content"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.content = body.Content
		f.mu.Unlock()
		apiJSON(w, http.StatusOK, map[string]any{"message": "updated"})
	case r.Method == http.MethodDelete && r.URL.Path == "/api/contents/articles/delete/7":
		f.mu.Lock()
		f.deleted = append(f.deleted, 7)
		f.mu.Unlock()
		apiJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
	case r.Method == http.MethodPost && r.URL.Path == "/api/contents/articles/verify-wordpress-site":
		var site struct {
			Username string `json:"wpUsername"`
		}
		json.NewDecoder(r.Body).Decode(&site)
		if site.Username == "bad" {
			apiJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid username"})
			return
		}
		apiJSON(w, http.StatusOK, map[string]any{"success": true})
	case r.Method == http.MethodPost && r.URL.Path == "/api/contents/articles/publish":
		f.mu.Lock()
		f.published++
		f.mu.Unlock()
		apiJSON(w, http.StatusOK, map[string]any{"success_count": 1, "total_sites": 1})
	case r.Method == http.MethodPost && r.URL.Path == "/api/client/settings/check-username":
		apiJSON(w, http.StatusOK, map[string]any{"available": true})
	default:
		apiJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	}
}

func (f *fakeAPI) article() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{
		"id":              7,
		"article_heading": "Hello world",
		"article_content": f.content,
		"article_type":    "Short",
		"article_status":  "completed",
		"publish_status":  "draft",
		"created_at":      "2024-01-01T10:00:00Z",
		"updated_at":      "2024-01-02T10:00:00Z",
	}
}

func apiJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type testEnv struct {
	t      *testing.T
	api    *fakeAPI
	store  *database.Memory
	app    *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := &fakeAPI{content: "Hello world\n\nSecond paragraph"}
	backend := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		APIBaseURL:           backend.URL,
		APITimeout:           5 * time.Second,
		SessionSecret:        strings.Repeat("k", 32),
		WorkspaceIdleTTL:     time.Hour,
		AvailabilityDebounce: 10 * time.Millisecond,
		FeedTitle:            "Inkdesk publishes",
		FeedDescription:      "Recent publish batches",
		FeedLink:             "http://inkdesk.test",
		FeedAuthor:           "Inkdesk",
		Presets:              config.DefaultPresets(),
	}

	store := database.NewMemory()
	logs, err := logging.New("error", "console")
	if err != nil {
		t.Fatalf("logging: %v", err)
	}
	srv := server.New(cfg, store, logs)
	app := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		app.Close()
		srv.Registry().Close()
	})

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{t: t, api: fake, store: store, app: app, client: client}
}

func (e *testEnv) get(path string) (*http.Response, string) {
	e.t.Helper()
	resp, err := e.client.Get(e.app.URL + path)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(e.t, resp)
}

func (e *testEnv) getJSON(path string, out any) *http.Response {
	e.t.Helper()
	req, _ := http.NewRequest(http.MethodGet, e.app.URL+path, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	body := readBody(e.t, resp)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		e.t.Fatalf("decode %s: %v (%s)", path, err, body)
	}
	return resp
}

func (e *testEnv) post(path string, form url.Values) (*http.Response, string) {
	e.t.Helper()
	resp, err := e.client.PostForm(e.app.URL+path, form)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(e.t, resp)
}

func (e *testEnv) postJSON(path string, body any) (*http.Response, string) {
	e.t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := e.client.Post(e.app.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(e.t, resp)
}

func (e *testEnv) login() {
	e.t.Helper()
	resp, _ := e.post("/login", url.Values{"login": {"ada"}, "password": {testPassword}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/dashboard" {
		e.t.Fatalf("login: status %d location %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get("/health")
	if resp.StatusCode != http.StatusOK || body != "OK" {
		t.Fatalf("health: %d %q", resp.StatusCode, body)
	}
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/dashboard", "/articles", "/articles/7/edit", "/settings"} {
		resp, _ := env.get(path)
		expectRedirect(t, resp, "/login")
	}

	resp, _ := env.postJSON("/articles/7/edit/commands", map[string]any{"command": "bold"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for JSON caller, got %d", resp.StatusCode)
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post("/login", url.Values{"login": {""}, "password": {""}})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Username or email is required") {
		t.Error("missing required-field error")
	}

	resp, body = env.post("/login", url.Values{"login": {"ada"}, "password": {"wrong"}})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "These credentials do not match our records.") {
		t.Error("backend field error not shown")
	}

	env.login()

	resp, body = env.get("/dashboard")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Total articles: <strong>3</strong>") {
		t.Error("dashboard stats not rendered")
	}
	if !strings.Contains(body, "Login successful!") {
		t.Error("login toast not rendered")
	}

	resp, _ = env.get("/login")
	expectRedirect(t, resp, "/dashboard")
}

func TestLogoutForgetsLoadedArticles(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	if resp, _ := env.get("/articles"); resp.StatusCode != http.StatusOK {
		t.Fatalf("article list: %d", resp.StatusCode)
	}
	var found struct {
		Hits []struct{ ID int } `json:"hits"`
	}
	env.getJSON("/articles/search?q=hello", &found)
	if len(found.Hits) != 1 || found.Hits[0].ID != 7 {
		t.Fatalf("expected article 7 to be searchable, got %+v", found.Hits)
	}

	resp, _ := env.post("/logout", nil)
	expectRedirect(t, resp, "/login")

	resp, _ = env.get("/articles/search?q=hello")
	expectRedirect(t, resp, "/login")

	env.login()
	var after struct {
		Hits []struct{ ID int } `json:"hits"`
	}
	env.getJSON("/articles/search?q=hello", &after)
	if len(after.Hits) != 0 {
		t.Fatalf("expected no hits after logout, got %+v", after.Hits)
	}
}

func TestEditorCommandsAutosaveAndSave(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	resp, body := env.get("/articles/7/edit")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit page: %d", resp.StatusCode)
	}
	if !strings.Contains(body, `data-block="0"`) {
		t.Error("editor blocks not rendered")
	}

	cmd := map[string]any{
		"command":   "bold",
		"selection": map[string]any{"anchor": map[string]int{"block": 0, "offset": 0}, "focus": map[string]int{"block": 0, "offset": 5}},
	}
	resp, body = env.postJSON("/articles/7/edit/commands", cmd)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("command: %d %s", resp.StatusCode, body)
	}
	var res struct {
		Markdown string `json:"markdown"`
		Dirty    bool   `json:"dirty"`
		HTML     string `json:"html"`
	}
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(res.Markdown, "**Hello** world") {
		t.Errorf("unexpected markdown %q", res.Markdown)
	}
	if !res.Dirty {
		t.Error("editor should be dirty")
	}
	if !strings.Contains(res.HTML, "<strong>Hello</strong>") {
		t.Errorf("unexpected html %q", res.HTML)
	}

	draft, err := env.store.GetDraft(context.Background(), 1, 7)
	if err != nil || draft == nil {
		t.Fatalf("expected autosaved draft, got %v %v", draft, err)
	}

	resp, _ = env.postJSON("/articles/7/edit/commands", map[string]any{"command": "nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown command: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = env.post("/articles/7/edit/save", nil)
	expectRedirect(t, resp, "/articles/7")

	env.api.mu.Lock()
	saved := env.api.content
	env.api.mu.Unlock()
	if !strings.HasPrefix(saved, "**Hello** world") {
		t.Errorf("backend content not updated: %q", saved)
	}
	if draft, _ := env.store.GetDraft(context.Background(), 1, 7); draft != nil {
		t.Error("draft should be removed after save")
	}

	resp, _ = env.postJSON("/articles/7/edit/commands", cmd)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("closed editor: expected 409, got %d", resp.StatusCode)
	}
}

func TestDeleteFlow(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	resp, body := env.get("/articles")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Hello world") {
		t.Fatalf("article list: %d", resp.StatusCode)
	}

	resp, _ = env.post("/articles/7/delete/confirm", nil)
	expectRedirect(t, resp, "/articles")
	env.api.mu.Lock()
	early := len(env.api.deleted)
	env.api.mu.Unlock()
	if early != 0 {
		t.Fatal("confirm without request must not delete")
	}

	resp, _ = env.post("/articles/7/delete", nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("request delete: %d", resp.StatusCode)
	}
	_, body = env.get("/articles")
	if !strings.Contains(body, "Are you sure you want to delete this article?") {
		t.Error("confirmation modal not shown")
	}

	resp, _ = env.post("/articles/7/delete/confirm", nil)
	expectRedirect(t, resp, "/articles?page=1")

	env.api.mu.Lock()
	defer env.api.mu.Unlock()
	if len(env.api.deleted) != 1 {
		t.Errorf("expected one delete, got %v", env.api.deleted)
	}
}

func TestPublishRecordsFeedItem(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	resp, body := env.get("/articles/7/wordpress")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "No verified sites yet.") {
		t.Fatalf("publish page: %d", resp.StatusCode)
	}

	resp, _ = env.post("/articles/7/wordpress/publish", url.Values{"heading": {"Hello world"}})
	expectRedirect(t, resp, "/articles/7/wordpress")

	resp, _ = env.post("/articles/7/wordpress/verify", url.Values{
		"wpUrl": {"https://blog.example.com"}, "wpUsername": {"bad"}, "wpPassword": {"app-pass"},
	})
	expectRedirect(t, resp, "/articles/7/wordpress")
	_, body = env.get("/articles/7/wordpress")
	if !strings.Contains(body, "Invalid WordPress username") {
		t.Error("username error not shown")
	}

	resp, _ = env.post("/articles/7/wordpress/verify", url.Values{
		"wpUrl": {"https://blog.example.com"}, "wpUsername": {"admin"}, "wpPassword": {"app-pass"},
	})
	expectRedirect(t, resp, "/articles/7/wordpress")

	resp, _ = env.post("/articles/7/wordpress/publish", url.Values{"heading": {"Hello world"}})
	expectRedirect(t, resp, "/articles/7")
	if env.api.published != 1 {
		t.Fatalf("expected one publish call, got %d", env.api.published)
	}

	resp, body = env.get("/rss.xml")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rss: %d", resp.StatusCode)
	}
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		t.Fatalf("parse feed: %v", err)
	}
	if len(feed.Items) != 1 {
		t.Fatalf("expected 1 feed item, got %d", len(feed.Items))
	}
	item := feed.Items[0]
	if item.Title != "Hello world" {
		t.Errorf("unexpected title %q", item.Title)
	}
	if item.Link != "http://inkdesk.test/articles/7" {
		t.Errorf("unexpected link %q", item.Link)
	}
	if !strings.Contains(item.Description, "https://blog.example.com") {
		t.Errorf("description missing site: %q", item.Description)
	}
}

func TestUsernameAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	if resp, _ := env.get("/settings"); resp.StatusCode != http.StatusOK {
		t.Fatalf("settings: %d", resp.StatusCode)
	}

	type state struct {
		Value  string `json:"value"`
		Status string `json:"status"`
	}
	decode := func(body string) state {
		var s state
		if err := json.Unmarshal([]byte(body), &s); err != nil {
			t.Fatalf("decode %q: %v", body, err)
		}
		return s
	}

	_, body := env.postJSON("/settings/username/check", map[string]string{"value": "a"})
	if got := decode(body).Status; got != "invalid" {
		t.Errorf("short username: expected invalid, got %q", got)
	}

	_, body = env.postJSON("/settings/username/check", map[string]string{"value": "ada"})
	if got := decode(body).Status; got != "unchanged" {
		t.Errorf("current username: expected unchanged, got %q", got)
	}

	_, body = env.postJSON("/settings/username/check", map[string]string{"value": "new_name"})
	if got := decode(body).Status; got != "checking" {
		t.Errorf("expected checking, got %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, body = env.get("/settings/username/status")
		s := decode(body)
		if s.Status == "available" && s.Value == "new_name" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("availability never resolved, last state %+v", s)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, _ := env.get("/settings/phone/status")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown field: expected 404, got %d", resp.StatusCode)
	}
}

func TestGenerateRSSFeed(t *testing.T) {
	cfg := &config.Config{FeedTitle: "Feed", FeedLink: "http://inkdesk.test/", FeedAuthor: "me"}
	records := []*database.PublishRecord{
		{ID: 2, ArticleID: 9, SuccessCount: 2, TotalSites: 3, CreatedAt: time.Now()},
		{ID: 1, ArticleID: 4, Heading: "Title", Summary: "done", SiteURLs: []string{"https://a.io"}, CreatedAt: time.Now()},
	}

	rss, err := server.GenerateRSSFeed(records, cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	feed, err := gofeed.NewParser().ParseString(rss)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(feed.Items))
	}
	if feed.Items[0].Title != "Article 9" {
		t.Errorf("untitled record: got %q", feed.Items[0].Title)
	}
	if feed.Items[0].Description != "Published to 2 of 3 sites" {
		t.Errorf("unexpected description %q", feed.Items[0].Description)
	}
	if feed.Items[1].Description != "done Sites: https://a.io" {
		t.Errorf("unexpected description %q", feed.Items[1].Description)
	}
}
