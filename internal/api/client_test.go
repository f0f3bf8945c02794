package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// fakeBackend mimics the cookie + CSRF behaviour of the real API
type fakeBackend struct {
	t          *testing.T
	token      string
	csrfHits   atomic.Int32
	csrfGate   chan struct{}
	handlers   map[string]http.HandlerFunc
	lastHeader http.Header
	mu         sync.Mutex
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	fb := &fakeBackend{t: t, token: "tok/en=1", handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == csrfPath {
		fb.csrfHits.Add(1)
		if fb.csrfGate != nil {
			<-fb.csrfGate
		}
		http.SetCookie(w, &http.Cookie{Name: csrfCookieName, Value: "tok%2Fen%3D1", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	fb.mu.Lock()
	fb.lastHeader = r.Header.Clone()
	fb.mu.Unlock()

	h, ok := fb.handlers[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"not found"}`)
		return
	}
	h(w, r)
}

func (fb *fakeBackend) header(name string) string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastHeader.Get(name)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("/api"); err == nil {
		t.Fatal("expected error for relative base url")
	}
}

func TestMutatingRequestFetchesCSRFTokenFirst(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handlers["PUT /api/contents/articles/update/3"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["article_content"] != "# Title" {
			t.Errorf("unexpected body: %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	}

	c := newTestClient(t, srv)
	if err := c.UpdateArticleContent(context.Background(), 3, "# Title"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fb.csrfHits.Load(); got != 1 {
		t.Fatalf("expected 1 csrf fetch, got %d", got)
	}
	if got := fb.header(csrfHeaderName); got != fb.token {
		t.Fatalf("expected decoded token %q, got %q", fb.token, got)
	}
	if got := fb.header("X-Requested-With"); got != "XMLHttpRequest" {
		t.Fatalf("expected X-Requested-With header, got %q", got)
	}

	// The token is cached in the jar for the next request
	if err := c.UpdateArticleContent(context.Background(), 3, "# Title"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fb.csrfHits.Load(); got != 1 {
		t.Fatalf("expected cached token, got %d csrf fetches", got)
	}
}

func TestReadRequestDoesNotFetchCSRF(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handlers["GET /api/client/check-auth"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user":          map[string]any{"id": 4, "username": "writer", "first_name": "Ada"},
		})
	}

	c := newTestClient(t, srv)
	status, err := c.CheckAuth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Authenticated || status.User.Username != "writer" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if got := fb.csrfHits.Load(); got != 0 {
		t.Fatalf("expected no csrf fetch for GET, got %d", got)
	}
}

func TestSessionExpiredRefreshesAndRetriesOnce(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var calls atomic.Int32
	fb.handlers["DELETE /api/contents/articles/delete/7"] = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, StatusSessionExpired, map[string]string{"message": "CSRF token mismatch."})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}

	c := newTestClient(t, srv)
	if err := c.DeleteArticle(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
	// initial fetch + refresh after 419
	if got := fb.csrfHits.Load(); got != 2 {
		t.Fatalf("expected 2 csrf fetches, got %d", got)
	}
}

func TestSessionExpiredTwiceSurfacesError(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var calls atomic.Int32
	fb.handlers["POST /api/client/logout"] = func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, StatusSessionExpired, map[string]string{"message": "Page Expired"})
	}

	c := newTestClient(t, srv)
	err := c.Logout(context.Background())
	if StatusOf(err) != StatusSessionExpired {
		t.Fatalf("expected 419 error, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected exactly one retry, got %d attempts", got)
	}
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.csrfGate = make(chan struct{})
	c := newTestClient(t, srv)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.RefreshCSRF(context.Background())
		}()
	}

	// Let every caller join the outstanding refresh before it completes
	time.Sleep(100 * time.Millisecond)
	close(fb.csrfGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := fb.csrfHits.Load(); got != 1 {
		t.Fatalf("expected a single refresh call, got %d", got)
	}
	if c.csrfToken() != fb.token {
		t.Fatalf("expected token in jar, got %q", c.csrfToken())
	}
}

func TestCanceledCallerDoesNotFailSharedRefresh(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.csrfGate = make(chan struct{})
	c := newTestClient(t, srv)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() { leader <- c.RefreshCSRF(leaderCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	for fb.csrfHits.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresh never reached the backend")
		}
		time.Sleep(5 * time.Millisecond)
	}

	waiter := make(chan error, 1)
	go func() { waiter <- c.RefreshCSRF(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-leader:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected leader to see its own cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(fb.csrfGate)
	if err := <-waiter; err != nil {
		t.Fatalf("waiter with a live context failed: %v", err)
	}
	if got := fb.csrfHits.Load(); got != 1 {
		t.Fatalf("expected a single refresh call, got %d", got)
	}
	if c.csrfToken() != fb.token {
		t.Fatalf("expected token in jar, got %q", c.csrfToken())
	}
}

func TestValidationErrorDecoding(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handlers["PUT /api/client/settings/update-username"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors": map[string]any{
				"username": []string{"The username has already been taken."},
				"email":    "Single message",
			},
		})
	}

	c := newTestClient(t, srv)
	err := c.UpdateUsername(context.Background(), "taken")
	fields := FieldErrors(err)
	if len(fields["username"]) != 1 || fields["username"][0] != "The username has already been taken." {
		t.Fatalf("unexpected field errors: %v", fields)
	}
	if fields["email"][0] != "Single message" {
		t.Fatalf("expected string form decoded, got %v", fields["email"])
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.FirstFieldError() != "Single message" {
		t.Fatalf("expected alphabetical first field error, got %q", apiErr.FirstFieldError())
	}
	if !goerrors.IsCategory(Categorize(err), goerrors.CategoryValidation) {
		t.Fatal("expected validation category")
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unauthorized", &Error{Status: http.StatusUnauthorized}, func(e error) bool { return goerrors.IsCategory(e, goerrors.CategoryAuth) }},
		{"expired", &Error{Status: StatusSessionExpired}, func(e error) bool { return goerrors.IsCategory(e, goerrors.CategoryAuth) }},
		{"not found", &Error{Status: http.StatusNotFound}, func(e error) bool { return goerrors.IsCategory(e, goerrors.CategoryNotFound) }},
		{"server", &Error{Status: http.StatusInternalServerError}, func(e error) bool { return goerrors.IsCategory(e, goerrors.CategoryExternal) }},
		{"network", errors.New("dial tcp: connection refused"), func(e error) bool { return goerrors.IsCategory(e, goerrors.CategoryExternal) }},
		{"canceled", context.Canceled, func(e error) bool { return goerrors.IsCategory(e, goerrors.CategoryCommand) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.check(Categorize(tc.err)) {
				t.Fatalf("unexpected category for %v", tc.err)
			}
		})
	}
	if Categorize(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestMessageOf(t *testing.T) {
	err := newError(http.StatusUnauthorized, []byte(`{"error":"Invalid username for this site"}`))
	if got := MessageOf(err, "fallback"); got != "Invalid username for this site" {
		t.Fatalf("expected error field used as message, got %q", got)
	}
	if got := MessageOf(errors.New("boom"), "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := newError(http.StatusBadGateway, []byte("<html>")).Message; got != "Bad Gateway" {
		t.Fatalf("expected status text for non-json body, got %q", got)
	}
}

func TestRegisterSendsMultipart(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handlers["POST /api/client/register"] = func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart content type, got %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("username") != "ada_l" || r.FormValue("password_confirmation") != "Abcdef1!" {
			t.Errorf("unexpected form: %v", r.MultipartForm.Value)
		}
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Registered"})
	}

	c := newTestClient(t, srv)
	err := c.Register(context.Background(), RegisterRequest{
		FirstName: "Ada", LastName: "Lovelace", Username: "ada_l", Email: "ada@example.com",
		Password: "Abcdef1!", PasswordConfirmation: "Abcdef1!",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListArticlesSendsPage(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handlers["GET /api/contents/articles/show"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("expected page=2, got %q", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":         []map[string]any{{"id": 7, "article_heading": "Seven"}},
			"current_page": 2,
			"last_page":    3,
			"total":        13,
		})
	}

	c := newTestClient(t, srv)
	page, err := c.ListArticles(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 13 || page.LastPage != 3 || page.Data[0].Heading != "Seven" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestPublishArticleBatch(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handlers["POST /api/contents/articles/publish"] = func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ArticleID      int             `json:"articleID"`
			WordPressSites []WordPressSite `json:"wordPressSites"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.ArticleID != 9 || len(body.WordPressSites) != 2 || body.WordPressSites[1].URL != "https://b.example" {
			t.Errorf("unexpected publish body: %+v", body)
		}
		writeJSON(w, http.StatusOK, map[string]int{"success_count": 1, "total_sites": 2})
	}

	c := newTestClient(t, srv)
	result, err := c.PublishArticle(context.Background(), 9, []WordPressSite{
		{URL: "https://a.example", Username: "a", Password: "x"},
		{URL: "https://b.example", Username: "b", Password: "y"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 1 || result.TotalSites != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVerifyWordPressSiteRejected(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handlers["POST /api/contents/articles/verify-wordpress-site"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid password for user"})
	}

	c := newTestClient(t, srv)
	err := c.VerifyWordPressSite(context.Background(), WordPressSite{URL: "https://a.example"})
	if StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if MessageOf(err, "") != "Invalid password for user" {
		t.Fatalf("unexpected message: %q", MessageOf(err, ""))
	}
}

func TestVerifyWordPressSiteUnsuccessfulBody(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handlers["POST /api/contents/articles/verify-wordpress-site"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
	}

	c := newTestClient(t, srv)
	if err := c.VerifyWordPressSite(context.Background(), WordPressSite{}); err == nil {
		t.Fatal("expected error when success is false")
	}
}
