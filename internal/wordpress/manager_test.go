package wordpress

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/tkilaker/inkdesk/internal/api"
)

type stubClient struct {
	mu         sync.Mutex
	verifyErr  error
	result     *api.PublishResult
	publishErr error
	published  []api.WordPressSite
	block      chan struct{}
}

func (s *stubClient) VerifyWordPressSite(ctx context.Context, site api.WordPressSite) error {
	if s.block != nil {
		<-s.block
	}
	return s.verifyErr
}

func (s *stubClient) PublishArticle(ctx context.Context, articleID int, sites []api.WordPressSite) (*api.PublishResult, error) {
	s.mu.Lock()
	s.published = append([]api.WordPressSite(nil), sites...)
	s.mu.Unlock()
	if s.publishErr != nil {
		return nil, s.publishErr
	}
	return s.result, nil
}

func site(url string) api.WordPressSite {
	return api.WordPressSite{URL: url, Username: "admin", Password: "secret"}
}

func TestVerifyAddsSite(t *testing.T) {
	m := NewManager(&stubClient{}, nil)
	m.SetCandidate(site("https://a.example"))

	added, err := m.Verify(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected verified site to get an id")
	}
	if m.State() != StateVerified {
		t.Fatalf("expected verified state, got %s", m.State())
	}
	if sites := m.Sites(); len(sites) != 1 || sites[0].URL != "https://a.example" {
		t.Fatalf("unexpected sites: %+v", sites)
	}
	if m.Candidate() != (api.WordPressSite{}) {
		t.Fatal("expected candidate cleared after verification")
	}
}

func TestVerifyRejectedUsername(t *testing.T) {
	client := &stubClient{verifyErr: &api.Error{Status: http.StatusUnauthorized, Message: "Invalid username supplied"}}
	m := NewManager(client, nil)
	m.SetCandidate(site("https://a.example"))

	if _, err := m.Verify(context.Background()); err == nil {
		t.Fatal("expected rejection")
	}
	if m.State() != StateRejected {
		t.Fatalf("expected rejected state, got %s", m.State())
	}
	if got := m.FieldErrors()[FieldUsername]; got != "Invalid WordPress username" {
		t.Fatalf("unexpected username error: %q", got)
	}
	if _, ok := m.FieldErrors()[FieldPassword]; ok {
		t.Fatal("did not expect a password error")
	}
	if len(m.Sites()) != 0 {
		t.Fatal("rejected site must not join the list")
	}
	if m.Candidate().URL != "https://a.example" {
		t.Fatal("candidate should be kept for correction")
	}
	if m.LastError() != "Invalid username supplied" {
		t.Fatalf("unexpected last error: %q", m.LastError())
	}
}

func TestVerifyRejectedPassword(t *testing.T) {
	client := &stubClient{verifyErr: &api.Error{Status: http.StatusUnauthorized, Message: "Incorrect password"}}
	m := NewManager(client, nil)
	m.SetCandidate(site("https://a.example"))
	m.Verify(context.Background())

	if got := m.FieldErrors()[FieldPassword]; got != "Invalid WordPress password" {
		t.Fatalf("unexpected password error: %q", got)
	}
}

func TestVerifyRequiresFields(t *testing.T) {
	m := NewManager(&stubClient{}, nil)
	m.SetCandidate(api.WordPressSite{URL: "https://a.example"})

	if _, err := m.Verify(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	errs := m.FieldErrors()
	if errs[FieldUsername] == "" || errs[FieldPassword] == "" {
		t.Fatalf("expected username and password errors, got %v", errs)
	}
	if errs[FieldURL] != "" {
		t.Fatalf("did not expect a url error, got %q", errs[FieldURL])
	}
}

func TestVerifyRejectsConcurrentAttempt(t *testing.T) {
	client := &stubClient{block: make(chan struct{})}
	m := NewManager(client, nil)
	m.SetCandidate(site("https://a.example"))

	done := make(chan error)
	go func() {
		_, err := m.Verify(context.Background())
		done <- err
	}()

	for m.State() != StateVerifying {
		runtime.Gosched()
	}
	if _, err := m.Verify(context.Background()); !errors.Is(err, ErrVerifyInFlight) {
		t.Fatalf("expected ErrVerifyInFlight, got %v", err)
	}
	if m.CanPublish() {
		t.Fatal("should not publish during verification")
	}
	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRemove(t *testing.T) {
	m := NewManager(&stubClient{}, nil)
	m.SetCandidate(site("https://a.example"))
	a, _ := m.Verify(context.Background())
	m.SetCandidate(site("https://b.example"))
	m.Verify(context.Background())

	if !m.Remove(a.ID) {
		t.Fatal("expected site removed")
	}
	if m.Remove(a.ID) {
		t.Fatal("second remove should report false")
	}
	sites := m.Sites()
	if len(sites) != 1 || sites[0].URL != "https://b.example" {
		t.Fatalf("unexpected sites: %+v", sites)
	}
}

func TestPublishPartialSuccess(t *testing.T) {
	client := &stubClient{result: &api.PublishResult{SuccessCount: 1, TotalSites: 2}}
	m := NewManager(client, nil)
	for _, u := range []string{"https://a.example", "https://b.example"} {
		m.SetCandidate(site(u))
		if _, err := m.Verify(context.Background()); err != nil {
			t.Fatalf("verify %s: %v", u, err)
		}
	}

	var recorded int
	m.OnPublish(func(_ context.Context, articleID int, sites []api.WordPressSite, _ *api.PublishResult) {
		recorded = len(sites)
	})

	result, msg, err := m.Publish(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 1 || result.TotalSites != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(msg, "1") || !strings.Contains(msg, "2") {
		t.Fatalf("message should mention both counts: %q", msg)
	}
	if msg != "Article published successfully 1 of 2!" {
		t.Fatalf("unexpected message: %q", msg)
	}
	if len(client.published) != 2 || client.published[0].URL != "https://a.example" {
		t.Fatalf("expected sites sent in order, got %+v", client.published)
	}
	if len(m.Sites()) != 0 {
		t.Fatal("expected list cleared after publish")
	}
	if recorded != 2 {
		t.Fatalf("expected recorder called with 2 sites, got %d", recorded)
	}
}

func TestPublishFailureKeepsSites(t *testing.T) {
	client := &stubClient{publishErr: &api.Error{Status: http.StatusInternalServerError, Message: "boom"}}
	m := NewManager(client, nil)
	m.SetCandidate(site("https://a.example"))
	m.Verify(context.Background())

	if _, _, err := m.Publish(context.Background(), 1); err == nil {
		t.Fatal("expected publish error")
	}
	if len(m.Sites()) != 1 {
		t.Fatal("failed publish must keep the verified list")
	}
	if m.LastError() != "boom" {
		t.Fatalf("unexpected last error: %q", m.LastError())
	}
	if !m.CanPublish() {
		t.Fatal("expected publish to be possible again")
	}
}

func TestPublishWithoutSites(t *testing.T) {
	m := NewManager(&stubClient{}, nil)
	if m.CanPublish() {
		t.Fatal("empty list should not be publishable")
	}
	if _, _, err := m.Publish(context.Background(), 1); !errors.Is(err, ErrNoSites) {
		t.Fatalf("expected ErrNoSites, got %v", err)
	}
}
