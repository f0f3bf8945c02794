package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/tkilaker/inkdesk/internal/api"
)

type stubChecker struct {
	status *api.AuthStatus
	err    error
	calls  int
}

func (s *stubChecker) CheckAuth(context.Context) (*api.AuthStatus, error) {
	s.calls++
	return s.status, s.err
}

func TestCheckCachesResult(t *testing.T) {
	client := &stubChecker{status: &api.AuthStatus{Authenticated: true, User: &api.User{Username: "jane"}}}
	store := NewStore(client, nil)

	for i := 0; i < 2; i++ {
		ok, err := store.Check(context.Background())
		if err != nil || !ok {
			t.Fatalf("expected authenticated, got %v %v", ok, err)
		}
	}
	if client.calls != 1 {
		t.Fatalf("expected one backend call, got %d", client.calls)
	}
	if u := store.User(); u == nil || u.Username != "jane" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestCheckFailureSignsOut(t *testing.T) {
	client := &stubChecker{err: &api.Error{Status: http.StatusUnauthorized}}
	store := NewStore(client, nil)

	ok, err := store.Check(context.Background())
	if ok || api.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 error, got %v %v", ok, err)
	}
	if store.Authenticated() || store.User() != nil {
		t.Fatal("expected cleared store")
	}
}

func TestSetAuthenticatedSkipsCheck(t *testing.T) {
	client := &stubChecker{}
	store := NewStore(client, nil)
	store.SetAuthenticated(true)

	ok, err := store.Check(context.Background())
	if !ok || err != nil {
		t.Fatalf("expected cached sign in, got %v %v", ok, err)
	}
	if client.calls != 0 {
		t.Fatalf("expected no backend call, got %d", client.calls)
	}
}

func TestRefreshKeepsStateOnError(t *testing.T) {
	client := &stubChecker{status: &api.AuthStatus{Authenticated: true, User: &api.User{Username: "jane"}}}
	store := NewStore(client, nil)
	store.Check(context.Background())

	client.err = errors.New("offline")
	if err := store.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if !store.Authenticated() || store.User().Username != "jane" {
		t.Fatal("refresh failure should keep the previous user")
	}

	client.err = nil
	client.status = &api.AuthStatus{Authenticated: true, User: &api.User{Username: "jane_new"}}
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.User().Username != "jane_new" {
		t.Fatalf("expected refreshed user, got %+v", store.User())
	}
}

func TestUserIsACopy(t *testing.T) {
	client := &stubChecker{status: &api.AuthStatus{Authenticated: true, User: &api.User{Username: "jane"}}}
	store := NewStore(client, nil)
	store.Check(context.Background())

	u := store.User()
	u.Username = "mutated"
	if store.User().Username != "jane" {
		t.Fatal("store user should not be mutable through the returned pointer")
	}
}

func TestToggleSidebarSurvivesClear(t *testing.T) {
	store := NewStore(&stubChecker{}, nil)
	if !store.ToggleSidebar() {
		t.Fatal("expected collapsed after first toggle")
	}
	store.Clear()
	if !store.Preferences().SidebarCollapsed {
		t.Fatal("preferences should survive sign out")
	}
}
