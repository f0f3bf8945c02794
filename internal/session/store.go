// Package session keeps the authentication state and UI preferences of one
// browser workspace.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/logging"
)

// AuthChecker asks the backend who is signed in
type AuthChecker interface {
	CheckAuth(ctx context.Context) (*api.AuthStatus, error)
}

// Preferences are per-workspace UI settings
type Preferences struct {
	SidebarCollapsed bool `json:"sidebar_collapsed"`
}

// Store is the auth state for one workspace
type Store struct {
	client AuthChecker
	logger logging.Logger

	mu            sync.RWMutex
	checked       bool
	authenticated bool
	user          *api.User
	prefs         Preferences
}

// NewStore creates an unchecked store
func NewStore(client AuthChecker, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Store{client: client, logger: logger}
}

// Check populates the store from the backend the first time it is called
// and returns the cached answer afterwards. A failed check leaves the store
// signed out.
func (s *Store) Check(ctx context.Context) (bool, error) {
	s.mu.RLock()
	checked, authenticated := s.checked, s.authenticated
	s.mu.RUnlock()
	if checked {
		return authenticated, nil
	}

	status, err := s.client.CheckAuth(ctx)
	if err != nil {
		s.Clear()
		s.mu.Lock()
		s.checked = true
		s.mu.Unlock()
		return false, fmt.Errorf("failed to check authentication: %w", err)
	}
	s.apply(status)
	return status.Authenticated, nil
}

// Refresh reloads the user from the backend. On failure the previous state
// is kept.
func (s *Store) Refresh(ctx context.Context) error {
	status, err := s.client.CheckAuth(ctx)
	if err != nil {
		s.logger.Warn("failed to refresh user data", "error", err)
		return fmt.Errorf("failed to refresh user data: %w", err)
	}
	s.apply(status)
	return nil
}

func (s *Store) apply(status *api.AuthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = true
	s.authenticated = status.Authenticated
	if status.Authenticated && status.User != nil {
		u := *status.User
		s.user = &u
	} else if !status.Authenticated {
		s.user = nil
	}
}

// SetAuthenticated marks the store signed in, for example right after login
// before the user has been fetched
func (s *Store) SetAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = true
	s.authenticated = v
	if !v {
		s.user = nil
	}
}

// Clear signs the store out. Preferences are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	s.user = nil
}

// Authenticated reports whether the workspace is signed in
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// User returns a copy of the signed-in user, or nil
func (s *Store) User() *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Preferences returns the UI preferences
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// ToggleSidebar flips the sidebar state and returns the new value
func (s *Store) ToggleSidebar() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.SidebarCollapsed = !s.prefs.SidebarCollapsed
	return s.prefs.SidebarCollapsed
}
