// Package wordpress manages the WordPress sites an article is published to.
// A site joins the publish list only after the backend verified its
// credentials.
package wordpress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/logging"
)

var (
	ErrVerifyInFlight  = errors.New("a site verification is already running")
	ErrPublishInFlight = errors.New("a publish is already running")
	ErrNoSites         = errors.New("no verified sites to publish to")
)

// Field names used for candidate errors, matching the backend contract
const (
	FieldURL      = "wpUrl"
	FieldUsername = "wpUsername"
	FieldPassword = "wpPassword"
)

// State is the lifecycle of the candidate site
type State int

const (
	StateEntering State = iota
	StateVerifying
	StateVerified
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateVerifying:
		return "verifying"
	case StateVerified:
		return "verified"
	case StateRejected:
		return "rejected"
	default:
		return "entering"
	}
}

// Client is the backend surface the manager needs
type Client interface {
	VerifyWordPressSite(ctx context.Context, site api.WordPressSite) error
	PublishArticle(ctx context.Context, articleID int, sites []api.WordPressSite) (*api.PublishResult, error)
}

// Site is a verified site in the publish list
type Site struct {
	ID string
	api.WordPressSite
}

// PublishRecorder is notified after a successful publish batch
type PublishRecorder func(ctx context.Context, articleID int, sites []api.WordPressSite, result *api.PublishResult)

// Manager holds one candidate site and the ordered list of verified sites
type Manager struct {
	client   Client
	logger   logging.Logger
	recorder PublishRecorder

	mu          sync.Mutex
	state       State
	candidate   api.WordPressSite
	fieldErrors map[string]string
	lastError   string
	sites       []Site
	verifying   bool
	publishing  bool
}

// NewManager creates an empty site manager
func NewManager(client Client, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Manager{
		client:      client,
		logger:      logger,
		fieldErrors: map[string]string{},
	}
}

// OnPublish registers a callback run after each successful publish
func (m *Manager) OnPublish(fn PublishRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = fn
}

// SetCandidate updates the credentials being entered
func (m *Manager) SetCandidate(site api.WordPressSite) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verifying {
		return
	}
	m.candidate = site
	m.state = StateEntering
}

// Candidate returns the credentials being entered
func (m *Manager) Candidate() api.WordPressSite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candidate
}

// State returns the candidate state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FieldErrors returns a copy of the candidate field errors
func (m *Manager) FieldErrors() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.fieldErrors))
	for k, v := range m.fieldErrors {
		out[k] = v
	}
	return out
}

// LastError returns the message of the last failed verification or publish
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Sites returns the verified sites in the order they were added
func (m *Manager) Sites() []Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Site(nil), m.sites...)
}

// Busy reports whether a verification or publish is running
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifying || m.publishing
}

// Verify checks the candidate with the backend. On success the candidate is
// appended to the verified list and cleared.
func (m *Manager) Verify(ctx context.Context) (Site, error) {
	m.mu.Lock()
	if m.verifying {
		m.mu.Unlock()
		return Site{}, ErrVerifyInFlight
	}
	if m.publishing {
		m.mu.Unlock()
		return Site{}, ErrPublishInFlight
	}
	candidate := m.candidate
	m.fieldErrors = map[string]string{}
	m.lastError = ""

	if err := validateCandidate(candidate); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			for field, ferr := range verrs {
				m.fieldErrors[field] = ferr.Error()
			}
		}
		m.state = StateRejected
		m.mu.Unlock()
		return Site{}, err
	}

	m.verifying = true
	m.state = StateVerifying
	m.mu.Unlock()

	err := m.client.VerifyWordPressSite(ctx, candidate)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifying = false

	if err != nil {
		m.state = StateRejected
		m.lastError = api.MessageOf(err, "Failed to verify site")
		if api.StatusOf(err) == http.StatusUnauthorized {
			msg := api.MessageOf(err, "")
			switch {
			case strings.Contains(msg, "username"):
				m.fieldErrors[FieldUsername] = "Invalid WordPress username"
			case strings.Contains(msg, "password"):
				m.fieldErrors[FieldPassword] = "Invalid WordPress password"
			}
		}
		m.logger.Warn("wordpress site rejected", "url", candidate.URL, "error", err)
		return Site{}, err
	}

	site := Site{ID: uuid.NewString(), WordPressSite: candidate}
	m.sites = append(m.sites, site)
	m.candidate = api.WordPressSite{}
	m.state = StateVerified
	m.logger.Info("wordpress site verified", "url", candidate.URL, "id", site.ID)
	return site, nil
}

// Remove drops a verified site by id
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sites {
		if s.ID == id {
			m.sites = append(m.sites[:i], m.sites[i+1:]...)
			return true
		}
	}
	return false
}

// CanPublish reports whether there is at least one verified site and
// nothing else is running
func (m *Manager) CanPublish() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sites) > 0 && !m.publishing && !m.verifying
}

// Publish sends the article to every verified site in one batch. On success
// the verified list is cleared and the returned message summarises the
// outcome.
func (m *Manager) Publish(ctx context.Context, articleID int) (*api.PublishResult, string, error) {
	m.mu.Lock()
	if m.publishing {
		m.mu.Unlock()
		return nil, "", ErrPublishInFlight
	}
	if m.verifying {
		m.mu.Unlock()
		return nil, "", ErrVerifyInFlight
	}
	if len(m.sites) == 0 {
		m.mu.Unlock()
		return nil, "", ErrNoSites
	}
	sites := make([]api.WordPressSite, len(m.sites))
	for i, s := range m.sites {
		sites[i] = s.WordPressSite
	}
	m.publishing = true
	m.lastError = ""
	recorder := m.recorder
	m.mu.Unlock()

	result, err := m.client.PublishArticle(ctx, articleID, sites)

	m.mu.Lock()
	m.publishing = false
	if err != nil {
		m.lastError = api.MessageOf(err, "Failed to publish article")
		m.mu.Unlock()
		m.logger.Error("publish failed", "article_id", articleID, "sites", len(sites), "error", err)
		return nil, "", err
	}
	m.sites = nil
	m.mu.Unlock()

	message := PublishMessage(result)
	m.logger.Info("article published", "article_id", articleID, "success", result.SuccessCount, "total", result.TotalSites)
	if recorder != nil {
		recorder(ctx, articleID, sites, result)
	}
	return result, message, nil
}

// Reset clears the candidate, errors and verified list
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidate = api.WordPressSite{}
	m.fieldErrors = map[string]string{}
	m.lastError = ""
	m.sites = nil
	m.state = StateEntering
}

// PublishMessage formats the success toast for a publish batch
func PublishMessage(result *api.PublishResult) string {
	if result == nil {
		return ""
	}
	return fmt.Sprintf("Article published successfully %d of %d!", result.SuccessCount, result.TotalSites)
}

func validateCandidate(site api.WordPressSite) error {
	return validation.Errors{
		FieldURL:      validation.Validate(strings.TrimSpace(site.URL), validation.Required.Error("WordPress URL is required")),
		FieldUsername: validation.Validate(strings.TrimSpace(site.Username), validation.Required.Error("WordPress username is required")),
		FieldPassword: validation.Validate(site.Password, validation.Required.Error("WordPress password is required")),
	}.Filter()
}
