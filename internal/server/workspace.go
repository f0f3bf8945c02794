package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/articles"
	"github.com/tkilaker/inkdesk/internal/availability"
	"github.com/tkilaker/inkdesk/internal/database"
	"github.com/tkilaker/inkdesk/internal/editor"
	"github.com/tkilaker/inkdesk/internal/logging"
	"github.com/tkilaker/inkdesk/internal/notify"
	"github.com/tkilaker/inkdesk/internal/search"
	"github.com/tkilaker/inkdesk/internal/session"
	"github.com/tkilaker/inkdesk/internal/validate"
	"github.com/tkilaker/inkdesk/internal/wordpress"
)

// Workspace is the server-side state of one browser session
type Workspace struct {
	ID string

	Client        *api.Client
	Auth          *session.Store
	Toasts        *notify.Queue
	Index         *search.Index
	History       *articles.History
	Deletes       *articles.DeleteFlow
	Generate      *wordpress.Manager
	UsernameCheck *availability.Checker
	EmailCheck    *availability.Checker

	newPublisher func(articleID int, heading string) *wordpress.Manager

	mu         sync.Mutex
	editors    map[int]*editor.Editor
	publishers map[int]*wordpress.Manager
	lastSeen   time.Time
	closed     bool
}

// Editor returns the open editor for an article
func (w *Workspace) Editor(articleID int) (*editor.Editor, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ed, ok := w.editors[articleID]
	return ed, ok
}

// OpenEditor replaces the editor for an article with a fresh one
func (w *Workspace) OpenEditor(articleID int, markdown string) *editor.Editor {
	ed := editor.New(articleID, markdown)
	w.mu.Lock()
	w.editors[articleID] = ed
	w.mu.Unlock()
	return ed
}

// CloseEditor forgets the editor for an article
func (w *Workspace) CloseEditor(articleID int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.editors, articleID)
}

// Publisher returns the site manager for an article, creating it on first use
func (w *Workspace) Publisher(articleID int, heading string) *wordpress.Manager {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m, ok := w.publishers[articleID]; ok {
		return m
	}
	m := w.newPublisher(articleID, heading)
	w.publishers[articleID] = m
	return m
}

// Reset drops every per-user piece of state. Used on logout.
func (w *Workspace) Reset() error {
	w.mu.Lock()
	if !w.closed {
		w.editors = make(map[int]*editor.Editor)
		w.publishers = make(map[int]*wordpress.Manager)
	}
	w.mu.Unlock()

	w.Auth.Clear()
	w.Deletes.Cancel()
	w.History.Reset()
	w.Generate.Reset()
	w.UsernameCheck.SetCurrent("")
	w.EmailCheck.SetCurrent("")
	if err := w.Index.Reset(); err != nil {
		return fmt.Errorf("failed to reset search index: %w", err)
	}
	return nil
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = now
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// Close stops the availability checkers and releases the toast queue and
// search index
func (w *Workspace) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	clear(w.editors)
	clear(w.publishers)
	w.mu.Unlock()

	w.UsernameCheck.Close()
	w.EmailCheck.Close()
	w.Toasts.Close()
	return w.Index.Close()
}

// newWorkspace builds the state for a new browser session
func (s *Server) newWorkspace(id string) (*Workspace, error) {
	client, err := api.NewClient(s.config.APIBaseURL,
		api.WithTimeout(s.config.APITimeout),
		api.WithLogger(s.logs.Get("api")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	index, err := search.NewMemOnly()
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}

	history := articles.NewHistory(client, s.logs.Get("articles"))
	ws := &Workspace{
		ID:         id,
		Client:     client,
		Auth:       session.NewStore(client, s.logs.Get("session")),
		Toasts:     notify.NewQueue(),
		Index:      index,
		History:    history,
		Deletes:    articles.NewDeleteFlow(history),
		Generate:   wordpress.NewManager(client, s.logs.Get("wordpress")),
		editors:    make(map[int]*editor.Editor),
		publishers: make(map[int]*wordpress.Manager),
	}

	ws.UsernameCheck = availability.NewChecker(client.UsernameAvailable, validate.Username,
		availability.WithDebounce(s.config.AvailabilityDebounce),
		availability.WithLogger(s.logs.Get("availability")),
		availability.WithMessages(availability.Messages{
			Unchanged: "This is your current username",
			Available: "Username is available",
			Taken:     "This username is already taken",
			Failed:    "Could not check username availability",
		}),
	)
	ws.EmailCheck = availability.NewChecker(client.EmailAvailable, validate.Email,
		availability.WithDebounce(s.config.AvailabilityDebounce),
		availability.WithLogger(s.logs.Get("availability")),
		availability.WithMessages(availability.Messages{
			Unchanged: "This is your current email address",
			Available: "Email address is available",
			Taken:     "This email address is already taken",
			Failed:    "Could not check email availability",
		}),
	)

	ws.newPublisher = func(articleID int, heading string) *wordpress.Manager {
		m := wordpress.NewManager(client, s.logs.Get("wordpress"))
		m.OnPublish(s.publishRecorder(ws, heading))
		return m
	}
	return ws, nil
}

// publishRecorder logs each publish batch so it shows up in the RSS feed
func (s *Server) publishRecorder(ws *Workspace, heading string) wordpress.PublishRecorder {
	return func(ctx context.Context, articleID int, sites []api.WordPressSite, result *api.PublishResult) {
		record := &database.PublishRecord{
			ArticleID:    articleID,
			Heading:      heading,
			Summary:      wordpress.PublishMessage(result),
			SuccessCount: result.SuccessCount,
			TotalSites:   result.TotalSites,
		}
		if u := ws.Auth.User(); u != nil {
			record.UserID = u.ID
		}
		for _, site := range sites {
			record.SiteURLs = append(record.SiteURLs, site.URL)
		}
		if err := s.store.RecordPublish(ctx, record); err != nil {
			s.logger.Error("failed to record publish", "article_id", articleID, "error", err)
		}
	}
}

// Registry maps session workspace ids to live workspaces and expires idle ones
type Registry struct {
	ttl     time.Duration
	factory func(id string) (*Workspace, error)
	logger  logging.Logger
	now     func() time.Time

	mu    sync.Mutex
	items map[string]*Workspace
}

// NewRegistry creates a registry that builds workspaces with factory
func NewRegistry(ttl time.Duration, factory func(id string) (*Workspace, error), logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Registry{
		ttl:     ttl,
		factory: factory,
		logger:  logger,
		now:     time.Now,
		items:   make(map[string]*Workspace),
	}
}

// Get returns a live workspace and marks it as used
func (r *Registry) Get(id string) (*Workspace, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	ws, ok := r.items[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	ws.touch(r.now())
	return ws, true
}

// Create builds and registers a workspace with a fresh id
func (r *Registry) Create() (*Workspace, error) {
	ws, err := r.factory(uuid.NewString())
	if err != nil {
		return nil, err
	}
	ws.touch(r.now())

	r.mu.Lock()
	r.items[ws.ID] = ws
	r.mu.Unlock()

	r.logger.Debug("workspace created", "id", ws.ID)
	return ws, nil
}

// Remove tears down a workspace now
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	ws, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()
	if ok {
		if err := ws.Close(); err != nil {
			r.logger.Warn("failed to close workspace", "id", id, "error", err)
		}
	}
}

// Len returns the number of live workspaces
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep closes every workspace idle for longer than the ttl and returns
// how many were removed
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Workspace
	for id, ws := range r.items {
		if ws.idleSince().Before(cutoff) {
			expired = append(expired, ws)
			delete(r.items, id)
		}
	}
	r.mu.Unlock()

	for _, ws := range expired {
		if err := ws.Close(); err != nil {
			r.logger.Warn("failed to close workspace", "id", ws.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		r.logger.Info("expired idle workspaces", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps idle workspaces every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close tears down every workspace
func (r *Registry) Close() {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range items {
		if err := ws.Close(); err != nil {
			r.logger.Warn("failed to close workspace", "id", ws.ID, "error", err)
		}
	}
}
