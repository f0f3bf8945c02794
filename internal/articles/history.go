// Package articles holds the article history page state, the delete
// confirmation flow and the bulk generation form.
package articles

import (
	"context"
	"fmt"
	"sync"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/logging"
)

const (
	// PerPage is the number of records the backend returns per history page
	PerPage = 6
	// WindowSize is the number of page buttons shown at once
	WindowSize = 5
)

// Client is the backend surface used by the history page
type Client interface {
	ListArticles(ctx context.Context, page int) (*api.ArticlePage, error)
	DeleteArticle(ctx context.Context, id int) error
}

// Page is one cached page of the article history
type Page struct {
	Records     []api.Article
	CurrentPage int
	LastPage    int
	Total       int
	PerPage     int
}

// Window returns the page numbers to render as buttons, centred on the
// current page where possible
func (p Page) Window() []int {
	if p.LastPage < 1 {
		return nil
	}
	start := max(1, p.CurrentPage-WindowSize/2)
	end := start + WindowSize - 1
	if end > p.LastPage {
		end = p.LastPage
		start = max(1, end-WindowSize+1)
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}

// Range returns the 1-based record numbers shown on this page
func (p Page) Range() (from, to int) {
	if p.Total == 0 {
		return 0, 0
	}
	per := p.PerPage
	if per == 0 {
		per = PerPage
	}
	return (p.CurrentPage-1)*per + 1, min(p.CurrentPage*per, p.Total)
}

// HasPrev reports whether there is a page before this one
func (p Page) HasPrev() bool { return p.CurrentPage > 1 }

// HasNext reports whether there is a page after this one
func (p Page) HasNext() bool { return p.CurrentPage < p.LastPage }

// History caches the page the user is looking at
type History struct {
	client Client
	logger logging.Logger

	mu   sync.RWMutex
	page Page
}

// NewHistory creates an empty history cache
func NewHistory(client Client, logger logging.Logger) *History {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &History{client: client, logger: logger, page: Page{CurrentPage: 1, LastPage: 1, PerPage: PerPage}}
}

// Load fetches page n and replaces the cached page
func (h *History) Load(ctx context.Context, n int) (Page, error) {
	result, err := h.client.ListArticles(ctx, n)
	if err != nil {
		return Page{}, fmt.Errorf("failed to load history page %d: %w", n, err)
	}
	page := Page{
		Records:     result.Data,
		CurrentPage: result.CurrentPage,
		LastPage:    result.LastPage,
		Total:       result.Total,
		PerPage:     result.PerPage,
	}
	if page.PerPage == 0 {
		page.PerPage = PerPage
	}

	h.mu.Lock()
	h.page = page
	h.mu.Unlock()
	return h.Current(), nil
}

// Reset forgets the cached page
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.page = Page{CurrentPage: 1, LastPage: 1, PerPage: PerPage}
}

// Current returns a copy of the cached page
func (h *History) Current() Page {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p := h.page
	p.Records = append([]api.Article(nil), h.page.Records...)
	return p
}

// removeRecord drops id from the cached page and decrements the total. It
// reports whether the page became empty while not being the first page.
func (h *History) removeRecord(id int) (found, stepBack bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.page.Records {
		if r.ID != id {
			continue
		}
		h.page.Records = append(h.page.Records[:i], h.page.Records[i+1:]...)
		if h.page.Total > 0 {
			h.page.Total--
		}
		return true, len(h.page.Records) == 0 && h.page.CurrentPage > 1
	}
	return false, false
}
