package articles

import (
	"context"
	"fmt"

	"github.com/tkilaker/inkdesk/internal/modal"
)

// DeleteOutcome describes what a confirmed delete did to the history page
type DeleteOutcome struct {
	DeletedID int
	// Page is the page now shown; it is one lower when the delete emptied a
	// page other than the first
	Page int
}

// DeleteFlow asks for confirmation before deleting an article
type DeleteFlow struct {
	history *History
	dialog  modal.Dialog[int]
}

// NewDeleteFlow creates a delete flow bound to a history cache
func NewDeleteFlow(history *History) *DeleteFlow {
	return &DeleteFlow{history: history}
}

// Request opens the confirmation for id
func (f *DeleteFlow) Request(id int) {
	f.dialog.Open(id)
}

// Pending returns the id awaiting confirmation
func (f *DeleteFlow) Pending() (int, bool) {
	return f.dialog.Target()
}

// Confirm deletes the pending article. On success the record leaves the
// cached page and, when that empties a later page, the previous page is
// loaded. On failure the confirmation stays open.
func (f *DeleteFlow) Confirm(ctx context.Context) (DeleteOutcome, error) {
	var outcome DeleteOutcome
	err := f.dialog.Confirm(ctx, func(ctx context.Context, id int) error {
		if err := f.history.client.DeleteArticle(ctx, id); err != nil {
			return err
		}
		outcome.DeletedID = id
		_, stepBack := f.history.removeRecord(id)
		current := f.history.Current().CurrentPage
		outcome.Page = current
		if stepBack {
			outcome.Page = current - 1
			if _, err := f.history.Load(ctx, outcome.Page); err != nil {
				f.history.logger.Warn("failed to load previous page after delete", "page", outcome.Page, "error", err)
			}
		}
		f.history.logger.Info("article deleted", "id", id)
		return nil
	})
	if err != nil {
		return DeleteOutcome{}, fmt.Errorf("failed to delete article: %w", err)
	}
	return outcome, nil
}

// Cancel closes the confirmation without deleting anything
func (f *DeleteFlow) Cancel() {
	f.dialog.Cancel()
}
