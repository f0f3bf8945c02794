package database

import "context"

// Store persists drafts and the publish log. DB is backed by Postgres and
// Memory keeps everything in process.
type Store interface {
	SaveDraft(ctx context.Context, draft *Draft) error
	GetDraft(ctx context.Context, userID, articleID int) (*Draft, error)
	DeleteDraft(ctx context.Context, userID, articleID int) error
	RecordPublish(ctx context.Context, record *PublishRecord) error
	RecentPublishes(ctx context.Context, limit int) ([]*PublishRecord, error)
	Close()
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*Memory)(nil)
)
