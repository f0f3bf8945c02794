package database

import (
	"context"
	"sort"
	"sync"
	"time"
)

type draftKey struct {
	userID    int
	articleID int
}

// Memory is an in-process Store used when no database is configured
type Memory struct {
	mu      sync.RWMutex
	drafts  map[draftKey]Draft
	publish []PublishRecord
	nextID  int
	now     func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		drafts: make(map[draftKey]Draft),
		now:    time.Now,
	}
}

// SaveDraft inserts or replaces the draft for (user, article)
func (m *Memory) SaveDraft(_ context.Context, draft *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft.UpdatedAt = m.now()
	m.drafts[draftKey{draft.UserID, draft.ArticleID}] = *draft
	return nil
}

// GetDraft returns the draft for (user, article), or nil when there is none
func (m *Memory) GetDraft(_ context.Context, userID, articleID int) (*Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[draftKey{userID, articleID}]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// DeleteDraft removes the draft for (user, article)
func (m *Memory) DeleteDraft(_ context.Context, userID, articleID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, draftKey{userID, articleID})
	return nil
}

// RecordPublish appends a publish batch to the log
func (m *Memory) RecordPublish(_ context.Context, record *PublishRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	record.ID = m.nextID
	record.CreatedAt = m.now()
	r := *record
	r.SiteURLs = append([]string(nil), record.SiteURLs...)
	m.publish = append(m.publish, r)
	return nil
}

// RecentPublishes returns the latest publish batches, newest first
func (m *Memory) RecentPublishes(_ context.Context, limit int) ([]*PublishRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*PublishRecord, 0, len(m.publish))
	for i := range m.publish {
		r := m.publish[i]
		records = append(records, &r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close is a no-op
func (m *Memory) Close() {}
