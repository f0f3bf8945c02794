package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	user_id    INTEGER NOT NULL,
	article_id INTEGER NOT NULL,
	content    TEXT NOT NULL,
	word_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, article_id)
);

CREATE TABLE IF NOT EXISTS publish_log (
	id            SERIAL PRIMARY KEY,
	user_id       INTEGER NOT NULL,
	article_id    INTEGER NOT NULL,
	heading       TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	site_urls     TEXT[] NOT NULL DEFAULT '{}',
	success_count INTEGER NOT NULL,
	total_sites   INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS publish_log_created_at_idx ON publish_log (created_at DESC);
`

// DB is the Postgres store
type DB struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and creates the tables if needed
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool
func (db *DB) Close() {
	db.pool.Close()
}

// SaveDraft inserts or replaces the draft for (user, article)
func (db *DB) SaveDraft(ctx context.Context, draft *Draft) error {
	query := `
		INSERT INTO drafts (user_id, article_id, content, word_count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, article_id)
		DO UPDATE SET content = EXCLUDED.content, word_count = EXCLUDED.word_count, updated_at = NOW()
		RETURNING updated_at
	`

	err := db.pool.QueryRow(ctx, query,
		draft.UserID,
		draft.ArticleID,
		draft.Content,
		draft.WordCount,
	).Scan(&draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// GetDraft returns the draft for (user, article), or nil when there is none
func (db *DB) GetDraft(ctx context.Context, userID, articleID int) (*Draft, error) {
	query := `
		SELECT user_id, article_id, content, word_count, updated_at
		FROM drafts
		WHERE user_id = $1 AND article_id = $2
	`

	var draft Draft
	err := db.pool.QueryRow(ctx, query, userID, articleID).Scan(
		&draft.UserID,
		&draft.ArticleID,
		&draft.Content,
		&draft.WordCount,
		&draft.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &draft, nil
}

// DeleteDraft removes the draft for (user, article)
func (db *DB) DeleteDraft(ctx context.Context, userID, articleID int) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM drafts WHERE user_id = $1 AND article_id = $2`, userID, articleID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// RecordPublish appends a publish batch to the log
func (db *DB) RecordPublish(ctx context.Context, record *PublishRecord) error {
	query := `
		INSERT INTO publish_log (user_id, article_id, heading, summary, site_urls, success_count, total_sites)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	siteURLs := record.SiteURLs
	if siteURLs == nil {
		siteURLs = []string{}
	}
	err := db.pool.QueryRow(ctx, query,
		record.UserID,
		record.ArticleID,
		record.Heading,
		record.Summary,
		siteURLs,
		record.SuccessCount,
		record.TotalSites,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record publish: %w", err)
	}
	return nil
}

// RecentPublishes returns the latest publish batches, newest first
func (db *DB) RecentPublishes(ctx context.Context, limit int) ([]*PublishRecord, error) {
	query := `
		SELECT id, user_id, article_id, heading, summary, site_urls, success_count, total_sites, created_at
		FROM publish_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query publish log: %w", err)
	}
	defer rows.Close()

	var records []*PublishRecord
	for rows.Next() {
		var r PublishRecord
		err := rows.Scan(
			&r.ID,
			&r.UserID,
			&r.ArticleID,
			&r.Heading,
			&r.Summary,
			&r.SiteURLs,
			&r.SuccessCount,
			&r.TotalSites,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publish record: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating publish log: %w", err)
	}

	return records, nil
}
