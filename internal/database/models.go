package database

import "time"

// Draft is unsaved editor content for one article, kept per user
type Draft struct {
	UserID    int       `db:"user_id"`
	ArticleID int       `db:"article_id"`
	Content   string    `db:"content"`
	WordCount int       `db:"word_count"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PublishRecord logs one publish batch sent to WordPress
type PublishRecord struct {
	ID           int       `db:"id"`
	UserID       int       `db:"user_id"`
	ArticleID    int       `db:"article_id"`
	Heading      string    `db:"heading"`
	Summary      string    `db:"summary"`
	SiteURLs     []string  `db:"site_urls"`
	SuccessCount int       `db:"success_count"`
	TotalSites   int       `db:"total_sites"`
	CreatedAt    time.Time `db:"created_at"`
}
