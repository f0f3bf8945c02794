package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/tkilaker/inkdesk/internal/config"
	"github.com/tkilaker/inkdesk/internal/database"
)

// handleRSS serves the feed of recent publish batches
func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := s.store.RecentPublishes(ctx, recentPublishes)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to fetch publish log: %v", err), http.StatusInternalServerError)
		return
	}

	feed, err := GenerateRSSFeed(records, s.config)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate feed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(feed))
}

// GenerateRSSFeed creates an RSS feed from the publish log
func GenerateRSSFeed(records []*database.PublishRecord, cfg *config.Config) (string, error) {
	now := time.Now()
	link := strings.TrimRight(cfg.FeedLink, "/")

	feed := &feeds.Feed{
		Title:       cfg.FeedTitle,
		Link:        &feeds.Link{Href: link},
		Description: cfg.FeedDescription,
		Author:      &feeds.Author{Name: cfg.FeedAuthor},
		Created:     now,
	}

	feed.Items = make([]*feeds.Item, 0, len(records))
	for _, record := range records {
		item := &feeds.Item{
			Title:       getRecordTitle(record),
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/articles/%d", link, record.ArticleID)},
			Id:          fmt.Sprintf("%s/publishes/%d", link, record.ID),
			Description: publishDescription(record),
			Created:     record.CreatedAt,
		}
		feed.Items = append(feed.Items, item)
	}

	// Generate RSS 2.0 format
	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to generate RSS: %w", err)
	}

	return rss, nil
}

func publishDescription(record *database.PublishRecord) string {
	summary := record.Summary
	if summary == "" {
		summary = fmt.Sprintf("Published to %d of %d sites", record.SuccessCount, record.TotalSites)
	}
	if len(record.SiteURLs) == 0 {
		return summary
	}
	return summary + " Sites: " + strings.Join(record.SiteURLs, ", ")
}

func getRecordTitle(record *database.PublishRecord) string {
	if strings.TrimSpace(record.Heading) != "" {
		return record.Heading
	}
	return fmt.Sprintf("Article %d", record.ArticleID)
}
