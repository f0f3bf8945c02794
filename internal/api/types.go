package api

import "time"

// User is the signed-in client profile returned by check-auth
type User struct {
	ID              int        `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	ProfilePhoto    string     `json:"profile_photo,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}

// DisplayName returns "First Last", falling back to the username
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// AuthStatus is the check-auth response
type AuthStatus struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user"`
}

// Article is a unit of generated content owned by the backend
type Article struct {
	ID               int              `json:"id"`
	Heading          string           `json:"article_heading"`
	Content          string           `json:"article_content"`
	Type             string           `json:"article_type"`
	Status           string           `json:"article_status"`
	PublishStatus    string           `json:"publish_status"`
	Language         string           `json:"article_language"`
	GPTVersion       string           `json:"gpt_version"`
	AIGeneratedTitle any              `json:"ai_generated_title,omitempty"`
	FAQs             int              `json:"faqs"`
	Author           string           `json:"author,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Platforms        []PlatformRecord `json:"article_platforms,omitempty"`
}

// IsPublished reports whether the backend marks the article as published
func (a *Article) IsPublished() bool {
	return a.PublishStatus == "published" || a.PublishStatus == "Published"
}

// PlatformRecord is one publication of an article on an external platform
type PlatformRecord struct {
	ID           int       `json:"id"`
	PlatformName string    `json:"platform_name"`
	PostURL      string    `json:"post_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// ArticlePage is one page of the paginated article history
type ArticlePage struct {
	Data        []Article `json:"data"`
	CurrentPage int       `json:"current_page"`
	LastPage    int       `json:"last_page"`
	PerPage     int       `json:"per_page"`
	Total       int       `json:"total"`
}

// WordPressSite is a set of WordPress credentials. Field names follow the
// backend contract.
type WordPressSite struct {
	URL      string `json:"wpUrl"`
	Username string `json:"wpUsername"`
	Password string `json:"wpPassword"`
}

// PublishResult reports how many sites accepted a publish batch
type PublishResult struct {
	SuccessCount int    `json:"success_count"`
	TotalSites   int    `json:"total_sites"`
	Message      string `json:"message,omitempty"`
}

// GenerateRequest asks the backend to generate articles in bulk
type GenerateRequest struct {
	Keywords         string          `json:"keywords"`
	Language         string          `json:"language"`
	NumFAQs          int             `json:"numFAQs"`
	GPTVersion       string          `json:"gptVersion"`
	AIGeneratedTitle bool            `json:"aiGeneratedTitle"`
	WordPressSites   []WordPressSite `json:"wordPressSites"`
	WordCount        int             `json:"wordCount"`
	ArticleType      string          `json:"articleType"`
}

// DashboardStats is the dashboard summary
type DashboardStats struct {
	Stats struct {
		TotalArticles     int     `json:"total_articles"`
		PublishedArticles int     `json:"published_articles"`
		PublicationRate   float64 `json:"publication_rate"`
		TotalWords        int     `json:"total_words"`
	} `json:"stats"`
	RecentArticles []Article      `json:"recent_articles"`
	PlatformStats  []PlatformStat `json:"platform_stats"`
}

// AverageWords returns the mean words per article, rounded
func (d *DashboardStats) AverageWords() int {
	if d.Stats.TotalArticles == 0 {
		return 0
	}
	return (d.Stats.TotalWords + d.Stats.TotalArticles/2) / d.Stats.TotalArticles
}

// PlatformStat counts articles published per platform
type PlatformStat struct {
	PlatformName string `json:"platform_name"`
	ArticleCount int    `json:"article_count"`
}

// Profile is the editable client profile
type Profile struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	ProfilePhoto string `json:"profile_photo,omitempty"`
}
