package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListArticles fetches one page of the article history
func (c *Client) ListArticles(ctx context.Context, page int) (*ArticlePage, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{"page": {strconv.Itoa(page)}}

	var result ArticlePage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/contents/articles/show", query: query}, &result); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	if result.CurrentPage == 0 {
		result.CurrentPage = page
	}
	if result.LastPage == 0 {
		result.LastPage = 1
	}
	return &result, nil
}

// GetArticle fetches a single article by id
func (c *Client) GetArticle(ctx context.Context, id int) (*Article, error) {
	var article Article
	path := fmt.Sprintf("/api/contents/articles/show/%d", id)
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &article); err != nil {
		return nil, fmt.Errorf("get article %d: %w", id, err)
	}
	return &article, nil
}

// UpdateArticleContent replaces the article body with the given markdown
func (c *Client) UpdateArticleContent(ctx context.Context, id int, content string) error {
	path := fmt.Sprintf("/api/contents/articles/update/%d", id)
	body := map[string]string{"article_content": content}
	if err := c.do(ctx, request{method: http.MethodPut, path: path, body: body}, nil); err != nil {
		return fmt.Errorf("update article %d: %w", id, err)
	}
	return nil
}

// DeleteArticle removes an article
func (c *Client) DeleteArticle(ctx context.Context, id int) error {
	path := fmt.Sprintf("/api/contents/articles/delete/%d", id)
	if err := c.do(ctx, request{method: http.MethodDelete, path: path}, nil); err != nil {
		return fmt.Errorf("delete article %d: %w", id, err)
	}
	return nil
}

// GenerateArticles starts a bulk generation job and returns the backend message
func (c *Client) GenerateArticles(ctx context.Context, req GenerateRequest) (string, error) {
	if req.WordPressSites == nil {
		req.WordPressSites = []WordPressSite{}
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/contents/articles/generate", body: req}, &resp); err != nil {
		return "", fmt.Errorf("generate articles: %w", err)
	}
	return resp.Message, nil
}

// VerifyWordPressSite checks a set of WordPress credentials. A rejected site
// comes back as an *Error whose Message names the failing credential.
func (c *Client) VerifyWordPressSite(ctx context.Context, site WordPressSite) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/contents/articles/verify-wordpress-site", body: site}, &resp); err != nil {
		return fmt.Errorf("verify wordpress site: %w", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Failed to verify site"
		}
		return fmt.Errorf("verify wordpress site: %w", &Error{Status: http.StatusOK, Message: msg})
	}
	return nil
}

// PublishArticle publishes an article to every given WordPress site in one batch
func (c *Client) PublishArticle(ctx context.Context, articleID int, sites []WordPressSite) (*PublishResult, error) {
	body := struct {
		ArticleID      int             `json:"articleID"`
		WordPressSites []WordPressSite `json:"wordPressSites"`
	}{ArticleID: articleID, WordPressSites: sites}

	var result PublishResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/contents/articles/publish", body: body}, &result); err != nil {
		return nil, fmt.Errorf("publish article %d: %w", articleID, err)
	}
	return &result, nil
}
