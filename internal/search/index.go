// Package search keeps an in-memory full text index of the articles a
// workspace has seen.
package search

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/editor"
)

// Index wraps a Bleve in-memory index
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

// Document is the indexed form of an article
type Document struct {
	ID       string
	Heading  string
	Content  string
	Language string
	Status   string
}

// Hit is one search result
type Hit struct {
	ID      int
	Heading string
	Score   float64
}

// NewMemOnly creates an empty in-memory index
func NewMemOnly() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = "keyword"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Heading", textFieldMapping)
	docMapping.AddFieldMappingsAt("Content", textFieldMapping)
	docMapping.AddFieldMappingsAt("Language", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Status", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

// Reset swaps in an empty index and closes the old one
func (i *Index) Reset() error {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	i.mu.Lock()
	old := i.index
	i.index = idx
	i.mu.Unlock()
	if err := old.Close(); err != nil {
		return fmt.Errorf("close old index: %w", err)
	}
	return nil
}

// Add indexes or reindexes articles. Markdown content is indexed as plain text.
func (i *Index) Add(articles ...api.Article) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	batch := i.index.NewBatch()
	for _, a := range articles {
		doc := &Document{
			ID:       strconv.Itoa(a.ID),
			Heading:  a.Heading,
			Content:  editor.Parse(a.Content).Text(),
			Language: a.Language,
			Status:   a.Status,
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Remove drops an article from the index
func (i *Index) Remove(id int) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.Delete(strconv.Itoa(id))
}

// Search runs a query string search. Input that does not parse as a query
// string is matched as plain text.
func (i *Index) Search(queryStr string, limit int) ([]Hit, error) {
	queryStr = strings.TrimSpace(queryStr)
	if queryStr == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(queryStr), limit, 0, false)
	req.Fields = []string{"Heading"}
	results, err := i.index.Search(req)
	if err != nil {
		req = bleve.NewSearchRequestOptions(bleve.NewMatchQuery(queryStr), limit, 0, false)
		req.Fields = []string{"Heading"}
		if results, err = i.index.Search(req); err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
	}

	hits := make([]Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		id, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		hit := Hit{ID: id, Score: h.Score}
		if heading, ok := h.Fields["Heading"].(string); ok {
			hit.Heading = heading
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed articles
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}
