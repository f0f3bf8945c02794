package search

import (
	"testing"

	"github.com/tkilaker/inkdesk/internal/api"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewMemOnly()
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	err = idx.Add(
		api.Article{ID: 1, Heading: "Learning Golang", Content: "# Intro\nChannels and **goroutines** explained"},
		api.Article{ID: 2, Heading: "Baking bread", Content: "Flour, water and salt"},
		api.Article{ID: 3, Heading: "Golang testing", Content: "- table driven tests"},
	)
	if err != nil {
		t.Fatalf("index articles: %v", err)
	}
	return idx
}

func ids(hits []Hit) map[int]bool {
	out := map[int]bool{}
	for _, h := range hits {
		out[h.ID] = true
	}
	return out
}

func TestSearch(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search("goroutines", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 1 || hits[0].Heading != "Learning Golang" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	hits, err = idx.Search("golang", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := ids(hits)
	if len(got) != 2 || !got[1] || !got[3] {
		t.Fatalf("expected articles 1 and 3, got %+v", hits)
	}
}

func TestSearchEmptyAndMalformed(t *testing.T) {
	idx := newTestIndex(t)

	if hits, err := idx.Search("   ", 10); err != nil || hits != nil {
		t.Fatalf("expected no hits for blank query, got %v %v", hits, err)
	}
	if _, err := idx.Search("bread)", 10); err != nil {
		t.Fatalf("malformed query should fall back to a match query: %v", err)
	}
}

func TestRemoveAndCount(t *testing.T) {
	idx := newTestIndex(t)

	if n, _ := idx.Count(); n != 3 {
		t.Fatalf("expected 3 documents, got %d", n)
	}
	if err := idx.Remove(2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if hits, _ := idx.Search("bread", 10); len(hits) != 0 {
		t.Fatalf("expected removed article gone, got %+v", hits)
	}

	if err := idx.Add(api.Article{ID: 1, Heading: "Renamed", Content: "nothing here"}); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if hits, _ := idx.Search("goroutines", 10); len(hits) != 0 {
		t.Fatalf("expected reindexed content to replace the old one, got %+v", hits)
	}
}

func TestResetEmptiesIndex(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := idx.Count(); n != 0 {
		t.Fatalf("expected empty index, got %d documents", n)
	}
	if hits, _ := idx.Search("bread", 10); len(hits) != 0 {
		t.Fatalf("expected no hits after reset, got %+v", hits)
	}
	if err := idx.Add(api.Article{ID: 5, Heading: "Fresh start"}); err != nil {
		t.Fatalf("add after reset: %v", err)
	}
	if hits, _ := idx.Search("fresh", 10); len(hits) != 1 {
		t.Fatalf("expected new article searchable, got %+v", hits)
	}
}
