package logging

import (
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestProviderReturnsLoggers(t *testing.T) {
	for _, format := range []string{"", "console", "json", "pretty"} {
		p, err := New("debug", format)
		if err != nil {
			t.Fatalf("format %q: unexpected error: %v", format, err)
		}
		if p.Get("api") == nil {
			t.Fatalf("format %q: expected named logger", format)
		}
		if p.Get("") == nil {
			t.Fatalf("format %q: expected root logger", format)
		}
	}
}

func TestNilProviderFallsBackToNoOp(t *testing.T) {
	var p *Provider
	log := p.Get("server")
	log.Info("ignored", "key", "value")
}

func TestNormalizeLevel(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"WARNING": glog.Warn,
		" info ":  glog.Info,
		"bogus":   "",
	}
	for in, want := range cases {
		if got := normalizeLevel(in); got != want {
			t.Fatalf("normalizeLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
