package editor

import (
	"context"
	"strings"
	"sync"

	"github.com/tkilaker/inkdesk/internal/modal"
	"github.com/tkilaker/inkdesk/internal/validate"
)

func validLinkURL(u string) bool {
	return strings.TrimSpace(u) != "" && validate.LinkURL(u)
}

// LinkDialog collects a URL and optional display text for the selection it
// was opened on.
type LinkDialog struct {
	editor *Editor
	dialog modal.Dialog[Selection]

	mu   sync.Mutex
	url  string
	text string
}

// Open shows the dialog for sel with the text field set to text, which is
// usually empty so the link goes onto the existing selection.
func (l *LinkDialog) Open(sel Selection, text string) {
	l.mu.Lock()
	l.url = ""
	l.text = text
	l.mu.Unlock()
	l.dialog.Open(sel)
}

// IsOpen reports whether the dialog is showing
func (l *LinkDialog) IsOpen() bool {
	return l.dialog.IsOpen()
}

// SetURL updates the URL field
func (l *LinkDialog) SetURL(u string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.url = u
}

// SetText updates the display text field
func (l *LinkDialog) SetText(t string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text = t
}

// Fields returns the current URL and text
func (l *LinkDialog) Fields() (url, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url, l.text
}

// CanSubmit reports whether the URL field holds an acceptable link
func (l *LinkDialog) CanSubmit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return validLinkURL(l.url)
}

// Submit inserts the link into the editor and closes the dialog
func (l *LinkDialog) Submit(ctx context.Context) error {
	if !l.CanSubmit() {
		return ErrInvalidLink
	}
	u, text := l.Fields()
	err := l.dialog.Confirm(ctx, func(_ context.Context, sel Selection) error {
		l.editor.InsertLink(sel, LinkSpec{URL: u, Text: text})
		return nil
	})
	if err != nil {
		return err
	}
	l.clear()
	return nil
}

// Cancel closes the dialog without touching the document
func (l *LinkDialog) Cancel() {
	l.dialog.Cancel()
	l.clear()
}

// HandleKey applies the dialog shortcuts: Escape cancels and Ctrl+Enter
// submits when the URL is valid. It reports whether the key was consumed.
func (l *LinkDialog) HandleKey(ctx context.Context, key string, ctrl bool) (bool, error) {
	if !l.IsOpen() {
		return false, nil
	}
	switch {
	case key == "Escape":
		l.Cancel()
		return true, nil
	case key == "Enter" && ctrl && l.CanSubmit():
		return true, l.Submit(ctx)
	}
	return false, nil
}

func (l *LinkDialog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.url = ""
	l.text = ""
}
