package editor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnknownCommand = errors.New("unknown editor command")
	ErrInvalidLink    = errors.New("invalid link url")
)

// Command is a toolbar action sent by the edit page
type Command struct {
	Name      string    `json:"command"`
	Selection Selection `json:"selection"`
	URL       string    `json:"url,omitempty"`
	Text      string    `json:"text,omitempty"`
	Level     int       `json:"level,omitempty"`
}

// Result is the editor state after a command
type Result struct {
	Changed   bool      `json:"changed"`
	Markdown  string    `json:"markdown"`
	WordCount int       `json:"word_count"`
	Active    Format    `json:"active"`
	Selection Selection `json:"selection"`
}

// ChangeFunc is called after every mutation with the new markdown and word count
type ChangeFunc func(markdown string, words int)

// Editor owns the document for one open article
type Editor struct {
	mu        sync.Mutex
	articleID int
	doc       *Document
	words     int
	dirty     bool
	onChange  []ChangeFunc
	link      *LinkDialog
}

// New parses markdown into a fresh editor for articleID
func New(articleID int, markdown string) *Editor {
	doc := Parse(markdown)
	e := &Editor{
		articleID: articleID,
		doc:       doc,
		words:     doc.WordCount(),
	}
	e.link = &LinkDialog{editor: e}
	return e
}

// ArticleID returns the id of the article being edited
func (e *Editor) ArticleID() int {
	return e.articleID
}

// OnChange registers a callback run after each mutation
func (e *Editor) OnChange(fn ChangeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = append(e.onChange, fn)
}

// Document returns a copy of the current document
func (e *Editor) Document() *Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone()
}

// Markdown serializes the current document
func (e *Editor) Markdown() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Markdown()
}

// SaveContent returns the markdown to send to the backend on save
func (e *Editor) SaveContent() string {
	return strings.TrimSpace(e.Markdown())
}

// WordCount returns the live word count
func (e *Editor) WordCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.words
}

// Dirty reports whether there are unsaved changes
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// MarkSaved clears the dirty flag after a successful save
func (e *Editor) MarkSaved() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty = false
}

// Load replaces the document, for example with a restored draft
func (e *Editor) Load(markdown string, dirty bool) {
	e.mu.Lock()
	e.doc = Parse(markdown)
	e.words = e.doc.WordCount()
	e.dirty = dirty
	e.mu.Unlock()
}

// LinkDialog returns the editor's link dialog
func (e *Editor) LinkDialog() *LinkDialog {
	return e.link
}

// ActiveFormats returns the toolbar formats active for sel
func (e *Editor) ActiveFormats(sel Selection) Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.ActiveFormats(sel)
}

// SelectedText returns the text covered by sel
func (e *Editor) SelectedText(sel Selection) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.SelectedText(sel)
}

// ToggleFormat toggles f over sel
func (e *Editor) ToggleFormat(sel Selection, f Format) bool {
	return e.mutate(func(d *Document) bool { return d.ToggleFormat(sel, f) })
}

// InsertLink links sel, replacing it with spec.Text when set
func (e *Editor) InsertLink(sel Selection, spec LinkSpec) bool {
	return e.mutate(func(d *Document) bool { return d.InsertLink(sel, spec) })
}

// RemoveLink unlinks the links touching sel
func (e *Editor) RemoveLink(sel Selection) bool {
	return e.mutate(func(d *Document) bool { return d.RemoveLink(sel) })
}

// ReplaceText replaces sel with text and returns the inserted range
func (e *Editor) ReplaceText(sel Selection, text string) Selection {
	var out Selection
	e.mutate(func(d *Document) bool {
		out = d.ReplaceText(sel, text)
		return true
	})
	return out
}

// SetBlockKind changes the block type under sel
func (e *Editor) SetBlockKind(sel Selection, kind BlockKind, level int) bool {
	return e.mutate(func(d *Document) bool { return d.SetBlockKind(sel, kind, level) })
}

// Execute dispatches a toolbar command by name
func (e *Editor) Execute(cmd Command) (Result, error) {
	sel := cmd.Selection
	var changed bool

	switch cmd.Name {
	case "bold":
		changed = e.ToggleFormat(sel, FormatBold)
	case "italic":
		changed = e.ToggleFormat(sel, FormatItalic)
	case "underline":
		changed = e.ToggleFormat(sel, FormatUnderline)
	case "link":
		if !validLinkURL(cmd.URL) {
			return Result{}, fmt.Errorf("%w: %q", ErrInvalidLink, cmd.URL)
		}
		changed = e.InsertLink(sel, LinkSpec{URL: cmd.URL, Text: cmd.Text})
	case "unlink":
		changed = e.RemoveLink(sel)
	case "replace":
		sel = e.ReplaceText(sel, cmd.Text)
		changed = true
	case "heading":
		changed = e.SetBlockKind(sel, BlockHeading, cmd.Level)
	case "paragraph":
		changed = e.SetBlockKind(sel, BlockParagraph, 0)
	case "list":
		changed = e.SetBlockKind(sel, BlockListItem, 0)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return Result{
		Changed:   changed,
		Markdown:  e.doc.Markdown(),
		WordCount: e.words,
		Active:    e.doc.ActiveFormats(sel),
		Selection: sel,
	}, nil
}

func (e *Editor) mutate(fn func(*Document) bool) bool {
	e.mu.Lock()
	if !fn(e.doc) {
		e.mu.Unlock()
		return false
	}
	e.words = e.doc.WordCount()
	e.dirty = true
	markdown, words := e.doc.Markdown(), e.words
	listeners := append([]ChangeFunc(nil), e.onChange...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(markdown, words)
	}
	return true
}
