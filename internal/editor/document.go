// Package editor is the rich-text model behind the article editor: a small
// block document that round-trips to the markdown subset the backend stores,
// plus the toolbar commands that act on a selection.
package editor

import (
	"strings"
	"unicode/utf8"
)

// Format is a bit set of inline text styles
type Format uint8

const (
	FormatBold Format = 1 << iota
	FormatItalic
	FormatUnderline
)

// Has reports whether every bit in o is set
func (f Format) Has(o Format) bool {
	return f&o == o
}

// BlockKind distinguishes the block types the markdown subset can express
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
)

func (k BlockKind) String() string {
	switch k {
	case BlockHeading:
		return "heading"
	case BlockListItem:
		return "list-item"
	default:
		return "paragraph"
	}
}

// InlineKind distinguishes plain text runs from links
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineLink
)

// Inline is a run of text with one format. A non-empty URL makes it a link.
type Inline struct {
	Text   string `json:"text"`
	Format Format `json:"format,omitempty"`
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
	Rel    string `json:"rel,omitempty"`
}

// IsLink reports whether the run is a hyperlink
func (in Inline) IsLink() bool {
	return in.URL != ""
}

// Kind returns InlineLink for links and InlineText otherwise
func (in Inline) Kind() InlineKind {
	if in.IsLink() {
		return InlineLink
	}
	return InlineText
}

func (in Inline) len() int {
	return utf8.RuneCountInString(in.Text)
}

// sameStyle reports whether two runs can be merged into one
func (in Inline) sameStyle(o Inline) bool {
	return in.Format == o.Format && in.URL == o.URL && in.Target == o.Target && in.Rel == o.Rel
}

// Block is one line of the document
type Block struct {
	Kind    BlockKind `json:"kind"`
	Level   int       `json:"level,omitempty"`
	Inlines []Inline  `json:"inlines"`
}

// Text returns the block's plain text
func (b *Block) Text() string {
	var sb strings.Builder
	for _, in := range b.Inlines {
		sb.WriteString(in.Text)
	}
	return sb.String()
}

// Len returns the block length in runes
func (b *Block) Len() int {
	n := 0
	for _, in := range b.Inlines {
		n += in.len()
	}
	return n
}

// split makes sure an inline boundary exists at offset and returns the index
// of the first inline starting at or after it.
func (b *Block) split(offset int) int {
	pos := 0
	for i, in := range b.Inlines {
		if offset <= pos {
			return i
		}
		n := in.len()
		if offset < pos+n {
			r := []rune(in.Text)
			left, right := in, in
			left.Text = string(r[:offset-pos])
			right.Text = string(r[offset-pos:])

			inlines := make([]Inline, 0, len(b.Inlines)+1)
			inlines = append(inlines, b.Inlines[:i]...)
			inlines = append(inlines, left, right)
			inlines = append(inlines, b.Inlines[i+1:]...)
			b.Inlines = inlines
			return i + 1
		}
		pos += n
	}
	return len(b.Inlines)
}

// normalize drops empty runs and merges neighbours with identical style
func (b *Block) normalize() {
	out := b.Inlines[:0]
	for _, in := range b.Inlines {
		if in.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].sameStyle(in) {
			out[n-1].Text += in.Text
			continue
		}
		out = append(out, in)
	}
	b.Inlines = out
}

func (b *Block) clone() *Block {
	c := *b
	c.Inlines = append([]Inline(nil), b.Inlines...)
	return &c
}

// Document is an ordered list of blocks
type Document struct {
	Blocks []*Block `json:"blocks"`
}

// Text returns the plain text of the whole document, one line per block
func (d *Document) Text() string {
	lines := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		lines[i] = b.Text()
	}
	return strings.Join(lines, "\n")
}

// WordCount counts whitespace-separated words in the document text
func (d *Document) WordCount() int {
	return len(strings.Fields(d.Text()))
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	c := &Document{Blocks: make([]*Block, len(d.Blocks))}
	for i, b := range d.Blocks {
		c.Blocks[i] = b.clone()
	}
	return c
}

// clamp pulls a position inside the document bounds
func (d *Document) clamp(p Position) Position {
	if len(d.Blocks) == 0 {
		return Position{}
	}
	if p.Block < 0 {
		return Position{}
	}
	if p.Block >= len(d.Blocks) {
		last := len(d.Blocks) - 1
		return Position{Block: last, Offset: d.Blocks[last].Len()}
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if n := d.Blocks[p.Block].Len(); p.Offset > n {
		p.Offset = n
	}
	return p
}
