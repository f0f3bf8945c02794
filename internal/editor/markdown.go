package editor

import (
	"regexp"
	"strings"
)

var (
	headingMarker = regexp.MustCompile(`^(#{1,6})\s`)
	linkMarker    = regexp.MustCompile(`\[([^\[\]]+)\]\(((?:https?://|www\.)[^\s()]+)\)`)
)

// Parse reads the markdown subset into a document. Each line becomes one
// block. The first matching rule wins: heading, bold runs, italic runs,
// list item, plain paragraph. Link brackets are then lifted out of every run.
func Parse(markdown string) *Document {
	lines := strings.Split(markdown, "\n")
	doc := &Document{Blocks: make([]*Block, 0, len(lines))}
	for _, line := range lines {
		b := parseLine(strings.TrimSuffix(line, "\r"))
		b.Inlines = expandLinks(b.Inlines)
		doc.Blocks = append(doc.Blocks, b)
	}
	return doc
}

func parseLine(line string) *Block {
	if m := headingMarker.FindStringSubmatch(line); m != nil {
		b := &Block{Kind: BlockHeading, Level: len(m[1])}
		if text := line[len(m[0]):]; text != "" {
			b.Inlines = []Inline{{Text: text}}
		}
		return b
	}
	if strings.Contains(line, "**") {
		return &Block{Kind: BlockParagraph, Inlines: splitRuns(line, "**", FormatBold)}
	}
	if strings.Contains(line, "*") {
		return &Block{Kind: BlockParagraph, Inlines: splitRuns(line, "*", FormatItalic)}
	}
	if text, ok := strings.CutPrefix(line, "- "); ok {
		b := &Block{Kind: BlockListItem}
		if text != "" {
			b.Inlines = []Inline{{Text: text}}
		}
		return b
	}
	b := &Block{Kind: BlockParagraph}
	if line != "" {
		b.Inlines = []Inline{{Text: line}}
	}
	return b
}

// splitRuns alternates plain and formatted runs around marker. Odd parts are
// formatted and kept even when empty so the markers survive serialization.
func splitRuns(line, marker string, format Format) []Inline {
	parts := strings.Split(line, marker)
	inlines := make([]Inline, 0, len(parts))
	for i, part := range parts {
		if i%2 == 1 {
			inlines = append(inlines, Inline{Text: part, Format: format})
			continue
		}
		if part != "" {
			inlines = append(inlines, Inline{Text: part})
		}
	}
	return inlines
}

// expandLinks splits [text](url) out of each run, keeping the run's format
func expandLinks(inlines []Inline) []Inline {
	var out []Inline
	for _, in := range inlines {
		matches := linkMarker.FindAllStringSubmatchIndex(in.Text, -1)
		if len(matches) == 0 || in.IsLink() {
			out = append(out, in)
			continue
		}
		pos := 0
		for _, m := range matches {
			if m[0] > pos {
				out = append(out, Inline{Text: in.Text[pos:m[0]], Format: in.Format})
			}
			out = append(out, Inline{
				Text:   in.Text[m[2]:m[3]],
				Format: in.Format,
				URL:    in.Text[m[4]:m[5]],
				Target: defaultLinkTarget,
				Rel:    defaultLinkRel,
			})
			pos = m[1]
		}
		if pos < len(in.Text) {
			out = append(out, Inline{Text: in.Text[pos:], Format: in.Format})
		}
	}
	return out
}

// Markdown serializes the document back to the markdown subset
func (d *Document) Markdown() string {
	var sb strings.Builder
	for i, b := range d.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch b.Kind {
		case BlockHeading:
			level := min(max(b.Level, 1), 6)
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteByte(' ')
		case BlockListItem:
			sb.WriteString("- ")
		}
		for _, in := range b.Inlines {
			writeInline(&sb, in)
		}
	}
	return sb.String()
}

// writeInline puts link brackets innermost so formatted links parse back
func writeInline(sb *strings.Builder, in Inline) {
	text := in.Text
	if in.IsLink() {
		text = "[" + text + "](" + in.URL + ")"
	}
	if in.Format.Has(FormatBold) {
		text = "**" + text + "**"
	}
	if in.Format.Has(FormatItalic) {
		text = "*" + text + "*"
	}
	if in.Format.Has(FormatUnderline) {
		text = "__" + text + "__"
	}
	sb.WriteString(text)
}
