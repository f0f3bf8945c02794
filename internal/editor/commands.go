package editor

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultLinkTarget = "_blank"
	defaultLinkRel    = "noopener noreferrer"
)

// LinkSpec describes a link to insert. Empty Target and Rel fall back to
// opening in a new tab with noopener.
type LinkSpec struct {
	URL    string `json:"url"`
	Text   string `json:"text,omitempty"`
	Target string `json:"target,omitempty"`
	Rel    string `json:"rel,omitempty"`
}

// eachSelected runs fn over every inline covered by the selection, splitting
// runs at the selection edges first. It reports whether any text was covered.
func (d *Document) eachSelected(s Selection, fn func(in *Inline)) bool {
	touched := false
	for _, seg := range d.segments(s) {
		if seg.start >= seg.end {
			continue
		}
		b := d.Blocks[seg.block]
		from := b.split(seg.start)
		to := b.split(seg.end)
		for i := from; i < to; i++ {
			fn(&b.Inlines[i])
			touched = true
		}
		b.normalize()
	}
	return touched
}

// ActiveFormats returns the formats shared by every selected run. For a
// caret it returns the format of the run just before it.
func (d *Document) ActiveFormats(s Selection) Format {
	if len(d.Blocks) == 0 {
		return 0
	}
	if s.Collapsed() {
		p := d.clamp(s.Anchor)
		pos := 0
		var last Format
		for _, in := range d.Blocks[p.Block].Inlines {
			if pos >= p.Offset {
				break
			}
			last = in.Format
			pos += in.len()
		}
		return last
	}

	active := FormatBold | FormatItalic | FormatUnderline
	covered := false
	for _, seg := range d.segments(s) {
		pos := 0
		for _, in := range d.Blocks[seg.block].Inlines {
			n := in.len()
			if pos < seg.end && pos+n > seg.start {
				active &= in.Format
				covered = true
			}
			pos += n
		}
	}
	if !covered {
		return 0
	}
	return active
}

// ToggleFormat sets f on every selected run, or clears it when every selected
// run already has it. A caret selection is a no-op.
func (d *Document) ToggleFormat(s Selection, f Format) bool {
	if s.Collapsed() {
		return false
	}
	unset := d.ActiveFormats(s).Has(f)
	return d.eachSelected(s, func(in *Inline) {
		if unset {
			in.Format &^= f
		} else {
			in.Format |= f
		}
	})
}

// InsertLink turns the selection into a link. When spec.Text is set and
// differs from the selected text the selection is first replaced by it.
func (d *Document) InsertLink(s Selection, spec LinkSpec) bool {
	if spec.URL == "" {
		return false
	}
	if spec.Target == "" {
		spec.Target = defaultLinkTarget
	}
	if spec.Rel == "" {
		spec.Rel = defaultLinkRel
	}
	if text := strings.TrimSpace(spec.Text); text != "" && text != d.SelectedText(s) {
		s = d.ReplaceText(s, text)
	}
	if s.Collapsed() {
		return false
	}
	return d.eachSelected(s, func(in *Inline) {
		in.URL = spec.URL
		in.Target = spec.Target
		in.Rel = spec.Rel
	})
}

// RemoveLink unlinks every link touching the selection. A caret inside or
// at the edge of a link unlinks that whole link.
func (d *Document) RemoveLink(s Selection) bool {
	changed := false
	collapsed := s.Collapsed()
	for _, seg := range d.segments(s) {
		b := d.Blocks[seg.block]
		pos := 0
		for i := range b.Inlines {
			in := &b.Inlines[i]
			n := in.len()
			hit := pos < seg.end && pos+n > seg.start
			if collapsed {
				hit = pos <= seg.start && seg.start <= pos+n
			}
			if hit && in.IsLink() {
				in.URL, in.Target, in.Rel = "", "", ""
				changed = true
			}
			pos += n
		}
		b.normalize()
	}
	return changed
}

// ReplaceText deletes the selection and inserts text as plain runs. Newlines
// in text start new paragraphs. It returns the selection covering the
// inserted text.
func (d *Document) ReplaceText(s Selection, text string) Selection {
	if len(d.Blocks) == 0 {
		d.Blocks = []*Block{{Kind: BlockParagraph}}
	}
	start, end := s.Ordered()
	start, end = d.clamp(start), d.clamp(end)
	d.deleteRange(start, end)
	return d.insertText(start, text)
}

func (d *Document) deleteRange(start, end Position) {
	if start == end {
		return
	}
	first := d.Blocks[start.Block]
	if start.Block == end.Block {
		from := first.split(start.Offset)
		to := first.split(end.Offset)
		first.Inlines = append(first.Inlines[:from], first.Inlines[to:]...)
		first.normalize()
		return
	}

	last := d.Blocks[end.Block]
	keep := first.split(start.Offset)
	tail := last.split(end.Offset)
	inlines := append([]Inline(nil), first.Inlines[:keep]...)
	first.Inlines = append(inlines, last.Inlines[tail:]...)
	first.normalize()
	d.Blocks = append(d.Blocks[:start.Block+1], d.Blocks[end.Block+1:]...)
}

func (d *Document) insertText(p Position, text string) Selection {
	lines := strings.Split(text, "\n")
	b := d.Blocks[p.Block]
	idx := b.split(p.Offset)
	tail := append([]Inline(nil), b.Inlines[idx:]...)

	b.Inlines = append(b.Inlines[:idx], Inline{Text: lines[0]})
	if len(lines) == 1 {
		b.Inlines = append(b.Inlines, tail...)
		b.normalize()
		return Selection{Anchor: p, Focus: Position{p.Block, p.Offset + utf8.RuneCountInString(lines[0])}}
	}
	b.normalize()

	added := make([]*Block, 0, len(lines)-1)
	for _, line := range lines[1:] {
		added = append(added, &Block{Kind: BlockParagraph, Inlines: []Inline{{Text: line}}})
	}
	lastBlock := added[len(added)-1]
	lastLine := lines[len(lines)-1]
	lastBlock.Inlines = append(lastBlock.Inlines, tail...)
	for _, nb := range added {
		nb.normalize()
	}

	blocks := make([]*Block, 0, len(d.Blocks)+len(added))
	blocks = append(blocks, d.Blocks[:p.Block+1]...)
	blocks = append(blocks, added...)
	blocks = append(blocks, d.Blocks[p.Block+1:]...)
	d.Blocks = blocks

	return Selection{Anchor: p, Focus: Position{p.Block + len(added), utf8.RuneCountInString(lastLine)}}
}

// SetBlockKind changes every block touched by the selection. Level only
// applies to headings and is clamped to 1..6.
func (d *Document) SetBlockKind(s Selection, kind BlockKind, level int) bool {
	if kind == BlockHeading {
		level = min(max(level, 1), 6)
	} else {
		level = 0
	}
	changed := false
	for _, seg := range d.segments(s) {
		b := d.Blocks[seg.block]
		if b.Kind == kind && b.Level == level {
			continue
		}
		b.Kind = kind
		b.Level = level
		changed = true
	}
	return changed
}
