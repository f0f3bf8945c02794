package editor

// Position addresses a point in the document by block index and rune offset
// within the block's text.
type Position struct {
	Block  int `json:"block"`
	Offset int `json:"offset"`
}

func (p Position) before(o Position) bool {
	if p.Block != o.Block {
		return p.Block < o.Block
	}
	return p.Offset < o.Offset
}

// Selection is a range between an anchor and a focus. The focus may come
// before the anchor when the user selected backwards.
type Selection struct {
	Anchor Position `json:"anchor"`
	Focus  Position `json:"focus"`
}

// Caret returns a collapsed selection at p
func Caret(p Position) Selection {
	return Selection{Anchor: p, Focus: p}
}

// Span returns a selection inside one block
func Span(block, start, end int) Selection {
	return Selection{Anchor: Position{block, start}, Focus: Position{block, end}}
}

// Collapsed reports whether the selection is a caret
func (s Selection) Collapsed() bool {
	return s.Anchor == s.Focus
}

// Ordered returns the selection bounds in document order
func (s Selection) Ordered() (start, end Position) {
	if s.Focus.before(s.Anchor) {
		return s.Focus, s.Anchor
	}
	return s.Anchor, s.Focus
}

// segment is the part of one block covered by a selection
type segment struct {
	block      int
	start, end int
}

// segments splits a clamped selection into per-block ranges
func (d *Document) segments(s Selection) []segment {
	start, end := s.Ordered()
	start, end = d.clamp(start), d.clamp(end)
	var segs []segment
	for i := start.Block; i <= end.Block && i < len(d.Blocks); i++ {
		seg := segment{block: i, start: 0, end: d.Blocks[i].Len()}
		if i == start.Block {
			seg.start = start.Offset
		}
		if i == end.Block {
			seg.end = end.Offset
		}
		segs = append(segs, seg)
	}
	return segs
}

// SelectedText returns the plain text covered by the selection
func (d *Document) SelectedText(s Selection) string {
	var out []rune
	for i, seg := range d.segments(s) {
		if i > 0 {
			out = append(out, '\n')
		}
		r := []rune(d.Blocks[seg.block].Text())
		out = append(out, r[seg.start:seg.end]...)
	}
	return string(out)
}
