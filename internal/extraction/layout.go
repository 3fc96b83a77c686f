package extraction

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// minimum distance in points between two lines before they are split
	minRowTolerance = 2.0
	// share of the font size used as the row tolerance
	rowToleranceRatio = 0.5
	// gap, in font sizes, that separates two cells on one line
	cellGapRatio = 1.0
	// gap, in font sizes, that inserts a space while joining glyphs
	wordGapRatio = 0.15
	// vertical distance, in font sizes, that ends a table block
	maxRowGapRatio = 4.0
	minRowsForTable = 2
	minCellsPerRow  = 2
)

// Glyph is a positioned piece of text on a page
type Glyph struct {
	X, Y, W  float64
	FontSize float64
	S        string
}

// GlyphsFromPDF copies the positioned text of a ledongthuc page.
func GlyphsFromPDF(texts []pdf.Text) []Glyph {
	glyphs := make([]Glyph, 0, len(texts))
	for _, t := range texts {
		glyphs = append(glyphs, Glyph{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, S: t.S})
	}
	return glyphs
}

// LayoutFinder detects tables from text alignment: glyphs on one baseline form a
// line, wide horizontal gaps split a line into cells, and consecutive lines with
// at least two cells form a table.
type LayoutFinder struct{}

func NewLayoutFinder() *LayoutFinder {
	return &LayoutFinder{}
}

func (f *LayoutFinder) Name() string { return "layout" }

// FindTables implements TableFinder.
func (f *LayoutFinder) FindTables(ctx context.Context, page PageInput) ([]RawTable, error) {
	if len(page.Glyphs) == 0 {
		return nil, nil
	}
	lines := splitCells(groupLines(page.Glyphs))
	return buildBlocks(lines), nil
}

type cell struct {
	x, end float64
	text   string
}

type line struct {
	y, size float64
	glyphs  []Glyph
	cells   []cell
}

func rowTolerance(size float64) float64 {
	return math.Max(minRowTolerance, size*rowToleranceRatio)
}

// groupLines sorts glyphs top to bottom and groups those sharing a baseline.
func groupLines(glyphs []Glyph) []*line {
	sorted := make([]Glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []*line
	var current *line
	for _, g := range sorted {
		if current != nil && math.Abs(g.Y-current.y) <= rowTolerance(current.size) {
			current.glyphs = append(current.glyphs, g)
			if g.FontSize > current.size {
				current.size = g.FontSize
			}
			continue
		}
		current = &line{y: g.Y, size: g.FontSize, glyphs: []Glyph{g}}
		lines = append(lines, current)
	}

	for _, l := range lines {
		sort.SliceStable(l.glyphs, func(i, j int) bool { return l.glyphs[i].X < l.glyphs[j].X })
	}
	return lines
}

// splitCells joins each line's glyphs into cells separated by wide gaps.
func splitCells(lines []*line) []*line {
	for _, l := range lines {
		size := l.size
		if size <= 0 {
			size = 10
		}
		var b strings.Builder
		var cur *cell
		flush := func() {
			if cur == nil {
				return
			}
			cur.text = strings.TrimSpace(b.String())
			if cur.text != "" {
				l.cells = append(l.cells, *cur)
			}
			b.Reset()
			cur = nil
		}

		for _, g := range l.glyphs {
			if cur != nil {
				gap := g.X - cur.end
				if gap > size*cellGapRatio {
					flush()
				} else if gap > size*wordGapRatio && !strings.HasSuffix(b.String(), " ") {
					b.WriteByte(' ')
				}
			}
			if cur == nil {
				cur = &cell{x: g.X}
			}
			b.WriteString(g.S)
			if end := g.X + g.W; end > cur.end {
				cur.end = end
			}
		}
		flush()
	}
	return lines
}

// buildBlocks turns runs of multi-cell lines into raw tables.
func buildBlocks(lines []*line) []RawTable {
	var tables []RawTable
	var block []*line

	emit := func() {
		if len(block) >= minRowsForTable {
			tables = append(tables, alignBlock(block))
		}
		block = nil
	}

	for _, l := range lines {
		if len(l.cells) < minCellsPerRow {
			emit()
			continue
		}
		if n := len(block); n > 0 {
			prev := block[n-1]
			if prev.y-l.y > math.Max(prev.size, l.size)*maxRowGapRatio {
				emit()
			}
		}
		block = append(block, l)
	}
	emit()
	return tables
}

// alignBlock maps every cell onto the column anchors of the widest line.
// Slots a line does not fill stay nil.
func alignBlock(block []*line) RawTable {
	anchors := block[0].cells
	for _, l := range block[1:] {
		if len(l.cells) > len(anchors) {
			anchors = l.cells
		}
	}

	table := make(RawTable, 0, len(block))
	for _, l := range block {
		row := make([]interface{}, len(anchors))
		for _, c := range l.cells {
			col := nearestAnchor(anchors, c)
			if existing, ok := row[col].(string); ok {
				row[col] = existing + " " + c.text
				continue
			}
			row[col] = c.text
		}
		table = append(table, row)
	}
	return table
}

func nearestAnchor(anchors []cell, c cell) int {
	best, bestDist := 0, math.Inf(1)
	for i, a := range anchors {
		// a cell overlapping the anchor span belongs to it outright
		if c.x < a.end && c.end > a.x {
			return i
		}
		if d := math.Abs(c.x - a.x); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
