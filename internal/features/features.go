/**
 * Feature types - per-region handwriting and text signals
 *
 * A Document is the structured output of running the feature extractor over
 * every page of one PDF. Recognizers produce Paragraph trees; FromParagraph
 * reduces a tree to one Region.
 */

package features

import (
	"strings"
	"unicode"
)

// BoundingBox is an axis-aligned pixel rectangle
type BoundingBox struct {
	Left   int64 `json:"left"`
	Top    int64 `json:"top"`
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Region is one recognized paragraph on one page
type Region struct {
	Confidence              float64      `json:"confidence"`
	WordCount               int          `json:"word_count"`
	SymbolDensity           float64      `json:"symbol_density"`
	LineBreaks              int          `json:"line_breaks"`
	AverageSymbolConfidence float64      `json:"average_symbol_confidence"`
	BoundingBox             *BoundingBox `json:"bounding_box"`
	PageNumber              int          `json:"page_number"`
	Text                    string       `json:"text,omitempty"`
}

// HasText reports whether the recognizer supplied text for the region
func (r Region) HasText() bool {
	return strings.TrimSpace(r.Text) != ""
}

// Page is the ordered list of regions recognized on one page
type Page []Region

// Document is the ordered list of pages of one PDF
type Document []Page

// Regions flattens all pages into a single slice in page order
func (d Document) Regions() []Region {
	n := 0
	for _, p := range d {
		n += len(p)
	}
	out := make([]Region, 0, n)
	for _, p := range d {
		out = append(out, p...)
	}
	return out
}

// RegionCount returns the number of regions across all pages
func (d Document) RegionCount() int {
	n := 0
	for _, p := range d {
		n += len(p)
	}
	return n
}

// Text joins region texts with blank lines so each region reads as a paragraph
func (d Document) Text() string {
	var parts []string
	for _, p := range d {
		for _, r := range p {
			if r.HasText() {
				parts = append(parts, strings.TrimSpace(r.Text))
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// Vertex is one corner of a recognizer bounding polygon
type Vertex struct {
	X int64
	Y int64
}

// Symbol is a single recognized glyph
type Symbol struct {
	Text       string
	Confidence float64
	// Break holds the detected break type following the symbol, empty when none
	Break string
}

// Word is an ordered run of symbols
type Word struct {
	Symbols []Symbol
}

// Paragraph is the recognizer-neutral structure every OCR backend maps into
type Paragraph struct {
	Confidence float64
	Vertices   []Vertex
	Words      []Word
}

// FromParagraph computes the Region for a paragraph. ok is false when the
// paragraph has no words.
func FromParagraph(p Paragraph, pageNumber int) (Region, bool) {
	if len(p.Words) == 0 {
		return Region{}, false
	}

	var (
		symbols     int
		nonAlnum    int
		breaks      int
		confidences float64
		text        strings.Builder
	)

	for _, w := range p.Words {
		for _, s := range w.Symbols {
			symbols++
			confidences += s.Confidence
			if !isAlnum(s.Text) {
				nonAlnum++
			}
			text.WriteString(s.Text)
			if s.Break != "" {
				breaks++
				text.WriteString(breakText(s.Break))
			}
		}
	}

	region := Region{
		Confidence:    p.Confidence,
		WordCount:     len(p.Words),
		SymbolDensity: float64(nonAlnum) / float64(len(p.Words)),
		LineBreaks:    breaks,
		BoundingBox:   Envelope(p.Vertices),
		PageNumber:    pageNumber,
		Text:          strings.TrimSpace(text.String()),
	}
	if symbols > 0 {
		region.AverageSymbolConfidence = confidences / float64(symbols)
	}

	return region, true
}

// Envelope returns the axis-aligned box around exactly four vertices, or nil
// for any other vertex count.
func Envelope(vertices []Vertex) *BoundingBox {
	if len(vertices) != 4 {
		return nil
	}

	minX, maxX := vertices[0].X, vertices[0].X
	minY, maxY := vertices[0].Y, vertices[0].Y
	for _, v := range vertices[1:] {
		minX = min(minX, v.X)
		maxX = max(maxX, v.X)
		minY = min(minY, v.Y)
		maxY = max(maxY, v.Y)
	}

	return &BoundingBox{
		Left:   minX,
		Top:    minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// breakText renders a detected break the way it reads on the page
func breakText(kind string) string {
	switch kind {
	case "EOL_SURE_SPACE", "LINE_BREAK":
		return "\n"
	case "HYPHEN":
		return "-\n"
	default:
		return " "
	}
}
