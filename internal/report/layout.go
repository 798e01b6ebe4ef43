package report

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/wudi/pdfkit/builder"
	"github.com/wudi/pdfkit/ir/semantic"

	"github.com/adverant/nexus/inkcompare/internal/anomaly"
)

// A4 in points
const (
	pageWidth   = 595.0
	pageHeight  = 842.0
	margin      = 50.0
	bodySize    = 10.0
	lineHeight  = 14.0
	wrapColumns = 90
	barWidth    = 200.0
)

var (
	headingColor = builder.Color{R: 0.1, G: 0.1, B: 0.1}
	barColor     = builder.Color{R: 0.2, G: 0.4, B: 0.7}
	ruleColor    = builder.Color{R: 0.6, G: 0.6, B: 0.6}
)

// pageWriter flows lines top to bottom, starting a new page when one fills
type pageWriter struct {
	b    builder.PDFBuilder
	page builder.PageBuilder
	y    float64
}

func newPageWriter(b builder.PDFBuilder) *pageWriter {
	w := &pageWriter{b: b}
	w.newPage()
	return w
}

func (w *pageWriter) newPage() {
	if w.page != nil {
		w.page.Finish()
	}
	w.page = w.b.NewPage(pageWidth, pageHeight)
	w.y = pageHeight - margin
}

func (w *pageWriter) reserve(height float64) {
	if w.y-height < margin {
		w.newPage()
	}
}

func (w *pageWriter) heading(text string, size float64) {
	w.reserve(size + lineHeight)
	w.y -= size
	w.page.DrawText(printable(text), margin, w.y, builder.TextOptions{FontSize: size, Color: headingColor})
	w.y -= lineHeight / 2
}

func (w *pageWriter) line(text string) {
	w.reserve(lineHeight)
	w.y -= lineHeight
	w.page.DrawText(printable(text), margin, w.y, builder.TextOptions{FontSize: bodySize})
}

func (w *pageWriter) paragraph(text string) {
	for _, l := range wrap(text, wrapColumns) {
		w.line(l)
	}
}

// scoreBar draws a labelled bar of length proportional to score
func (w *pageWriter) scoreBar(label string, score float64) {
	w.reserve(lineHeight + 4)
	w.y -= lineHeight + 4
	w.page.DrawText(printable(fmt.Sprintf("%s: %.2f%%", label, score*100)), margin, w.y, builder.TextOptions{FontSize: bodySize})
	x := margin + 250
	w.page.DrawRectangle(x, w.y-2, barWidth, 10, builder.RectOptions{Stroke: true, StrokeColor: ruleColor, LineWidth: 0.5})
	if score > 0 {
		w.page.DrawRectangle(x, w.y-2, barWidth*score, 10, builder.RectOptions{Fill: true, FillColor: barColor})
	}
}

func (w *pageWriter) rule() {
	w.reserve(lineHeight)
	w.y -= lineHeight / 2
	w.page.DrawLine(margin, w.y, pageWidth-margin, w.y, builder.LineOptions{StrokeColor: ruleColor, LineWidth: 0.5})
}

func (w *pageWriter) gap() {
	w.y -= lineHeight / 2
}

// Compose lays out doc as a PDF document
func Compose(doc *Document) (*semantic.Document, error) {
	summary, err := Summary(doc)
	if err != nil {
		return nil, err
	}

	b := builder.NewBuilder()
	b.SetInfo(&semantic.DocumentInfo{
		Title:    "PDF Similarity Analysis Report",
		Subject:  doc.ID,
		Creator:  "inkcompare",
		Producer: "inkcompare",
	})
	b.AddEmbeddedFile(semantic.EmbeddedFile{
		Name:         SummaryName,
		Description:  "Comparison summary",
		Relationship: "Data",
		Subtype:      "application/yaml",
		Data:         summary,
	})

	w := newPageWriter(b)
	w.heading("PDF Similarity Analysis Report", 16)
	w.line("Generated on: " + doc.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	w.line("Report: " + doc.ID)
	if doc.ComparisonID != "" {
		w.line("Comparison: " + doc.ComparisonID)
	}
	if doc.CacheHit {
		w.line("Served from cache")
	}
	w.rule()

	w.heading("Similarity Scores", 13)
	w.scoreBar("Text Similarity ("+doc.Scores.TextMethod+")", doc.Scores.TextSimilarity)
	w.scoreBar("Handwriting Similarity", doc.Scores.HandwritingSimilarity)
	w.scoreBar("Overall Similarity Index", doc.Scores.SimilarityIndex)
	w.line(fmt.Sprintf("Text weight: %.2f", doc.Scores.WeightText))
	w.gap()

	if len(doc.FeatureScores) > 0 {
		w.heading("Handwriting Features", 13)
		names := make([]string, 0, len(doc.FeatureScores))
		for name := range doc.FeatureScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			w.scoreBar(name, doc.FeatureScores[name])
		}
		w.gap()
	}

	w.heading("Region Matches", 13)
	w.line(fmt.Sprintf("Near-identical text regions: %d", doc.RegionMatches.Text))
	w.line(fmt.Sprintf("Similar handwriting regions: %d", doc.RegionMatches.Handwriting))
	w.line(fmt.Sprintf("Inconsistent segments: %d / %d", doc.Inconsistency.Document1, doc.Inconsistency.Document2))
	w.gap()

	w.heading("Anomalies", 13)
	writeAnomalies(w, "Document 1", doc.Anomalies.Document1)
	writeAnomalies(w, "Document 2", doc.Anomalies.Document2)
	w.gap()

	w.heading("Page Variations", 13)
	writeVariations(w, "Document 1", doc.Variations.Document1)
	writeVariations(w, "Document 2", doc.Variations.Document2)
	w.rule()

	w.heading("Extracted Text Samples", 13)
	w.line("Document 1:")
	w.paragraph(doc.TextExcerpts.Document1 + "...")
	w.gap()
	w.line("Document 2:")
	w.paragraph(doc.TextExcerpts.Document2 + "...")

	w.page.Finish()
	pdf, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build report PDF: %w", err)
	}
	return pdf, nil
}

func writeAnomalies(w *pageWriter, label string, items []anomaly.Anomaly) {
	if len(items) == 0 {
		w.line(label + ": none")
		return
	}
	w.line(fmt.Sprintf("%s: %d", label, len(items)))
	for _, a := range items {
		var parts []string
		for _, f := range []struct {
			name string
			d    *anomaly.Deviation
		}{{"confidence", a.Confidence}, {"symbol density", a.SymbolDensity}, {"line breaks", a.LineBreaks}} {
			if f.d != nil {
				parts = append(parts, fmt.Sprintf("%s %.2f (mean %.2f, %.1f sd)", f.name, f.d.Value, f.d.Mean, f.d.Deviation))
			}
		}
		w.paragraph(fmt.Sprintf("page %d paragraph %d: %s", a.PageNumber, a.ParagraphIndex, strings.Join(parts, "; ")))
	}
}

func writeVariations(w *pageWriter, label string, items []anomaly.Variation) {
	if len(items) == 0 {
		w.line(label + ": none")
		return
	}
	w.line(fmt.Sprintf("%s: %d", label, len(items)))
	for _, v := range items {
		for _, c := range v.Changes {
			w.paragraph(fmt.Sprintf("pages %d-%d: %s", v.FromPage, v.ToPage, c.Description))
		}
	}
}

// wrap breaks text into lines of at most width runes, on spaces where possible
func wrap(text string, width int) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		words := strings.Fields(raw)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		var cur []rune
		for _, word := range words {
			r := []rune(word)
			for len(r) > width {
				if len(cur) > 0 {
					out = append(out, string(cur))
					cur = nil
				}
				out = append(out, string(r[:width]))
				r = r[width:]
			}
			switch {
			case len(cur) == 0:
				cur = r
			case len(cur)+1+len(r) <= width:
				cur = append(append(cur, ' '), r...)
			default:
				out = append(out, string(cur))
				cur = r
			}
		}
		if len(cur) > 0 {
			out = append(out, string(cur))
		}
	}
	return out
}

// printable maps text onto what the standard Helvetica encoding can show
func printable(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r < 0x20 || r > 0x7e:
			if unicode.IsSpace(r) {
				return ' '
			}
			return '?'
		}
		return r
	}, text)
}
