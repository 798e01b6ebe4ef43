/**
 * Tesseract OCR - local recognition without network access
 *
 * Word boxes from gosseract are grouped into paragraphs by their block and
 * paragraph numbers. Tesseract reports no per-symbol data, so each rune of a
 * word becomes a symbol carrying the word confidence, and word ends carry the
 * same break types Cloud Vision reports (SPACE, EOL_SURE_SPACE, LINE_BREAK).
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/inkcompare/internal/features"
)

// TesseractOCR recognizes pages with a local Tesseract install
type TesseractOCR struct {
	languages []string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages []string
}

// NewTesseractOCR creates a new Tesseract recognizer
func NewTesseractOCR(cfg *TesseractConfig) *TesseractOCR {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractOCR{languages: langs}
}

// Name identifies the recognizer in logs and metrics
func (t *TesseractOCR) Name() string {
	return "tesseract"
}

// Recognize runs Tesseract over one page image. A fresh client is created per
// call since gosseract clients are not safe for concurrent use.
func (t *TesseractOCR) Recognize(ctx context.Context, img []byte) ([]features.Paragraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set tesseract languages: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return paragraphsFromWords(boxes), nil
}

type paragraphKey struct {
	block, par int
}

// paragraphsFromWords groups word boxes into paragraphs in reading order
func paragraphsFromWords(boxes []gosseract.BoundingBox) []features.Paragraph {
	groups := make(map[paragraphKey][]gosseract.BoundingBox)
	var order []paragraphKey

	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		key := paragraphKey{b.BlockNum, b.ParNum}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].block != order[j].block {
			return order[i].block < order[j].block
		}
		return order[i].par < order[j].par
	})

	out := make([]features.Paragraph, 0, len(order))
	for _, key := range order {
		out = append(out, buildParagraph(groups[key]))
	}
	return out
}

func buildParagraph(words []gosseract.BoundingBox) features.Paragraph {
	var (
		p     features.Paragraph
		rect  image.Rectangle
		total float64
	)

	for i, w := range words {
		conf := w.Confidence / 100
		total += conf

		if i == 0 {
			rect = w.Box
		} else {
			rect = rect.Union(w.Box)
		}

		runes := []rune(w.Word)
		word := features.Word{Symbols: make([]features.Symbol, len(runes))}
		for j, r := range runes {
			word.Symbols[j] = features.Symbol{Text: string(r), Confidence: conf}
		}

		last := &word.Symbols[len(runes)-1]
		switch {
		case i+1 == len(words):
			last.Break = "LINE_BREAK"
		case words[i+1].LineNum != w.LineNum:
			last.Break = "EOL_SURE_SPACE"
		default:
			last.Break = "SPACE"
		}

		p.Words = append(p.Words, word)
	}

	p.Confidence = total / float64(len(words))
	p.Vertices = []features.Vertex{
		{X: int64(rect.Min.X), Y: int64(rect.Min.Y)},
		{X: int64(rect.Max.X), Y: int64(rect.Min.Y)},
		{X: int64(rect.Max.X), Y: int64(rect.Max.Y)},
		{X: int64(rect.Min.X), Y: int64(rect.Max.Y)},
	}
	return p
}
