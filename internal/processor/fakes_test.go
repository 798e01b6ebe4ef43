package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/adverant/nexus/inkcompare/internal/features"
)

// splitRasterizer treats everything after the PDF header as pages separated by "|"
type splitRasterizer struct{}

func (splitRasterizer) Rasterize(_ context.Context, pdf []byte) ([]PageImage, error) {
	body := strings.TrimPrefix(string(pdf), "%PDF-")
	if body == "" {
		return []PageImage{}, nil
	}
	parts := strings.Split(body, "|")
	pages := make([]PageImage, len(parts))
	for i, p := range parts {
		pages[i] = PageImage{Index: i, Data: []byte(p)}
	}
	return pages, nil
}

// wordRecognizer returns one paragraph per whitespace-separated word. Pages
// starting with "fail" error, pages starting with "slow" block until the
// context ends, and pages starting with "delay" sleep before answering.
type wordRecognizer struct {
	mu    sync.Mutex
	calls int
}

func (r *wordRecognizer) Name() string { return "fake" }

func (r *wordRecognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *wordRecognizer) Recognize(ctx context.Context, img []byte) ([]features.Paragraph, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	s := string(img)
	switch {
	case strings.HasPrefix(s, "fail"):
		return nil, errors.New("oracle unavailable")
	case strings.HasPrefix(s, "slow"):
		<-ctx.Done()
		return nil, ctx.Err()
	case strings.HasPrefix(s, "delay"):
		time.Sleep(40 * time.Millisecond)
	}

	var out []features.Paragraph
	for i, w := range strings.Fields(s) {
		out = append(out, wordParagraph(w, 0.9-0.1*float64(i%3), int64(i)))
	}
	return out, nil
}

func wordParagraph(word string, conf float64, row int64) features.Paragraph {
	runes := []rune(word)
	symbols := make([]features.Symbol, len(runes))
	for i, r := range runes {
		symbols[i] = features.Symbol{Text: string(r), Confidence: conf}
	}
	symbols[len(symbols)-1].Break = "LINE_BREAK"

	top := row * 40
	return features.Paragraph{
		Confidence: conf,
		Vertices: []features.Vertex{
			{X: 10, Y: top}, {X: 200, Y: top}, {X: 200, Y: top + 30}, {X: 10, Y: top + 30},
		},
		Words: []features.Word{{Symbols: symbols}},
	}
}

// pageTextRecognizer echoes the page bytes upper-cased, failing on "fail"
type pageTextRecognizer struct{}

func (pageTextRecognizer) Name() string { return "fake-text" }

func (pageTextRecognizer) RecognizeText(_ context.Context, img []byte) (string, error) {
	if strings.HasPrefix(string(img), "fail") {
		return "", errors.New("text oracle unavailable")
	}
	return strings.ToUpper(string(img)), nil
}
