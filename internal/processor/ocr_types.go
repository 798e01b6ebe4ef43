/**
 * OCR Types - contracts shared by the recognition backends
 *
 * Every recognizer reduces one page image to the recognizer-neutral
 * Paragraph tree in the features package.
 */

package processor

import (
	"context"
	"errors"

	"github.com/adverant/nexus/inkcompare/internal/features"
)

// ErrMalformedResponse marks a recognizer reply that could not be interpreted
var ErrMalformedResponse = errors.New("malformed recognizer response")

// Recognizer extracts structured paragraphs from one page image (PNG bytes)
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]features.Paragraph, error)
	Name() string
}

// TextRecognizer extracts plain text from one page image. Used for the full
// document text when a math-aware service is configured.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte) (string, error)
	Name() string
}

// PageImage is one rendered page. Index is 0-based.
type PageImage struct {
	Index int
	Data  []byte
}

// Rasterizer renders every page of a PDF to an image
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([]PageImage, error)
}
