/**
 * Cloud Vision OCR - DOCUMENT_TEXT_DETECTION recognizer
 *
 * Sends each page image to images:annotate and maps the returned
 * pages → blocks → paragraphs → words → symbols tree onto features.Paragraph.
 */

package processor

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
	"github.com/adverant/nexus/inkcompare/internal/features"
)

const (
	visionFeatureType = "DOCUMENT_TEXT_DETECTION"
	visionMaxResults  = 50
)

// VisionOCR recognizes pages with Google Cloud Vision
type VisionOCR struct {
	service *vision.Service
}

// VisionConfig holds Cloud Vision configuration
type VisionConfig struct {
	APIKey string
	// Endpoint overrides the API base URL, for tests
	Endpoint string
}

// NewVisionOCR creates a Cloud Vision client authenticated by API key
func NewVisionOCR(ctx context.Context, cfg *VisionConfig) (*VisionOCR, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Google Cloud API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision service: %w", err)
	}
	return &VisionOCR{service: svc}, nil
}

// Name identifies the recognizer in logs and metrics
func (v *VisionOCR) Name() string {
	return "vision"
}

// Recognize annotates one page image
func (v *VisionOCR) Recognize(ctx context.Context, img []byte) ([]features.Paragraph, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(img)},
			Features: []*vision.Feature{{
				Type:       visionFeatureType,
				MaxResults: visionMaxResults,
			}},
		}},
	}

	resp, err := v.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, apperrors.NewAPICallError("vision", 0, err)
	}
	if len(resp.Responses) != 1 {
		return nil, fmt.Errorf("%w: expected 1 annotation, got %d", ErrMalformedResponse, len(resp.Responses))
	}

	annotation := resp.Responses[0]
	if annotation.Error != nil && annotation.Error.Code != 0 {
		return nil, apperrors.NewAPICallError("vision", int(annotation.Error.Code),
			fmt.Errorf("annotate failed: %s", annotation.Error.Message))
	}

	if annotation.FullTextAnnotation == nil {
		return nil, fmt.Errorf("%w: no fullTextAnnotation", ErrMalformedResponse)
	}

	return paragraphsFromAnnotation(annotation.FullTextAnnotation), nil
}

func paragraphsFromAnnotation(text *vision.TextAnnotation) []features.Paragraph {
	if text == nil {
		return nil
	}

	var out []features.Paragraph
	for _, page := range text.Pages {
		for _, block := range page.Blocks {
			for _, para := range block.Paragraphs {
				if para != nil {
					out = append(out, convertParagraph(para))
				}
			}
		}
	}
	return out
}

func convertParagraph(para *vision.Paragraph) features.Paragraph {
	p := features.Paragraph{Confidence: para.Confidence}

	if para.BoundingBox != nil {
		for _, v := range para.BoundingBox.Vertices {
			if v != nil {
				p.Vertices = append(p.Vertices, features.Vertex{X: v.X, Y: v.Y})
			}
		}
	}

	for _, w := range para.Words {
		if w == nil {
			continue
		}
		word := features.Word{Symbols: make([]features.Symbol, 0, len(w.Symbols))}
		for _, s := range w.Symbols {
			if s == nil {
				continue
			}
			sym := features.Symbol{Text: s.Text, Confidence: s.Confidence}
			if s.Property != nil && s.Property.DetectedBreak != nil {
				sym.Break = s.Property.DetectedBreak.Type
			}
			word.Symbols = append(word.Symbols, sym)
		}
		p.Words = append(p.Words, word)
	}
	return p
}
