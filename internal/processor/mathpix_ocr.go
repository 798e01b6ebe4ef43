/**
 * Mathpix text recognizer
 *
 * Produces math-aware plain text for a page image. Used for the document's
 * full text; region features still come from the structural recognizer.
 */

package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
)

const defaultMathpixURL = "https://api.mathpix.com/v3/text"

// MathpixOCR calls the Mathpix v3/text endpoint
type MathpixOCR struct {
	appID      string
	appKey     string
	baseURL    string
	httpClient *http.Client
}

// MathpixConfig holds Mathpix credentials
type MathpixConfig struct {
	AppID  string
	AppKey string
	// BaseURL overrides the endpoint, for tests
	BaseURL string
}

type mathpixRequest struct {
	Src               string   `json:"src"`
	Formats           []string `json:"formats"`
	OCR               bool     `json:"ocr"`
	RmSpaces          bool     `json:"rm_spaces"`
	EnableTables      bool     `json:"enable_tables"`
	EnableMarkdown    bool     `json:"enable_markdown"`
	EnableMath        bool     `json:"enable_math"`
	EnableHandwriting bool     `json:"enable_handwriting"`
}

type mathpixResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// NewMathpixOCR creates a Mathpix client
func NewMathpixOCR(cfg *MathpixConfig) (*MathpixOCR, error) {
	if cfg.AppID == "" || cfg.AppKey == "" {
		return nil, fmt.Errorf("Mathpix app ID and key are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultMathpixURL
	}
	return &MathpixOCR{
		appID:   cfg.AppID,
		appKey:  cfg.AppKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Name identifies the recognizer in logs and metrics
func (m *MathpixOCR) Name() string {
	return "mathpix"
}

// RecognizeText returns the text Mathpix reads from one page image
func (m *MathpixOCR) RecognizeText(ctx context.Context, img []byte) (string, error) {
	reqBody := mathpixRequest{
		Src:               "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
		Formats:           []string{"text"},
		OCR:               true,
		RmSpaces:          true,
		EnableTables:      true,
		EnableMarkdown:    true,
		EnableMath:        true,
		EnableHandwriting: true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("app_id", m.appID)
	req.Header.Set("app_key", m.appKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewAPICallError("mathpix", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewAPICallError("mathpix", resp.StatusCode,
			fmt.Errorf("mathpix returned status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed mathpixResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Error != "" {
		return "", apperrors.NewAPICallError("mathpix", resp.StatusCode, fmt.Errorf("mathpix error: %s", parsed.Error))
	}

	return parsed.Text, nil
}
