/**
 * PDF rasterizer - renders every page to PNG with pdftoppm
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

const defaultRasterDPI = 200

// PdftoppmRasterizer renders pages with poppler's pdftoppm in a private temp dir
type PdftoppmRasterizer struct {
	binary  string
	dpi     int
	tempDir string
}

// RasterizerConfig holds rendering options
type RasterizerConfig struct {
	PdftoppmPath string
	DPI          int
	TempDir      string
}

// NewPdftoppmRasterizer creates a rasterizer. An empty binary path is looked
// up on PATH at render time.
func NewPdftoppmRasterizer(cfg *RasterizerConfig) *PdftoppmRasterizer {
	binary := cfg.PdftoppmPath
	if binary == "" {
		binary = "pdftoppm"
	}
	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = defaultRasterDPI
	}
	return &PdftoppmRasterizer{binary: binary, dpi: dpi, tempDir: cfg.TempDir}
}

// PageCount returns the number of pages in a PDF
func PageCount(pdf []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(pdf), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}

// Rasterize renders every page of pdf. The temp dir holding the PDF and the
// rendered pages is removed before returning.
func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, pdf []byte) ([]PageImage, error) {
	pageCount, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return []PageImage{}, nil
	}

	tmpDir, err := os.MkdirTemp(r.tempDir, "inkcompare-raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "document.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	pages := make([]PageImage, pageCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i := 0; i < pageCount; i++ {
		g.Go(func() error {
			data, err := r.renderPage(gctx, pdfPath, tmpDir, i+1)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			pages[i] = PageImage{Index: i, Data: data}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// renderPage renders one 1-based page to PNG bytes
func (r *PdftoppmRasterizer) renderPage(ctx context.Context, pdfPath, dir string, pageNum int) ([]byte, error) {
	outputPrefix := filepath.Join(dir, fmt.Sprintf("page-%04d", pageNum))
	pageStr := strconv.Itoa(pageNum)

	cmd := exec.CommandContext(ctx, r.binary,
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(r.dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	// -singlefile writes exactly <prefix>.png
	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}
