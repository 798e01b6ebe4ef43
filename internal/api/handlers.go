package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/adverant/nexus/inkcompare/internal/errors"
	"github.com/adverant/nexus/inkcompare/internal/processor"
	"github.com/adverant/nexus/inkcompare/internal/queue"
	"github.com/adverant/nexus/inkcompare/internal/report"
	"github.com/adverant/nexus/inkcompare/internal/storage"
)

func (s *Server) compare(c *gin.Context) {
	file1, name1, err := s.readUpload(c, "file1")
	if err != nil {
		s.writeError(c, err)
		return
	}
	file2, name2, err := s.readUpload(c, "file2")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var weightText *float64
	if raw := c.PostForm("weight_text"); raw != "" {
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(c, apperrors.NewInvalidInputError("", "weight_text", "must be a number"))
			return
		}
		weightText = &w
	}

	id := uuid.New().String()

	if c.Query("async") == "true" {
		if s.cfg.Queue == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async comparisons are not enabled"})
			return
		}
		taskID, err := s.cfg.Queue.Enqueue(c.Request.Context(), &queue.ComparePayload{
			ComparisonID: id,
			File1:        file1,
			File2:        file2,
			Filename1:    name1,
			Filename2:    name2,
			WeightText:   weightText,
		})
		if err != nil {
			s.logger.Error("Failed to enqueue comparison", "comparison_id", id, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue comparison"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"comparison_id": id, "task_id": taskID})
		return
	}

	resp, err := s.cfg.Processor.Compare(c.Request.Context(), &processor.CompareRequest{
		ComparisonID: id,
		File1:        file1,
		File2:        file2,
		Filename1:    name1,
		Filename2:    name2,
		WeightText:   weightText,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.Result)
}

// readUpload reads one multipart file. Reading stops one byte past the size
// limit so the processor can still reject oversized files.
func (s *Server) readUpload(c *gin.Context, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, "", apperrors.NewInvalidInputError("", field, "file is missing")
		}
		return nil, "", apperrors.NewInvalidInputError("", field, err.Error())
	}

	data, err := readLimited(fh, s.cfg.MaxFileSize)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", field, err)
	}
	return data, fh.Filename, nil
}

func readLimited(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (s *Server) getReport(c *gin.Context) {
	id := c.Param("id")
	path, err := s.cfg.Reports.Lookup(id)
	if errors.Is(err, report.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to look up report", "report_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read report"})
		return
	}
	c.Header("Content-Type", report.ContentType)
	c.FileAttachment(path, report.FileName(id))
}

func (s *Server) getComparison(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "comparison history is not enabled"})
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comparison not found"})
		return
	}

	rec, err := s.cfg.History.Get(c.Request.Context(), id)
	if errors.Is(err, storage.ErrComparisonNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "comparison not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to read comparison history", "comparison_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read comparison"})
		return
	}

	body := gin.H{
		"comparison_id": rec.ID,
		"created_at":    rec.CreatedAt,
		"result":        rec.Result,
	}
	if rec.ReportID != "" {
		body["report_id"] = rec.ReportID
		body["report_url"] = report.URL(rec.ReportID)
	}
	c.JSON(http.StatusOK, body)
}

// statusFor maps an error code to its HTTP status
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrorInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrorExtractionFailed:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorProcessingTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := statusFor(code)

	body := gin.H{"error": err.Error()}
	var ce *apperrors.ComparisonError
	if errors.As(err, &ce) {
		body["error"] = ce.Message
		body["error_code"] = string(ce.Code)
		if ce.ComparisonID != "" {
			body["comparison_id"] = ce.ComparisonID
		}
		if field, ok := ce.Details["field"]; ok {
			body["field"] = field
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Comparison request failed", "status", status, "error", err)
	} else {
		s.logger.Warn("Comparison request rejected", "status", status, "error", err)
	}
	c.JSON(status, body)
}
