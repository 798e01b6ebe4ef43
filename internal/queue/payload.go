/**
 * Comparison task payload
 *
 * Files travel inside the task as base64 strings. Producers written in
 * Node.js may also send the JSON form of a Buffer ({"type":"Buffer","data":[...]}),
 * which is accepted on decode.
 */

package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeCompare is the asynq task type for document comparisons
const TaskTypeCompare = "compare-documents"

// FileData is raw file content carried in a task payload
type FileData []byte

// MarshalJSON encodes the file as a base64 string
func (f FileData) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(f))
}

// UnmarshalJSON accepts a base64 string or a Node.js Buffer object
func (f *FileData) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal file data: %w", err)
	}

	switch v := raw.(type) {
	case nil:
		*f = nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 file data: %w", err)
		}
		*f = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		buf := make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			buf[i] = byte(byteVal)
		}
		*f = buf

	default:
		return fmt.Errorf("file data must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// ComparePayload is the body of a compare-documents task
type ComparePayload struct {
	ComparisonID string   `json:"comparisonId"`
	File1        FileData `json:"file1"`
	File2        FileData `json:"file2"`
	Filename1    string   `json:"filename1,omitempty"`
	Filename2    string   `json:"filename2,omitempty"`
	WeightText   *float64 `json:"weightText,omitempty"`
}

// NewCompareTask builds a compare-documents task
func NewCompareTask(p *ComparePayload) (*asynq.Task, error) {
	if p.ComparisonID == "" {
		return nil, fmt.Errorf("comparisonId is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeCompare, data), nil
}
