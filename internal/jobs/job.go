// Package jobs implements the durable page-generation job pipeline: a
// pending/processing list pair, a delayed retry zset moved by a server-side
// script, and a dead-letter list for exhausted jobs.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/autoguard/autoguard/internal/model"
)

// EncodeJob serializes a job for the queue.
func EncodeJob(j model.PageGenerationJob) (string, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("jobs: encode: %w", err)
	}
	return string(raw), nil
}

// DecodeJob parses a queue payload.
func DecodeJob(raw string) (model.PageGenerationJob, error) {
	var j model.PageGenerationJob
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return j, fmt.Errorf("jobs: decode: %w", err)
	}
	if !j.Variant.IsValid() {
		return j, fmt.Errorf("jobs: decode: invalid variant %q", j.Variant)
	}
	return j, nil
}

// FailureRecord is the dead-letter payload for a job that exhausted its
// attempts.
type FailureRecord struct {
	Job      model.PageGenerationJob `json:"job"`
	Error    string                  `json:"error"`
	Attempts int                     `json:"attempts"`
	FailedAt time.Time               `json:"failed_at"`
}

// EncodeFailure serializes a dead-letter record.
func EncodeFailure(f FailureRecord) (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("jobs: encode failure: %w", err)
	}
	return string(raw), nil
}
