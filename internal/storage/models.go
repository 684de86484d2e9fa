package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Analysis status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Page is one persisted unit of extracted text for a single PDF page.
// PageNumber is the 1-based position of the page within its source document
// at extraction time. Pages are never mutated after insertion.
type Page struct {
	ID          int64
	Filename    string
	PageNumber  int
	Content     string
	ExtractedAt time.Time
}

// DocumentInfo summarizes all stored pages sharing a filename.
type DocumentInfo struct {
	Filename    string    `json:"filename"`
	Pages       int       `json:"pages"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Analysis is one recorded analysis request and its outcome. Intent is empty
// for free-form instructions. Status is "completed" or "failed"; a failed
// analysis still carries a displayable Result string.
type Analysis struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Filename    string    `json:"filename,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Instruction string    `json:"instruction"`
	Prompt      string    `json:"-"`
	Result      string    `json:"result"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
}
