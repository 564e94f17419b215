package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/chunkdl/internal/chunk"
	"github.com/NamanBalaji/chunkdl/internal/integrity"
)

// SessionRecord is the persisted form of a download session. It is keyed by
// the absolute output path so a later run for the same target finds it.
type SessionRecord struct {
	ID            uuid.UUID      `json:"id"`
	URI           string         `json:"uri"`
	OutputPath    string         `json:"outputPath"`
	SuggestedName string         `json:"suggestedName"`
	TotalSize     int64          `json:"totalSize"`
	Integrity     integrity.Hint `json:"integrity"`
	Jobs          []chunk.Job    `json:"jobs"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Matches reports whether the record describes the same remote object.
func (r *SessionRecord) Matches(uri string, totalSize int64) bool {
	return r.URI == uri && r.TotalSize == totalSize && len(r.Jobs) > 0
}
