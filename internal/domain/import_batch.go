package domain

import (
	"strings"
	"time"
)

// ImportBatch records one load of item records into the store.
type ImportBatch struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	ItemCount  int       `json:"item_count"`
	ImportedAt time.Time `json:"imported_at"`
}

// NewImportBatch validates and normalizes an import batch.
func NewImportBatch(id, source string, itemCount int, now time.Time) (ImportBatch, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ImportBatch{}, ErrInvalidKey
	}
	if now.IsZero() {
		return ImportBatch{}, ErrInvalidTimestamp
	}
	if itemCount < 0 {
		itemCount = 0
	}
	return ImportBatch{
		ID:         id,
		Source:     strings.TrimSpace(source),
		ItemCount:  itemCount,
		ImportedAt: now.UTC(),
	}, nil
}
