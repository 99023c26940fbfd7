package domain

import "time"

// FieldChange is one field transition inside a history batch.
type FieldChange struct {
	Field    string  `json:"field"`
	OldValue *string `json:"old_value,omitempty"`
	NewValue string  `json:"new_value"`
	OldID    *int    `json:"old_id,omitempty"`
	NewID    *int    `json:"new_id,omitempty"`
}

// HistoryRecord groups field changes that were recorded at the same instant.
type HistoryRecord struct {
	Time    time.Time     `json:"time"`
	Changes []FieldChange `json:"changes"`
}

// ItemRecord is the raw shape of a tracked item before its changelog is normalized.
// A nil History means the changelog was never retrieved; an empty one means no changes happened.
type ItemRecord struct {
	Key         string          `json:"key"`
	Type        string          `json:"type"`
	Summary     string          `json:"summary"`
	CreatedAt   time.Time       `json:"created_at"`
	Status      string          `json:"status,omitempty"`
	StatusID    *int            `json:"status_id,omitempty"`
	Priority    string          `json:"priority,omitempty"`
	History     []HistoryRecord `json:"history"`
	ParentKey   string          `json:"parent_key,omitempty"`
	SubtaskKeys []string        `json:"subtask_keys,omitempty"`
}
