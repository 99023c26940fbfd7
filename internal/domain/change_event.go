package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Field names with special meaning in a changelog.
const (
	FieldStatus     = "status"
	FieldResolution = "resolution"
	FieldFlagged    = "Flagged"
	FieldLink       = "Link"
)

// CreatedSentinel is the creation value used when no initial status can be inferred.
const CreatedSentinel = "--CREATED--"

// ChangeEvent represents a single field transition in a work item's changelog.
type ChangeEvent struct {
	Time       time.Time `json:"time"`
	Field      string    `json:"field"`
	Value      string    `json:"value"`
	ValueID    *int      `json:"value_id,omitempty"`
	OldValue   *string   `json:"old_value,omitempty"`
	OldValueID *int      `json:"old_value_id,omitempty"`
	Synthetic  bool      `json:"synthetic,omitempty"`
}

// IsStatus reports whether the event changes the status field.
func (e ChangeEvent) IsStatus() bool {
	return strings.EqualFold(e.Field, FieldStatus)
}

// IsResolution reports whether the event changes the resolution field.
func (e ChangeEvent) IsResolution() bool {
	return strings.EqualFold(e.Field, FieldResolution)
}

// IsFlagged reports whether the event toggles the flag.
func (e ChangeEvent) IsFlagged() bool {
	return strings.EqualFold(e.Field, FieldFlagged)
}

// IsLink reports whether the event adds or removes an issue link.
func (e ChangeEvent) IsLink() bool {
	return strings.EqualFold(e.Field, FieldLink)
}

// FlagSet reports whether a flag event turns the flag on.
func (e ChangeEvent) FlagSet() bool {
	return strings.TrimSpace(e.Value) != ""
}

// OldValueOr returns the previous value, or fallback when none was recorded.
func (e ChangeEvent) OldValueOr(fallback string) string {
	if e.OldValue == nil {
		return fallback
	}
	return *e.OldValue
}

// LinkedKey extracts the issue key that follows phrase in a link event.
// Removal events carry the text in OldValue; added reports which side matched.
func (e ChangeEvent) LinkedKey(phrase string) (key string, added bool, ok bool) {
	if !e.IsLink() || strings.TrimSpace(phrase) == "" {
		return "", false, false
	}
	if key, ok := keyAfterPhrase(e.Value, phrase); ok {
		return key, true, true
	}
	if e.OldValue != nil {
		if key, ok := keyAfterPhrase(*e.OldValue, phrase); ok {
			return key, false, true
		}
	}
	return "", false, false
}

// keyAfterPhrase matches phrase case-insensitively at rune boundaries of text.
func keyAfterPhrase(text, phrase string) (string, bool) {
	for i := range text {
		end := i + len(phrase)
		if end > len(text) {
			break
		}
		if end < len(text) && !utf8.RuneStart(text[end]) {
			continue
		}
		if !strings.EqualFold(text[i:end], phrase) {
			continue
		}
		rest := strings.Fields(text[end:])
		if len(rest) == 0 {
			return "", false
		}
		return rest[0], true
	}
	return "", false
}
