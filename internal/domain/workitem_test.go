package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewWorkItemOrdersChangesAndSynthesizesCreation(t *testing.T) {
	item := mustItem(t, ItemRecord{
		Key:       " K-1 ",
		CreatedAt: jan(2, 9),
		History: []HistoryRecord{
			{Time: jan(5, 10), Changes: []FieldChange{
				{Field: FieldResolution, NewValue: "Done"},
				{Field: FieldStatus, OldValue: strPtr("In Progress"), NewValue: "Done"},
			}},
			moved(jan(3, 9), "Ready", "In Progress"),
		},
	})
	if item.Key != "K-1" {
		t.Fatalf("expected trimmed key, got %q", item.Key)
	}
	if len(item.Changes) != 4 {
		t.Fatalf("expected 4 changes, got %d", len(item.Changes))
	}
	creation := item.Changes[0]
	if !creation.Synthetic || creation.Value != "Ready" || !creation.Time.Equal(jan(2, 9)) {
		t.Fatalf("unexpected creation event %#v", creation)
	}
	if item.Changes[1].Value != "In Progress" {
		t.Fatalf("expected changes sorted by time, got %#v", item.Changes[1])
	}
	if !item.Changes[2].IsStatus() || !item.Changes[3].IsResolution() {
		t.Fatalf("expected status before resolution at the same instant, got %q then %q", item.Changes[2].Field, item.Changes[3].Field)
	}
	if got := item.CurrentStatus().Value; got != "Done" {
		t.Fatalf("CurrentStatus() = %q, want Done", got)
	}
}

func TestNewWorkItemCreationFallbacks(t *testing.T) {
	early := mustItem(t, ItemRecord{Key: "K-2", CreatedAt: jan(4, 9), History: []HistoryRecord{
		moved(jan(3, 9), "Backlog", "Ready"),
	}})
	if !early.Changes[0].Time.Equal(jan(3, 9)) {
		t.Fatalf("expected creation moved to the earliest change, got %v", early.Changes[0].Time)
	}

	current := mustItem(t, ItemRecord{Key: "K-3", CreatedAt: jan(1, 9), Status: "Ready", StatusID: intPtr(2), History: []HistoryRecord{}})
	if got := current.Changes[0]; got.Value != "Ready" || got.ValueID == nil || *got.ValueID != 2 {
		t.Fatalf("expected creation from current status, got %#v", got)
	}

	bare := mustItem(t, ItemRecord{Key: "K-4", CreatedAt: jan(1, 9), History: []HistoryRecord{}})
	if got := bare.Changes[0].Value; got != CreatedSentinel {
		t.Fatalf("expected sentinel creation, got %q", got)
	}
}

func TestNewWorkItemValidation(t *testing.T) {
	if _, err := NewWorkItem(ItemRecord{Key: " ", CreatedAt: jan(1, 0), History: []HistoryRecord{}}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := NewWorkItem(ItemRecord{Key: "K-1", History: []HistoryRecord{}}); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
	_, err := NewWorkItem(ItemRecord{Key: "K-1", CreatedAt: jan(1, 0)})
	var missing *MissingChangelogError
	if !errors.As(err, &missing) || missing.Key != "K-1" || !errors.Is(err, ErrMissingChangelog) {
		t.Fatalf("expected MissingChangelogError, got %v", err)
	}
}

func TestWorkItemStatusQueries(t *testing.T) {
	item := mustItem(t, ItemRecord{Key: "K-1", CreatedAt: jan(1, 9), History: []HistoryRecord{
		moved(jan(3, 9), "Ready", "In Progress"),
		moved(jan(10, 9), "In Progress", "Done"),
		moved(jan(12, 9), "Done", "In Progress"),
		moved(jan(13, 9), "In Progress", "Done"),
	}})

	if got := item.FirstTimeInStatus("In Progress"); got == nil || !got.Equal(jan(3, 9)) {
		t.Fatalf("FirstTimeInStatus() = %v", got)
	}
	if got := item.FirstTimeNotInStatus("Ready"); got == nil || !got.Equal(jan(3, 9)) {
		t.Fatalf("FirstTimeNotInStatus() = %v", got)
	}
	if got := item.StillInStatus("Done"); got == nil || !got.Equal(jan(13, 9)) {
		t.Fatalf("StillInStatus() = %v", got)
	}
	if got := item.StillInStatus("In Progress"); got != nil {
		t.Fatalf("expected nil StillInStatus for a left status, got %v", got)
	}
	if got := item.LastTimeEnteredStatus("In Progress"); got == nil || !got.Equal(jan(12, 9)) {
		t.Fatalf("LastTimeEnteredStatus() = %v", got)
	}
	if got := item.FirstStatusChangeAfterCreation(); got == nil || !got.Equal(jan(3, 9)) {
		t.Fatalf("FirstStatusChangeAfterCreation() = %v", got)
	}
	if status, ok := item.StatusAt(jan(11, 0)); !ok || status.Value != "Done" {
		t.Fatalf("StatusAt() = %#v, %t", status, ok)
	}
	if got := item.LastActivity(jan(11, 0)); got == nil || !got.Equal(jan(10, 9)) {
		t.Fatalf("LastActivity() = %v", got)
	}
	if got := item.FirstTimeResolved(); got != nil {
		t.Fatalf("expected no resolution, got %v", got)
	}

	catalog := testCatalog(t)
	if got := item.StillInStatusCategory(catalog, "Done"); got == nil || !got.Equal(jan(13, 9)) {
		t.Fatalf("StillInStatusCategory() = %v", got)
	}
}

func TestWorkItemDiscardChangesBefore(t *testing.T) {
	item := mustItem(t, ItemRecord{Key: "K-1", CreatedAt: jan(1, 9), History: []HistoryRecord{
		moved(jan(3, 9), "Ready", "In Progress"),
		moved(jan(8, 9), "In Progress", "Ready"),
		moved(jan(9, 9), "Ready", "In Progress"),
	}})
	trimmed := item.DiscardChangesBefore(jan(8, 9))
	if len(trimmed.Changes) != 3 || !trimmed.Changes[0].Synthetic {
		t.Fatalf("expected creation plus two kept changes, got %#v", trimmed.Changes)
	}
	if got := trimmed.FirstTimeInStatus("In Progress"); got == nil || !got.Equal(jan(9, 9)) {
		t.Fatalf("expected restart on day 9, got %v", got)
	}
	if len(item.Changes) != 4 {
		t.Fatalf("expected original item untouched, got %d changes", len(item.Changes))
	}
}

func TestChangeEventLinkedKey(t *testing.T) {
	added := ChangeEvent{Field: FieldLink, Value: "This issue is blocked by K-9"}
	if key, isAdded, ok := added.LinkedKey("is blocked by"); !ok || !isAdded || key != "K-9" {
		t.Fatalf("LinkedKey(added) = %q, %t, %t", key, isAdded, ok)
	}
	removed := ChangeEvent{Field: FieldLink, OldValue: strPtr("This issue Is Blocked By K-9")}
	if key, isAdded, ok := removed.LinkedKey("is blocked by"); !ok || isAdded || key != "K-9" {
		t.Fatalf("LinkedKey(removed) = %q, %t, %t", key, isAdded, ok)
	}
	if _, _, ok := (ChangeEvent{Field: FieldStatus, Value: "is blocked by K-1"}).LinkedKey("is blocked by"); ok {
		t.Fatal("expected non-link events to be ignored")
	}
}

func TestChangeEventLinkedKeyNonASCIIText(t *testing.T) {
	kelvin := ChangeEvent{Field: FieldLink, Value: "\u212A\u212A\u212A\u212A This issue IS BLOCKED BY ABC-12"}
	if key, _, ok := kelvin.LinkedKey("is blocked by"); !ok || key != "ABC-12" {
		t.Fatalf("LinkedKey(kelvin) = %q, %t", key, ok)
	}
	widening := ChangeEvent{Field: FieldLink, Value: strings.Repeat("Ⱥ", 16) + " is blocked by"}
	if key, _, ok := widening.LinkedKey("is blocked by"); ok {
		t.Fatalf("expected no key after a trailing phrase, got %q", key)
	}
	accented := ChangeEvent{Field: FieldLink, Value: "Équipe: is blocked by É-7"}
	if key, _, ok := accented.LinkedKey("is blocked by"); !ok || key != "É-7" {
		t.Fatalf("LinkedKey(accented) = %q, %t", key, ok)
	}
}
