package domain

import (
	"testing"
	"time"
)

func jan(d, hour int) time.Time {
	return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string {
	return &s
}

func intPtr(n int) *int {
	return &n
}

func moved(at time.Time, from, to string) HistoryRecord {
	return HistoryRecord{Time: at, Changes: []FieldChange{{Field: FieldStatus, OldValue: strPtr(from), NewValue: to}}}
}

// mustItem normalizes rec and fails the test on error.
func mustItem(t *testing.T, rec ItemRecord) *WorkItem {
	t.Helper()
	item, err := NewWorkItem(rec)
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	return item
}

// testCatalog returns a catalog with one status per category plus a Blocked status.
func testCatalog(t *testing.T) *StatusCatalog {
	t.Helper()
	catalog, err := NewStatusCatalog([]Status{
		{ID: 1, Name: "Backlog", CategoryName: "To Do", CategoryID: 2},
		{ID: 2, Name: "Ready", CategoryName: "To Do", CategoryID: 2},
		{ID: 3, Name: "In Progress", CategoryName: "In Progress", CategoryID: 4},
		{ID: 4, Name: "Blocked", CategoryName: "In Progress", CategoryID: 4},
		{ID: 5, Name: "Done", CategoryName: "Done", CategoryID: 3},
	})
	if err != nil {
		t.Fatalf("NewStatusCatalog() error = %v", err)
	}
	return catalog
}

// categoryPolicy starts on the first In Progress entry and stops while still Done.
func categoryPolicy(catalog *StatusCatalog) CycleTimePolicy {
	return CycleTimePolicy{
		Start: func(item *WorkItem) *time.Time { return item.FirstTimeInStatusCategory(catalog, "In Progress") },
		Stop:  func(item *WorkItem) *time.Time { return item.StillInStatusCategory(catalog, "Done") },
	}
}
