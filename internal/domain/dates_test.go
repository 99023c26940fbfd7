package domain

import (
	"slices"
	"testing"
	"time"
)

func TestDateHelpers(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	late := time.Date(2024, 1, 31, 23, 30, 0, 0, loc)
	if got := DateOf(late); !got.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("DateOf() = %v", got)
	}
	if got := DaysBetween(jan(1, 23), jan(2, 1)); got != 1 {
		t.Fatalf("DaysBetween() = %d, want 1", got)
	}
	if _, err := ParseDate("2024-13-01"); err == nil {
		t.Fatal("expected invalid month to fail")
	}
	if got, err := ParseDate(" 2024-02-29 "); err != nil || got.Format(DateLayout) != "2024-02-29" {
		t.Fatalf("ParseDate() = %v, %v", got, err)
	}
}

func TestDateRange(t *testing.T) {
	r, err := NewDateRange(jan(3, 15), jan(5, 1))
	if err != nil {
		t.Fatalf("NewDateRange() error = %v", err)
	}
	dates := r.Dates()
	if len(dates) != 3 || !dates[0].Equal(DateOf(jan(3, 0))) {
		t.Fatalf("unexpected dates %v", dates)
	}
	if !r.Contains(jan(5, 23)) || r.Contains(jan(6, 0)) {
		t.Fatal("unexpected Contains() result")
	}
	if _, err := NewDateRange(jan(5, 0), jan(4, 0)); err != ErrInvalidTimestamp {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestCompareKeysUsesNumericSuffix(t *testing.T) {
	keys := []string{"K-10", "A-3", "K-9", "misc", "K-1"}
	slices.SortFunc(keys, CompareKeys)
	want := []string{"A-3", "K-1", "K-9", "K-10", "misc"}
	if !slices.Equal(keys, want) {
		t.Fatalf("sorted keys = %v, want %v", keys, want)
	}
}

func TestItemSetOperations(t *testing.T) {
	a := &WorkItem{Key: "K-2"}
	b := &WorkItem{Key: "K-10"}
	c := &WorkItem{Key: "K-1"}
	left := ItemSet{}
	left.Add(a)
	left.Add(b)
	right := ItemSet{}
	right.Add(b)
	right.Add(c)

	if got := left.Union(right).Keys(); !slices.Equal(got, []string{"K-1", "K-2", "K-10"}) {
		t.Fatalf("Union().Keys() = %v", got)
	}
	if got := left.Minus(right).Keys(); !slices.Equal(got, []string{"K-2"}) {
		t.Fatalf("Minus().Keys() = %v", got)
	}
	clone := left.Clone()
	clone.Remove(a)
	if !left.Has("K-2") || clone.Has("K-2") {
		t.Fatal("expected Clone() to be independent")
	}
	if got := (ItemSet{}).Keys(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil keys, got %#v", got)
	}
}
