package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewBoardOrdersColumnsByPosition(t *testing.T) {
	board, err := NewBoard(7, " Team ", []BoardColumn{
		{Name: "Done", StatusIDs: []int{5}, Position: 2},
		{Name: "Ready", StatusIDs: []int{2}, Position: 0},
		{Name: "Doing", StatusIDs: []int{3, 4}, Position: 1},
	}, []int{1})
	if err != nil {
		t.Fatalf("NewBoard() error = %v", err)
	}
	if board.Name != "Team" || board.Columns[0].Name != "Ready" || board.Columns[2].Name != "Done" {
		t.Fatalf("unexpected board %#v", board)
	}
	if idx, ok := board.ColumnIndexFor(4); !ok || idx != 1 {
		t.Fatalf("ColumnIndexFor(4) = %d, %t", idx, ok)
	}
	if _, ok := board.ColumnIndexFor(1); ok {
		t.Fatal("expected backlog status to be off the columns")
	}
	if !board.IsEntryStatus(1) || !board.IsEntryStatus(2) || board.IsEntryStatus(3) {
		t.Fatal("unexpected IsEntryStatus() result")
	}
}

func TestNewBoardValidation(t *testing.T) {
	if _, err := NewBoard(1, " ", nil, nil); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := NewBoard(1, "B", []BoardColumn{{Name: "X", Position: -1}}, nil); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	if _, err := NewBoard(1, "B", []BoardColumn{{Name: " "}}, nil); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName for column, got %v", err)
	}
}

func TestNewImportBatch(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	batch, err := NewImportBatch(" b1 ", " export.json ", -3, time.Date(2024, 1, 1, 10, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("NewImportBatch() error = %v", err)
	}
	if batch.ID != "b1" || batch.Source != "export.json" || batch.ItemCount != 0 || batch.ImportedAt.Location() != time.UTC {
		t.Fatalf("unexpected batch %#v", batch)
	}
	if _, err := NewImportBatch("", "x", 1, time.Now()); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := NewImportBatch("b", "x", 1, time.Time{}); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}
