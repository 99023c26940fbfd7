package domain

import (
	"slices"
	"strings"
)

// BoardColumn represents one visible board column and the statuses it shows.
type BoardColumn struct {
	Name      string `json:"name"`
	StatusIDs []int  `json:"status_ids"`
	Position  int    `json:"position"`
}

// Board represents an ordered set of columns plus the statuses treated as backlog.
type Board struct {
	ID               int           `json:"id"`
	Name             string        `json:"name"`
	Columns          []BoardColumn `json:"columns"`
	BacklogStatusIDs []int         `json:"backlog_status_ids,omitempty"`
}

// NewBoard validates columns and orders them by position.
func NewBoard(id int, name string, columns []BoardColumn, backlog []int) (Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Board{}, ErrInvalidName
	}
	out := make([]BoardColumn, 0, len(columns))
	for _, column := range columns {
		column.Name = strings.TrimSpace(column.Name)
		if column.Name == "" {
			return Board{}, ErrInvalidName
		}
		if column.Position < 0 {
			return Board{}, ErrInvalidPosition
		}
		column.StatusIDs = slices.Clone(column.StatusIDs)
		out = append(out, column)
	}
	slices.SortStableFunc(out, func(a, b BoardColumn) int {
		return a.Position - b.Position
	})
	return Board{
		ID:               id,
		Name:             name,
		Columns:          out,
		BacklogStatusIDs: slices.Clone(backlog),
	}, nil
}

// ColumnIndexFor returns the display index of the first column showing statusID.
// ok is false when the status is not visible on the board.
func (b Board) ColumnIndexFor(statusID int) (int, bool) {
	for idx, column := range b.Columns {
		if slices.Contains(column.StatusIDs, statusID) {
			return idx, true
		}
	}
	return 0, false
}

// IsBacklogStatus reports whether statusID is a configured backlog status.
func (b Board) IsBacklogStatus(statusID int) bool {
	return slices.Contains(b.BacklogStatusIDs, statusID)
}

// IsEntryStatus reports whether an item may legitimately be created in statusID.
func (b Board) IsEntryStatus(statusID int) bool {
	if b.IsBacklogStatus(statusID) {
		return true
	}
	if len(b.Columns) == 0 {
		return false
	}
	return slices.Contains(b.Columns[0].StatusIDs, statusID)
}
