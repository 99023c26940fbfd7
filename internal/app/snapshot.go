package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/kanflow/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "kanflow.dataset.v1"

// Snapshot is the portable JSON form of a dataset: statuses, boards and raw item records.
type Snapshot struct {
	Version    string              `json:"version"`
	ExportedAt time.Time           `json:"exported_at"`
	Statuses   []domain.Status     `json:"statuses"`
	Boards     []domain.Board      `json:"boards"`
	Items      []domain.ItemRecord `json:"items"`
}

// ExportSnapshot exports every stored status, board and item record.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	statuses, err := s.repo.ListStatuses(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	boards, err := s.repo.ListBoards(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	items, err := s.repo.ListItemRecords(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Statuses:   statuses,
		Boards:     boards,
		Items:      items,
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot validates snap, upserts its contents and records one import batch.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot, source string) (domain.ImportBatch, error) {
	if err := snap.Validate(); err != nil {
		return domain.ImportBatch{}, err
	}
	snap.sort()

	batch, err := domain.NewImportBatch(s.idGen(), source, len(snap.Items), s.clock())
	if err != nil {
		return domain.ImportBatch{}, err
	}
	for _, status := range snap.Statuses {
		if err := s.repo.UpsertStatus(ctx, status); err != nil {
			return domain.ImportBatch{}, err
		}
	}
	for _, board := range snap.Boards {
		normalized, err := domain.NewBoard(board.ID, board.Name, board.Columns, board.BacklogStatusIDs)
		if err != nil {
			return domain.ImportBatch{}, fmt.Errorf("board %d: %w", board.ID, err)
		}
		if err := s.repo.UpsertBoard(ctx, normalized); err != nil {
			return domain.ImportBatch{}, err
		}
	}
	if err := s.repo.CreateImportBatch(ctx, batch); err != nil {
		return domain.ImportBatch{}, err
	}
	for _, rec := range snap.Items {
		if err := s.repo.UpsertItemRecord(ctx, rec, batch.ID); err != nil {
			return domain.ImportBatch{}, err
		}
	}
	return batch, nil
}

// Validate checks the snapshot for structural problems before anything is written.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}
	if _, err := domain.NewStatusCatalog(s.Statuses); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	boardIDs := map[int]struct{}{}
	for idx, board := range s.Boards {
		if strings.TrimSpace(board.Name) == "" {
			return fmt.Errorf("%w: boards[%d] name is required", ErrInvalidSnapshot, idx)
		}
		if _, ok := boardIDs[board.ID]; ok {
			return fmt.Errorf("%w: duplicate board id %d", ErrInvalidSnapshot, board.ID)
		}
		boardIDs[board.ID] = struct{}{}
	}

	keys := map[string]struct{}{}
	for idx, rec := range s.Items {
		key := strings.TrimSpace(rec.Key)
		if key == "" {
			return fmt.Errorf("%w: items[%d] key is required", ErrInvalidSnapshot, idx)
		}
		if rec.CreatedAt.IsZero() {
			return fmt.Errorf("%w: item %q created_at is required", ErrInvalidSnapshot, key)
		}
		if _, ok := keys[key]; ok {
			return fmt.Errorf("%w: duplicate item key %q", ErrInvalidSnapshot, key)
		}
		keys[key] = struct{}{}
		for batchIdx, batch := range rec.History {
			if batch.Time.IsZero() {
				return fmt.Errorf("%w: item %q history[%d] time is required", ErrInvalidSnapshot, key, batchIdx)
			}
		}
	}
	return nil
}

// sort orders every collection deterministically.
func (s *Snapshot) sort() {
	slices.SortStableFunc(s.Statuses, func(a, b domain.Status) int {
		return a.ID - b.ID
	})
	slices.SortStableFunc(s.Boards, func(a, b domain.Board) int {
		return a.ID - b.ID
	})
	slices.SortStableFunc(s.Items, func(a, b domain.ItemRecord) int {
		return domain.CompareKeys(a.Key, b.Key)
	})
}
