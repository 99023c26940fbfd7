package app

import (
	"context"

	"github.com/evanschultz/kanflow/internal/domain"
)

// Repository persists imported item records and the board topology they are measured against.
type Repository interface {
	UpsertItemRecord(context.Context, domain.ItemRecord, string) error
	GetItemRecord(context.Context, string) (domain.ItemRecord, error)
	ListItemRecords(context.Context) ([]domain.ItemRecord, error)

	UpsertStatus(context.Context, domain.Status) error
	ListStatuses(context.Context) ([]domain.Status, error)

	UpsertBoard(context.Context, domain.Board) error
	ListBoards(context.Context) ([]domain.Board, error)

	CreateImportBatch(context.Context, domain.ImportBatch) error
	ListImportBatches(context.Context) ([]domain.ImportBatch, error)
}
