package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/kanflow/internal/app"
	"github.com/evanschultz/kanflow/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores item records, statuses, boards and import batches.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS statuses (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			category_name TEXT NOT NULL,
			category_id INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS boards (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			backlog_status_ids_json TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS board_columns (
			board_id INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			name TEXT NOT NULL,
			position INTEGER NOT NULL,
			status_ids_json TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY(board_id, ordinal),
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS import_batches (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			item_count INTEGER NOT NULL DEFAULT 0,
			imported_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS items (
			key TEXT PRIMARY KEY,
			type TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			status_id INTEGER,
			priority TEXT NOT NULL DEFAULT '',
			parent_key TEXT NOT NULL DEFAULT '',
			subtask_keys_json TEXT NOT NULL DEFAULT '[]',
			history_loaded INTEGER NOT NULL DEFAULT 1,
			import_id TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS item_history (
			item_key TEXT NOT NULL,
			batch_seq INTEGER NOT NULL,
			change_seq INTEGER NOT NULL,
			at TEXT NOT NULL,
			field TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT NOT NULL DEFAULT '',
			old_id INTEGER,
			new_id INTEGER,
			PRIMARY KEY(item_key, batch_seq, change_seq),
			FOREIGN KEY(item_key) REFERENCES items(key) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_import ON items(import_id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// UpsertItemRecord replaces an item record and its full history.
func (r *Repository) UpsertItemRecord(ctx context.Context, rec domain.ItemRecord, importID string) error {
	key := strings.TrimSpace(rec.Key)
	if key == "" {
		return domain.ErrInvalidKey
	}
	subtasks, err := json.Marshal(nonNilStrings(rec.SubtaskKeys))
	if err != nil {
		return fmt.Errorf("encode subtask_keys_json: %w", err)
	}
	historyLoaded := 0
	if rec.History != nil {
		historyLoaded = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO items(key, type, summary, created_at, status, status_id, priority, parent_key, subtask_keys_json, history_loaded, import_id, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			type = excluded.type,
			summary = excluded.summary,
			created_at = excluded.created_at,
			status = excluded.status,
			status_id = excluded.status_id,
			priority = excluded.priority,
			parent_key = excluded.parent_key,
			subtask_keys_json = excluded.subtask_keys_json,
			history_loaded = excluded.history_loaded,
			import_id = excluded.import_id,
			updated_at = excluded.updated_at
	`, key, rec.Type, rec.Summary, ts(rec.CreatedAt), rec.Status, nullableInt(rec.StatusID), rec.Priority,
		rec.ParentKey, string(subtasks), historyLoaded, strings.TrimSpace(importID), ts(time.Now())); err != nil {
		return fmt.Errorf("upsert item %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_history WHERE item_key = ?`, key); err != nil {
		return err
	}
	for batchSeq, batch := range rec.History {
		for changeSeq, change := range batch.Changes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO item_history(item_key, batch_seq, change_seq, at, field, old_value, new_value, old_id, new_id)
				VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, key, batchSeq, changeSeq, ts(batch.Time), change.Field, nullableString(change.OldValue), change.NewValue,
				nullableInt(change.OldID), nullableInt(change.NewID)); err != nil {
				return fmt.Errorf("insert history for %q: %w", key, err)
			}
		}
	}
	return tx.Commit()
}

// GetItemRecord loads one item record by key.
func (r *Repository) GetItemRecord(ctx context.Context, key string) (domain.ItemRecord, error) {
	row := r.db.QueryRowContext(ctx, itemSelect+` WHERE key = ?`, strings.TrimSpace(key))
	rec, loaded, err := scanItem(row)
	if err != nil {
		return domain.ItemRecord{}, err
	}
	history, err := r.loadHistory(ctx, `WHERE item_key = ?`, rec.Key)
	if err != nil {
		return domain.ItemRecord{}, err
	}
	if loaded {
		rec.History = nonNilHistory(history[rec.Key])
	}
	return rec, nil
}

// ListItemRecords loads every item record in natural key order.
func (r *Repository) ListItemRecords(ctx context.Context) ([]domain.ItemRecord, error) {
	rows, err := r.db.QueryContext(ctx, itemSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ItemRecord{}
	loadedKeys := map[string]bool{}
	for rows.Next() {
		rec, loaded, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		loadedKeys[rec.Key] = loaded
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history, err := r.loadHistory(ctx, "")
	if err != nil {
		return nil, err
	}
	for idx := range out {
		if loadedKeys[out[idx].Key] {
			out[idx].History = nonNilHistory(history[out[idx].Key])
		}
	}
	slices.SortFunc(out, func(a, b domain.ItemRecord) int {
		return domain.CompareKeys(a.Key, b.Key)
	})
	return out, nil
}

// itemSelect lists the item columns in scanItem order.
const itemSelect = `SELECT key, type, summary, created_at, status, status_id, priority, parent_key, subtask_keys_json, history_loaded FROM items`

// loadHistory groups history rows by item key, keeping batch and change order.
func (r *Repository) loadHistory(ctx context.Context, where string, args ...any) (map[string][]domain.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_key, batch_seq, at, field, old_value, new_value, old_id, new_id
		FROM item_history `+where+`
		ORDER BY item_key, batch_seq, change_seq
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]domain.HistoryRecord{}
	lastSeq := map[string]int{}
	for rows.Next() {
		var (
			key      string
			batchSeq int
			atRaw    string
			change   domain.FieldChange
			oldValue sql.NullString
			oldID    sql.NullInt64
			newID    sql.NullInt64
		)
		if err := rows.Scan(&key, &batchSeq, &atRaw, &change.Field, &oldValue, &change.NewValue, &oldID, &newID); err != nil {
			return nil, err
		}
		change.OldValue = parseNullString(oldValue)
		change.OldID = parseNullInt(oldID)
		change.NewID = parseNullInt(newID)

		batches := out[key]
		if seq, ok := lastSeq[key]; !ok || seq != batchSeq {
			batches = append(batches, domain.HistoryRecord{Time: parseTS(atRaw)})
			lastSeq[key] = batchSeq
		}
		last := &batches[len(batches)-1]
		last.Changes = append(last.Changes, change)
		out[key] = batches
	}
	return out, rows.Err()
}

// UpsertStatus inserts or replaces one status.
func (r *Repository) UpsertStatus(ctx context.Context, status domain.Status) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO statuses(id, name, category_name, category_id) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category_name = excluded.category_name,
			category_id = excluded.category_id
	`, status.ID, strings.TrimSpace(status.Name), strings.TrimSpace(status.CategoryName), status.CategoryID)
	return err
}

// ListStatuses lists statuses ordered by id.
func (r *Repository) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, category_name, category_id FROM statuses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Status{}
	for rows.Next() {
		var status domain.Status
		if err := rows.Scan(&status.ID, &status.Name, &status.CategoryName, &status.CategoryID); err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, rows.Err()
}

// UpsertBoard replaces a board and all of its columns.
func (r *Repository) UpsertBoard(ctx context.Context, board domain.Board) error {
	backlog, err := json.Marshal(nonNilInts(board.BacklogStatusIDs))
	if err != nil {
		return fmt.Errorf("encode backlog_status_ids_json: %w", err)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO boards(id, name, backlog_status_ids_json) VALUES(?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			backlog_status_ids_json = excluded.backlog_status_ids_json
	`, board.ID, board.Name, string(backlog)); err != nil {
		return fmt.Errorf("upsert board %d: %w", board.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM board_columns WHERE board_id = ?`, board.ID); err != nil {
		return err
	}
	for ordinal, column := range board.Columns {
		statusIDs, err := json.Marshal(nonNilInts(column.StatusIDs))
		if err != nil {
			return fmt.Errorf("encode status_ids_json: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_columns(board_id, ordinal, name, position, status_ids_json) VALUES(?, ?, ?, ?, ?)
		`, board.ID, ordinal, column.Name, column.Position, string(statusIDs)); err != nil {
			return fmt.Errorf("insert column %q: %w", column.Name, err)
		}
	}
	return tx.Commit()
}

// ListBoards lists boards ordered by id, each with its columns in display order.
func (r *Repository) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, backlog_status_ids_json FROM boards ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := []domain.Board{}
	for rows.Next() {
		var (
			board      domain.Board
			backlogRaw string
		)
		if err := rows.Scan(&board.ID, &board.Name, &backlogRaw); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(backlogRaw), &board.BacklogStatusIDs); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode backlog_status_ids_json: %w", err)
		}
		out = append(out, board)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for idx := range out {
		columns, err := r.listColumns(ctx, out[idx].ID)
		if err != nil {
			return nil, err
		}
		out[idx].Columns = columns
	}
	return out, nil
}

func (r *Repository) listColumns(ctx context.Context, boardID int) ([]domain.BoardColumn, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, position, status_ids_json FROM board_columns
		WHERE board_id = ? ORDER BY position, ordinal
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.BoardColumn{}
	for rows.Next() {
		var (
			column    domain.BoardColumn
			statusRaw string
		)
		if err := rows.Scan(&column.Name, &column.Position, &statusRaw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(statusRaw), &column.StatusIDs); err != nil {
			return nil, fmt.Errorf("decode status_ids_json: %w", err)
		}
		out = append(out, column)
	}
	return out, rows.Err()
}

// CreateImportBatch records one import batch.
func (r *Repository) CreateImportBatch(ctx context.Context, batch domain.ImportBatch) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_batches(id, source, item_count, imported_at) VALUES(?, ?, ?, ?)
	`, batch.ID, batch.Source, batch.ItemCount, ts(batch.ImportedAt))
	return err
}

// ListImportBatches lists import batches oldest first.
func (r *Repository) ListImportBatches(ctx context.Context) ([]domain.ImportBatch, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, source, item_count, imported_at FROM import_batches ORDER BY imported_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.ImportBatch{}
	for rows.Next() {
		var (
			batch       domain.ImportBatch
			importedRaw string
		)
		if err := rows.Scan(&batch.ID, &batch.Source, &batch.ItemCount, &importedRaw); err != nil {
			return nil, err
		}
		batch.ImportedAt = parseTS(importedRaw)
		out = append(out, batch)
	}
	return out, rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanItem reads one items row; loaded reports whether its history was ever retrieved.
func scanItem(s scanner) (domain.ItemRecord, bool, error) {
	var (
		rec         domain.ItemRecord
		createdRaw  string
		statusID    sql.NullInt64
		subtasksRaw string
		loaded      int
	)
	if err := s.Scan(&rec.Key, &rec.Type, &rec.Summary, &createdRaw, &rec.Status, &statusID, &rec.Priority,
		&rec.ParentKey, &subtasksRaw, &loaded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ItemRecord{}, false, app.ErrNotFound
		}
		return domain.ItemRecord{}, false, err
	}
	rec.CreatedAt = parseTS(createdRaw)
	rec.StatusID = parseNullInt(statusID)
	if strings.TrimSpace(subtasksRaw) == "" {
		subtasksRaw = "[]"
	}
	if err := json.Unmarshal([]byte(subtasksRaw), &rec.SubtaskKeys); err != nil {
		return domain.ItemRecord{}, false, fmt.Errorf("decode subtask_keys_json: %w", err)
	}
	if len(rec.SubtaskKeys) == 0 {
		rec.SubtaskKeys = nil
	}
	return rec, loaded != 0, nil
}

func nonNilHistory(in []domain.HistoryRecord) []domain.HistoryRecord {
	if in == nil {
		return []domain.HistoryRecord{}
	}
	return in
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilInts(in []int) []int {
	if in == nil {
		return []int{}
	}
	return in
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func parseNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
