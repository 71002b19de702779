package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

const localSchema = `
CREATE TABLE IF NOT EXISTS records (
	local_id TEXT PRIMARY KEY,
	remote_id TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	plan_data TEXT,
	creative_assets TEXT,
	task_id TEXT NOT NULL DEFAULT '',
	media_status TEXT NOT NULL DEFAULT '',
	saved_at TEXT NOT NULL,
	last_accessed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_saved ON records(saved_at);

CREATE TABLE IF NOT EXISTS pending_writes (
	local_id TEXT PRIMARY KEY,
	op TEXT NOT NULL,
	payload TEXT,
	remote_id TEXT NOT NULL DEFAULT '',
	revision INTEGER NOT NULL DEFAULT 1,
	enqueued_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_enqueued ON pending_writes(enqueued_at);
`

// LocalStore is the client's durable SQLite store. Every mutation runs in
// a single transaction so a record is either fully written or absent.
type LocalStore struct {
	db *sql.DB
}

// OpenLocal opens (creating if needed) the SQLite database at path.
func OpenLocal(ctx context.Context, path string) (*LocalStore, error) {
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve local db path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("ensure local db dir: %w", err)
		}
		path = abs
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewStorageError("open local db", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, localSchema); err != nil {
		db.Close()
		return nil, errors.NewStorageError("create local schema", err)
	}
	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a record. An empty RemoteID never clears a
// remote id that is already known.
func (s *LocalStore) Put(ctx context.Context, r Record) error {
	if err := putRecord(ctx, s.db, r); err != nil {
		return errors.NewStorageError("save local record", err)
	}
	return nil
}

// SaveWithPending writes r and its pending save w in one transaction, so a
// record is never visible without the entry that syncs it. It returns the
// revision of the pending entry.
func (s *LocalStore) SaveWithPending(ctx context.Context, r Record, w PendingWrite) (int64, error) {
	var revision int64
	err := s.tx(ctx, "save local record", func(tx *sql.Tx) error {
		if err := putRecord(ctx, tx, r); err != nil {
			return err
		}
		if err := insertPending(ctx, tx, w); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT revision FROM pending_writes WHERE local_id = ?`, w.RecordLocalID).Scan(&revision)
	})
	return revision, err
}

// Get returns the record with localID.
func (s *LocalStore) Get(ctx context.Context, localID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE local_id = ?`, localID)
	r, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Record{}, errors.NewNotFoundError("record", localID)
	}
	return r, err
}

// Touch sets the record's last access time.
func (s *LocalStore) Touch(ctx context.Context, localID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE records SET last_accessed_at = ? WHERE local_id = ?`, formatTime(at), localID); err != nil {
		return errors.NewStorageError("touch local record", err)
	}
	return nil
}

// Records returns all records, newest save first.
func (s *LocalStore) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY saved_at DESC, local_id DESC`)
	if err != nil {
		return nil, errors.NewStorageError("list local records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkSynced stamps the record with its remote id and removes its pending
// save. A revision below zero removes whatever save is pending; otherwise
// the entry is only removed if it was not re-enqueued since it was read.
func (s *LocalStore) MarkSynced(ctx context.Context, localID, remoteID string, revision int64) error {
	return s.tx(ctx, "mark record synced", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE records SET remote_id = ? WHERE local_id = ?`, remoteID, localID); err != nil {
			return err
		}
		q := `DELETE FROM pending_writes WHERE local_id = ? AND op = ?`
		args := []any{localID, OpSave}
		if revision >= 0 {
			q += ` AND revision = ?`
			args = append(args, revision)
		}
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	})
}

// Delete removes the record and any pending write for it. When tombstone
// is non-nil it is enqueued in the same transaction.
func (s *LocalStore) Delete(ctx context.Context, localID string, tombstone *PendingWrite) error {
	return s.tx(ctx, "delete local record", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE local_id = ?`, localID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NewNotFoundError("record", localID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_writes WHERE local_id = ?`, localID); err != nil {
			return err
		}
		if tombstone == nil {
			return nil
		}
		return insertPending(ctx, tx, *tombstone)
	})
}

// Enqueue adds or replaces the pending write for w.RecordLocalID. A
// replaced entry keeps its original enqueue time and bumps its revision.
// Past capacity the oldest entries are dropped; the number dropped is
// returned.
func (s *LocalStore) Enqueue(ctx context.Context, w PendingWrite, capacity int) (int, error) {
	var evicted int
	err := s.tx(ctx, "enqueue pending write", func(tx *sql.Tx) error {
		if err := insertPending(ctx, tx, w); err != nil {
			return err
		}
		n, err := trimPending(ctx, tx, capacity)
		evicted = n
		return err
	})
	return evicted, err
}

// Trim drops the oldest pending writes beyond capacity and returns how
// many were dropped.
func (s *LocalStore) Trim(ctx context.Context, capacity int) (int, error) {
	var evicted int
	err := s.tx(ctx, "trim pending writes", func(tx *sql.Tx) error {
		n, err := trimPending(ctx, tx, capacity)
		evicted = n
		return err
	})
	return evicted, err
}

// Pending returns the queue in FIFO order.
func (s *LocalStore) Pending(ctx context.Context) ([]PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT local_id, op, payload, remote_id, revision, enqueued_at
FROM pending_writes ORDER BY enqueued_at ASC, local_id ASC`)
	if err != nil {
		return nil, errors.NewStorageError("list pending writes", err)
	}
	defer rows.Close()

	var out []PendingWrite
	for rows.Next() {
		var (
			w        PendingWrite
			payload  sql.NullString
			enqueued string
		)
		if err := rows.Scan(&w.RecordLocalID, &w.Op, &payload, &w.RemoteID, &w.Revision, &enqueued); err != nil {
			return nil, errors.NewStorageError("scan pending write", err)
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &w.Request); err != nil {
				return nil, errors.NewStorageError("decode pending payload", err)
			}
		}
		w.EnqueuedAt, _ = time.Parse(timeLayout, enqueued)
		out = append(out, w)
	}
	return out, rows.Err()
}

// RemovePending drops the entry for localID if its revision still matches.
func (s *LocalStore) RemovePending(ctx context.Context, localID string, revision int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_writes WHERE local_id = ? AND revision = ?`, localID, revision); err != nil {
		return errors.NewStorageError("remove pending write", err)
	}
	return nil
}

// PendingCount returns the queue length.
func (s *LocalStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_writes`).Scan(&n); err != nil {
		return 0, errors.NewStorageError("count pending writes", err)
	}
	return n, nil
}

// HasPendingSave reports whether localID has an unsynced save.
func (s *LocalStore) HasPendingSave(ctx context.Context, localID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_writes WHERE local_id = ? AND op = ?`, localID, OpSave).Scan(&n)
	if err != nil {
		return false, errors.NewStorageError("check pending write", err)
	}
	return n > 0, nil
}

// Evict applies retention: records saved before cutoff go first, then the
// oldest records beyond maxRecords. Pending saves of evicted records are
// dropped with them.
func (s *LocalStore) Evict(ctx context.Context, maxRecords int, cutoff time.Time) (byAge, byCount int, err error) {
	err = s.tx(ctx, "apply retention", func(tx *sql.Tx) error {
		var aged []string
		if !cutoff.IsZero() {
			if aged, err = queryStrings(ctx, tx, `SELECT local_id FROM records WHERE saved_at < ?`, formatTime(cutoff)); err != nil {
				return err
			}
		}
		if err := deleteRecords(ctx, tx, aged); err != nil {
			return err
		}
		byAge = len(aged)

		if maxRecords <= 0 {
			return nil
		}
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
			return err
		}
		if count <= maxRecords {
			return nil
		}
		excess, err := queryStrings(ctx, tx, `SELECT local_id FROM records ORDER BY saved_at ASC, local_id ASC LIMIT ?`, count-maxRecords)
		if err != nil {
			return err
		}
		if err := deleteRecords(ctx, tx, excess); err != nil {
			return err
		}
		byCount = len(excess)
		return nil
	})
	return byAge, byCount, err
}

func (s *LocalStore) tx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewStorageError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStorageError(op, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putRecord(ctx context.Context, db execer, r Record) error {
	assets, err := marshalAssets(r.CreativeAssets)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO records (local_id, remote_id, destination, summary, plan_data, creative_assets, task_id, media_status, saved_at, last_accessed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(local_id) DO UPDATE SET
	remote_id = CASE WHEN excluded.remote_id = '' THEN records.remote_id ELSE excluded.remote_id END,
	destination = excluded.destination,
	summary = excluded.summary,
	plan_data = excluded.plan_data,
	creative_assets = excluded.creative_assets,
	task_id = excluded.task_id,
	media_status = excluded.media_status,
	saved_at = excluded.saved_at,
	last_accessed_at = excluded.last_accessed_at`,
		r.LocalID, r.RemoteID, r.Destination, r.Summary, nullJSON(r.PlanData), assets,
		r.TaskID, string(r.MediaStatus), formatTime(r.SavedAt), formatTime(r.LastAccessedAt))
	return err
}

func trimPending(ctx context.Context, tx *sql.Tx, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, nil
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_writes`).Scan(&count); err != nil {
		return 0, err
	}
	if count <= capacity {
		return 0, nil
	}
	ids, err := queryStrings(ctx, tx, `SELECT local_id FROM pending_writes ORDER BY enqueued_at ASC, local_id ASC LIMIT ?`, count-capacity)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_writes WHERE local_id = ?`, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func insertPending(ctx context.Context, tx *sql.Tx, w PendingWrite) error {
	var payload any
	if w.Op == OpSave {
		b, err := json.Marshal(w.Request)
		if err != nil {
			return err
		}
		payload = string(b)
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO pending_writes (local_id, op, payload, remote_id, revision, enqueued_at)
VALUES (?, ?, ?, ?, 1, ?)
ON CONFLICT(local_id) DO UPDATE SET
	op = excluded.op,
	payload = excluded.payload,
	remote_id = excluded.remote_id,
	revision = pending_writes.revision + 1`,
		w.RecordLocalID, w.Op, payload, w.RemoteID, formatTime(w.EnqueuedAt))
	return err
}

func deleteRecords(ctx context.Context, tx *sql.Tx, ids []string) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE local_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_writes WHERE local_id = ? AND op = ?`, id, OpSave); err != nil {
			return err
		}
	}
	return nil
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const recordColumns = `local_id, remote_id, destination, summary, plan_data, creative_assets, task_id, media_status, saved_at, last_accessed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r                   Record
		planData, assets    sql.NullString
		mediaStatus         string
		savedAt, accessedAt string
	)
	if err := row.Scan(&r.LocalID, &r.RemoteID, &r.Destination, &r.Summary, &planData, &assets,
		&r.TaskID, &mediaStatus, &savedAt, &accessedAt); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, errors.NewStorageError("scan local record", err)
	}
	if planData.Valid && planData.String != "" {
		r.PlanData = json.RawMessage(planData.String)
	}
	if assets.Valid && assets.String != "" {
		var refs types.AssetRefs
		if err := json.Unmarshal([]byte(assets.String), &refs); err != nil {
			return Record{}, errors.NewStorageError("decode creative assets", err)
		}
		r.CreativeAssets = &refs
	}
	r.MediaStatus = types.TaskStatus(mediaStatus)
	r.SavedAt, _ = time.Parse(timeLayout, savedAt)
	r.LastAccessedAt, _ = time.Parse(timeLayout, accessedAt)
	return r, nil
}

func marshalAssets(a *types.AssetRefs) (any, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode creative assets: %w", err)
	}
	return string(b), nil
}

func nullJSON(raw json.RawMessage) any {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	return string(raw)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
