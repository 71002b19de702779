// Package itinerary persists saved plans on the server. Saves are
// idempotent by the client's local id, so a client may retry a save or
// replay it after being offline without creating duplicates.
package itinerary

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Timestamps are stored as fixed-width UTC text so they sort correctly in
// both dialects.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS itineraries (
	remote_id TEXT PRIMARY KEY,
	local_id TEXT NOT NULL UNIQUE,
	destination TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	plan_data TEXT,
	creative_assets TEXT,
	poster_url TEXT NOT NULL DEFAULT '',
	video_url TEXT NOT NULL DEFAULT '',
	media_status TEXT NOT NULL DEFAULT '',
	media_task_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_itineraries_created ON itineraries(created_at);
CREATE INDEX IF NOT EXISTS idx_itineraries_task ON itineraries(media_task_id);
`

// Store is a SQL-backed itinerary store.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	newID  func() string
}

// Open connects to dsn with driver and ensures the schema exists. For
// sqlite, dsn is a file path whose directory is created if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			abs, err := filepath.Abs(dsn)
			if err != nil {
				return nil, fmt.Errorf("resolve itinerary db path: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return nil, fmt.Errorf("ensure itinerary db dir: %w", err)
			}
			dsn = abs
		}
	case DriverPostgres:
	default:
		return nil, errors.NewValidationError("database.driver", fmt.Sprintf("unsupported driver %q", driver))
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.NewStorageError("open itinerary db", err)
	}
	if driver == DriverSQLite {
		// One writer avoids SQLITE_BUSY under concurrent saves.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver, now: time.Now, newID: uuid.NewString}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewStorageError("create itinerary schema", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save inserts or updates the itinerary identified by req.LocalID and
// returns its remote id. An existing row keeps its remote id; a save older
// than the stored row is ignored.
func (s *Store) Save(ctx context.Context, req types.SaveItineraryRequest) (string, error) {
	if strings.TrimSpace(req.LocalID) == "" {
		return "", errors.NewValidationError("localId", "must not be empty")
	}
	if strings.TrimSpace(req.Destination) == "" {
		return "", errors.NewValidationError("destination", "must not be empty")
	}
	updated := req.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}

	var assetsJSON, posterURL, videoURL string
	status := types.TaskStatus("")
	if req.TaskID != "" {
		status = types.TaskQueued
	}
	if req.CreativeAssets != nil && !req.CreativeAssets.Empty() {
		data, err := json.Marshal(req.CreativeAssets)
		if err != nil {
			return "", fmt.Errorf("marshal creative assets: %w", err)
		}
		assetsJSON = string(data)
		posterURL, videoURL = req.CreativeAssets.PosterURL, req.CreativeAssets.VideoURL
		status = types.TaskCompleted
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.NewStorageError("begin save", err)
	}
	defer tx.Rollback()

	var remoteID, storedUpdated string
	err = tx.QueryRowContext(ctx,
		s.rebind("SELECT remote_id, updated_at FROM itineraries WHERE local_id = ?"),
		req.LocalID,
	).Scan(&remoteID, &storedUpdated)

	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		remoteID = s.newID()
		created := s.now().UTC().Format(timeLayout)
		_, err = tx.ExecContext(ctx, s.rebind(`
INSERT INTO itineraries (remote_id, local_id, destination, summary, plan_data, creative_assets,
	poster_url, video_url, media_status, media_task_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			remoteID, req.LocalID, req.Destination, req.Summary, string(req.PlanData), assetsJSON,
			posterURL, videoURL, string(status), req.TaskID, created, updated.UTC().Format(timeLayout))
		if err != nil {
			return "", errors.NewStorageError("insert itinerary", err)
		}
	case err != nil:
		return "", errors.NewStorageError("look up itinerary", err)
	default:
		if updated.UTC().Format(timeLayout) < storedUpdated {
			return remoteID, nil
		}
		_, err = tx.ExecContext(ctx, s.rebind(`
UPDATE itineraries SET destination = ?, summary = ?, plan_data = ?,
	creative_assets = CASE WHEN ? = '' THEN creative_assets ELSE ? END,
	poster_url = CASE WHEN ? = '' THEN poster_url ELSE ? END,
	video_url = CASE WHEN ? = '' THEN video_url ELSE ? END,
	media_status = CASE WHEN ? = '' THEN media_status ELSE ? END,
	media_task_id = CASE WHEN ? = '' THEN media_task_id ELSE ? END,
	updated_at = ?
WHERE remote_id = ?`),
			req.Destination, req.Summary, string(req.PlanData),
			assetsJSON, assetsJSON,
			posterURL, posterURL,
			videoURL, videoURL,
			string(status), string(status),
			req.TaskID, req.TaskID,
			updated.UTC().Format(timeLayout), remoteID)
		if err != nil {
			return "", errors.NewStorageError("update itinerary", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.NewStorageError("commit save", err)
	}
	return remoteID, nil
}

const selectColumns = `remote_id, local_id, destination, summary, plan_data, creative_assets,
	media_status, media_task_id, created_at, updated_at`

// List returns all itineraries, newest first.
func (s *Store) List(ctx context.Context) ([]types.Itinerary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM itineraries ORDER BY created_at DESC, remote_id")
	if err != nil {
		return nil, errors.NewStorageError("list itineraries", err)
	}
	defer rows.Close()

	var out []types.Itinerary
	for rows.Next() {
		it, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("list itineraries", err)
	}
	return out, nil
}

// Get returns one itinerary by remote id.
func (s *Store) Get(ctx context.Context, remoteID string) (types.Itinerary, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+selectColumns+" FROM itineraries WHERE remote_id = ?"), remoteID)
	it, err := scan(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return types.Itinerary{}, errors.NewNotFoundError("itinerary", remoteID)
	}
	return it, err
}

// Delete removes an itinerary. Unknown ids report STORE-003.
func (s *Store) Delete(ctx context.Context, remoteID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM itineraries WHERE remote_id = ?"), remoteID)
	if err != nil {
		return errors.NewStorageError("delete itinerary", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewStorageError("delete itinerary", err)
	}
	if n == 0 {
		return errors.NewNotFoundError("itinerary", remoteID)
	}
	return nil
}

// ApplyMedia records the outcome of enrichment task taskID on every
// itinerary saved with it. It returns the number of rows updated.
func (s *Store) ApplyMedia(ctx context.Context, taskID string, status types.TaskStatus, assets types.AssetRefs) (int64, error) {
	var assetsJSON string
	if !assets.Empty() {
		data, err := json.Marshal(assets)
		if err != nil {
			return 0, fmt.Errorf("marshal creative assets: %w", err)
		}
		assetsJSON = string(data)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
UPDATE itineraries SET media_status = ?,
	creative_assets = CASE WHEN ? = '' THEN creative_assets ELSE ? END,
	poster_url = CASE WHEN ? = '' THEN poster_url ELSE ? END,
	video_url = CASE WHEN ? = '' THEN video_url ELSE ? END
WHERE media_task_id = ?`),
		string(status), assetsJSON, assetsJSON,
		assets.PosterURL, assets.PosterURL,
		assets.VideoURL, assets.VideoURL,
		taskID)
	if err != nil {
		return 0, errors.NewStorageError("apply media", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (types.Itinerary, error) {
	var (
		it               types.Itinerary
		planData, assets sql.NullString
		status           string
		created, updated string
	)
	if err := row.Scan(&it.RemoteID, &it.LocalID, &it.Destination, &it.Summary, &planData, &assets,
		&status, &it.MediaTaskID, &created, &updated); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return it, err
		}
		return it, errors.NewStorageError("scan itinerary", err)
	}
	it.MediaStatus = types.TaskStatus(status)
	if planData.Valid && planData.String != "" {
		it.PlanData = json.RawMessage(planData.String)
	}
	if assets.Valid && assets.String != "" {
		var refs types.AssetRefs
		if err := json.Unmarshal([]byte(assets.String), &refs); err != nil {
			return it, fmt.Errorf("unmarshal creative assets: %w", err)
		}
		it.CreativeAssets = &refs
	}
	var err error
	if it.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return it, fmt.Errorf("parse created_at: %w", err)
	}
	if it.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return it, fmt.Errorf("parse updated_at: %w", err)
	}
	return it, nil
}
