package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/go-vecdb/vecdb/internal/encoding"
)

// DiskBackend is the disk-resident storage variant: records are persisted
// to a pure-Go SQLite database (WAL mode) as
// (vector BLOB, metadata BLOB, created_at) rows. Cursors encode a position
// within the on-disk rowid ordering.
type DiskBackend struct {
	db         *sql.DB
	dimensions int
}

// DiskConfig configures a DiskBackend.
type DiskConfig struct {
	Path string // file path of the SQLite database file; its parent directory is created if absent
}

// NewDiskBackend opens (creating if absent) a SQLite-backed storage file
// at cfg.Path, tuned the way the teacher's store_init.go tunes its pool:
// WAL journal mode, NORMAL synchronous, a 5s busy timeout, and a bounded
// connection pool.
func NewDiskBackend(cfg DiskConfig) (*DiskBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("disk backend requires a non-empty path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS vectors (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		vector BLOB NOT NULL,
		metadata BLOB,
		dimensions INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_id ON vectors(id);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	backend := &DiskBackend{db: db}
	if err := backend.recoverDimensions(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

func (d *DiskBackend) recoverDimensions() error {
	row := d.db.QueryRow(`SELECT dimensions FROM vectors ORDER BY rowid ASC LIMIT 1`)
	var dims int
	if err := row.Scan(&dims); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("recover dimensions: %w", err)
	}
	d.dimensions = dims
	return nil
}

func (d *DiskBackend) Store(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	vecBytes, err := encoding.EncodeVector(vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	metaBytes, err := encoding.EncodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO vectors (id, vector, metadata, dimensions)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET vector = excluded.vector, metadata = excluded.metadata, dimensions = excluded.dimensions
	`, id, vecBytes, metaBytes, len(vector))
	if err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	if d.dimensions == 0 && len(vector) > 0 {
		d.dimensions = len(vector)
	}
	return nil
}

func (d *DiskBackend) Retrieve(ctx context.Context, id string) (Record, bool, error) {
	row := d.db.QueryRowContext(ctx, `SELECT vector, metadata FROM vectors WHERE id = ?`, id)
	var vecBytes, metaBytes []byte
	if err := row.Scan(&vecBytes, &metaBytes); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("retrieve record: %w", err)
	}
	vector, err := encoding.DecodeVector(vecBytes)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode vector: %w", err)
	}
	metadata, err := encoding.DecodeMetadata(metaBytes)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode metadata: %w", err)
	}
	return Record{ID: id, Vector: vector, Metadata: metadata}, true, nil
}

func (d *DiskBackend) Delete(ctx context.Context, ids []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM vectors WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (d *DiskBackend) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	metaBytes, err := encoding.EncodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	result, err := d.db.ExecContext(ctx, `UPDATE vectors SET metadata = ? WHERE id = ?`, metaBytes, id)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update metadata rows affected: %w", err)
	}
	if affected == 0 {
		return errRecordNotFound(id)
	}
	return nil
}

func (d *DiskBackend) ListIDs(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT id FROM vectors ORDER BY rowid ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DiskBackend) ListIDsPaged(ctx context.Context, pageSize int, cursor string) (Page, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		return Page{}, fmt.Errorf("page_size must be in (0, %d]", MaxPageSize)
	}
	offset := 0
	if cursor != "" {
		var err error
		offset, err = parseCursor(cursor)
		if err != nil {
			return Page{}, err
		}
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id FROM vectors ORDER BY rowid ASC LIMIT ? OFFSET ?
	`, pageSize+1, offset)
	if err != nil {
		return Page{}, fmt.Errorf("list ids paged: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Page{}, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	hasMore := len(ids) > pageSize
	if hasMore {
		ids = ids[:pageSize]
	}
	page := Page{IDs: ids, HasMore: hasMore}
	if hasMore {
		page.NextCursor = formatCursor(offset + pageSize)
	}
	return page, nil
}

func (d *DiskBackend) StreamIDs(ctx context.Context) (<-chan string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM vectors ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("stream ids: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return
			}
			select {
			case out <- id:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (d *DiskBackend) Stats(ctx context.Context) (Stats, error) {
	row := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`)
	var count int
	if err := row.Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return Stats{Type: "disk", VectorCount: count, Dimensions: d.dimensions}, nil
}

func (d *DiskBackend) Close() error {
	return d.db.Close()
}
