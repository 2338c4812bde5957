package corrections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages correction persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the corrections database at path and
// applies migrations. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("correction database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}
	return open(path)
}

// OpenExisting connects to an already-initialized corrections database. It
// never creates the file: a missing database reports ErrStoreUnavailable.
func OpenExisting(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: database path is empty", ErrStoreUnavailable)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrStoreUnavailable, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", ErrStoreUnavailable, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrStoreUnavailable, path)
	}
	store, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return store, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Record appends a new unprocessed correction and returns its id. Any failure
// is returned; a nil error means the row is durable.
func (s *Store) Record(ctx context.Context, imageRef string, trueLabel, predictedLabel int) (int64, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(imageRef) == "" {
		return 0, errors.New("record correction: image reference is empty")
	}
	if err := ValidateLabel("true_label", trueLabel); err != nil {
		return 0, err
	}
	if err := ValidateLabel("predicted_label", predictedLabel); err != nil {
		return 0, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(
			ctx,
			`INSERT INTO corrections (image_path, true_label, predicted_label, processed, timestamp)
             VALUES (?, ?, ?, 0, ?)`,
			imageRef,
			trueLabel,
			predictedLabel,
			timestamp,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert correction: %w", err)
	}
	return id, nil
}

// Get fetches one correction by id. A missing row returns nil without error.
func (s *Store) Get(ctx context.Context, id int64) (*Correction, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+correctionColumns+` FROM corrections WHERE id = ?`, id)
	c, err := scanCorrection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get correction: %w", err)
	}
	return &c, nil
}

// List returns the corrections matching filter. Callers must not rely on the
// row order.
func (s *Store) List(ctx context.Context, filter Filter) ([]Correction, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + correctionColumns + ` FROM corrections`
	if filter == FilterUnprocessed {
		query += ` WHERE processed = 0 OR processed IS NULL`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	defer rows.Close()

	var items []Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corrections: %w", err)
	}
	return items, nil
}

// MarkProcessed sets processed=true for exactly the given ids and reports how
// many rows transitioned. Empty input is a no-op; unknown or already
// processed ids are ignored. The update runs in one transaction.
func (s *Store) MarkProcessed(ctx context.Context, ids []int64) (int64, error) {
	ctx = ensureContext(ctx)
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var marked int64
	err := retryOnBusy(ctx, func() error {
		marked = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for start := 0; start < len(ids); start += markChunkSize {
			end := min(start+markChunkSize, len(ids))
			chunk := ids[start:end]
			args := make([]any, 0, len(chunk))
			for _, id := range chunk {
				args = append(args, id)
			}
			res, err := tx.ExecContext(
				ctx,
				`UPDATE corrections SET processed = 1
                 WHERE id IN (`+makePlaceholders(len(chunk))+`) AND (processed = 0 OR processed IS NULL)`,
				args...,
			)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			marked += affected
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("mark corrections processed: %w", err)
	}
	return marked, nil
}

// Stats returns total, unprocessed, and processed counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var stats Stats
	row := s.db.QueryRowContext(ctx, `SELECT
            COUNT(1),
            COALESCE(SUM(CASE WHEN processed = 1 THEN 1 ELSE 0 END), 0)
        FROM corrections`)
	if err := row.Scan(&stats.Total, &stats.Processed); err != nil {
		return Stats{}, fmt.Errorf("correction stats: %w", err)
	}
	stats.Unprocessed = stats.Total - stats.Processed
	return stats, nil
}

// CheckHealth returns diagnostic information about the corrections database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("correction database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat correction database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("correction database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("correction database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping correction database: %w", err)
	}
	health.DatabaseReadable = true

	columns, err := tableColumns(connCtx, s.db, "corrections")
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.TableExists = len(columns) > 0
	health.ColumnsPresent = columns

	if health.TableExists {
		present := make(map[string]struct{}, len(columns))
		for _, col := range columns {
			present[col] = struct{}{}
		}
		for _, col := range strings.Split(correctionColumns, ", ") {
			if _, ok := present[col]; !ok {
				health.MissingColumns = append(health.MissingColumns, col)
			}
		}
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM corrections")
		if err := row.Scan(&health.TotalRows); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count corrections: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}
