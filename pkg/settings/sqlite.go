package settings

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/lib-x/entsqlite"

	"spindrift/pkg/metrics"
)

const (
	configTable = "config"

	sqliteDSN = "file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(DELETE)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"

	createTable = `CREATE TABLE IF NOT EXISTS config (
	user_id INTEGER,
	parameter TEXT,
	value TEXT,
	CONSTRAINT user_param PRIMARY KEY (user_id, parameter)
)`
	// Mirrors the primary key. Kept because existing databases carry it.
	createIndex = `CREATE UNIQUE INDEX IF NOT EXISTS params ON config(user_id, parameter)`
)

// SQLStore keeps user settings in a single SQLite table.
type SQLStore struct {
	drv *entsql.Driver
	db  *stdsql.DB
}

var _ Store = (*SQLStore)(nil)

// Open opens or creates the database at path and ensures the schema.
// Any failure is returned; there is no partially initialized store.
func Open(ctx context.Context, path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("settings database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}

	drv, err := entsql.Open(dialect.SQLite, fmt.Sprintf(sqliteDSN, path))
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}

	s := &SQLStore{drv: drv, db: drv.DB()}
	if err := s.migrate(ctx); err != nil {
		_ = drv.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range []string{createTable, createIndex} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure settings schema: %w", err)
		}
	}
	return nil
}

// Record upserts one parameter for userID.
func (s *SQLStore) Record(ctx context.Context, userID int64, parameter, value string) (err error) {
	defer func() { metrics.IncConfigWrite(err) }()

	if strings.TrimSpace(parameter) == "" {
		return ErrEmptyParameter
	}

	query, args := entsql.Dialect(dialect.SQLite).
		Insert(configTable).
		Columns("user_id", "parameter", "value").
		Values(userID, parameter, value).
		OnConflict(
			entsql.ConflictColumns("user_id", "parameter"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record %s for user %d: %w", parameter, userID, err)
	}
	return nil
}

// Get returns all parameters of userID.
func (s *SQLStore) Get(ctx context.Context, userID int64) (UserConfig, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("parameter", "value").
		From(entsql.Table(configTable)).
		Where(entsql.EQ("user_id", userID)).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load config for user %d: %w", userID, err)
	}
	defer rows.Close()

	cfg := make(UserConfig)
	for rows.Next() {
		var parameter, value string
		if err := rows.Scan(&parameter, &value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		cfg[parameter] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load config for user %d: %w", userID, err)
	}
	return cfg, nil
}

// Entries returns every stored row ordered by user and parameter.
func (s *SQLStore) Entries(ctx context.Context) ([]Entry, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("user_id", "parameter", "value").
		From(entsql.Table(configTable)).
		OrderBy("user_id", "parameter").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list config entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.Parameter, &e.Value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.drv.Close()
}
