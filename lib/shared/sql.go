package shared

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SQLDialect selects placeholder and upsert syntax.
type SQLDialect int

const (
	// DialectSQLite uses ? placeholders and ON CONFLICT upserts.
	DialectSQLite SQLDialect = iota
	// DialectPostgreSQL uses $n placeholders and ON CONFLICT upserts.
	DialectPostgreSQL
	// DialectMySQL uses ? placeholders and ON DUPLICATE KEY upserts.
	DialectMySQL
)

// ParseDialect maps a driver name to its dialect.
func ParseDialect(driver string) (SQLDialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "pgx":
		return DialectPostgreSQL, nil
	case "mysql":
		return DialectMySQL, nil
	default:
		return 0, fmt.Errorf("shared: unsupported sql driver %q", driver)
	}
}

// SQLStore keeps shared values in a single table:
//
//	CREATE TABLE forgewire_shared (
//	    k VARCHAR(255) PRIMARY KEY,
//	    v TEXT NOT NULL
//	);
type SQLStore struct {
	db      *sql.DB
	table   string
	dialect SQLDialect
}

var (
	_ Store   = (*SQLStore)(nil)
	_ Swapper = (*SQLStore)(nil)
)

// SQLOption configures an SQLStore.
type SQLOption func(*SQLStore)

// WithSQLTable sets the table name. Default: "forgewire_shared".
func WithSQLTable(name string) SQLOption {
	return func(s *SQLStore) {
		s.table = name
	}
}

// WithSQLDialect sets the SQL dialect. Default: DialectSQLite.
func WithSQLDialect(d SQLDialect) SQLOption {
	return func(s *SQLStore) {
		s.dialect = d
	}
}

// NewSQLStore creates a store over db. Call EnsureSchema once before use if
// the table is not managed by migrations.
func NewSQLStore(db *sql.DB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{db: db, table: "forgewire_shared"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (k VARCHAR(255) PRIMARY KEY, v TEXT NOT NULL)`, s.table)
	_, err := s.db.ExecContext(ctx, q)
	return err
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	q := s.rebind(fmt.Sprintf(`SELECT v FROM %s WHERE k = ?`, s.table))
	var v string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(v), true, nil
}

// Set implements Store.
func (s *SQLStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	var q string
	switch s.dialect {
	case DialectMySQL:
		q = fmt.Sprintf(`INSERT INTO %s (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`, s.table)
	default:
		q = fmt.Sprintf(`INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v`, s.table)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(q), key, string(value))
	return err
}

// CompareAndSwap implements Swapper using a conditional UPDATE, or an
// INSERT that ignores duplicates when prev is nil.
func (s *SQLStore) CompareAndSwap(ctx context.Context, key string, prev, next json.RawMessage) (bool, error) {
	var res sql.Result
	var err error
	if prev == nil {
		var q string
		switch s.dialect {
		case DialectMySQL:
			q = fmt.Sprintf(`INSERT IGNORE INTO %s (k, v) VALUES (?, ?)`, s.table)
		default:
			q = fmt.Sprintf(`INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT (k) DO NOTHING`, s.table)
		}
		res, err = s.db.ExecContext(ctx, s.rebind(q), key, string(next))
	} else {
		q := fmt.Sprintf(`UPDATE %s SET v = ? WHERE k = ? AND v = ?`, s.table)
		res, err = s.db.ExecContext(ctx, s.rebind(q), string(next), key, string(prev))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != DialectPostgreSQL {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
