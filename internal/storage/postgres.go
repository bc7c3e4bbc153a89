/**
 * PostgreSQL store
 *
 * Records live in a JSONB column keyed by the source path. Conditional writes
 * use INSERT ... ON CONFLICT so the existence check and the write are a single
 * statement.
 */

package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/lib/pq"

	apperrors "github.com/minoad/docuparse/internal/errors"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresWriter stores records in a PostgreSQL table
type PostgresWriter struct {
	db    *sql.DB
	table string
}

// NewPostgresWriter connects to databaseURL and creates table if it is missing
func NewPostgresWriter(ctx context.Context, databaseURL string, table string) (*PostgresWriter, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	w, err := newPostgresWriter(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := w.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func newPostgresWriter(db *sql.DB, table string) (*PostgresWriter, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresWriter{db: db, table: pq.QuoteIdentifier(table)}, nil
}

func (p *PostgresWriter) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			record JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table)

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.table, err)
	}
	return nil
}

func (p *PostgresWriter) Name() string { return "postgres" }

func (p *PostgresWriter) Exists(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, p.table)

	var exists bool
	if err := p.db.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return false, apperrors.NewStorageFailedError(key, p.Name(), err)
	}
	return exists, nil
}

func (p *PostgresWriter) WriteData(ctx context.Context, payload Payload, force bool) (bool, error) {
	key, doc, err := singleEntry(payload)
	if err != nil {
		return false, err
	}

	data, err := marshalForPostgres(withID(key, doc))
	if err != nil {
		return false, fmt.Errorf("failed to marshal record: %w", err)
	}

	conflict := "DO NOTHING"
	if force {
		conflict = "DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()"
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, record)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (id) %s`, p.table, conflict)

	result, err := p.db.ExecContext(ctx, query, key, string(data))
	if err != nil {
		return false, apperrors.NewStorageFailedError(key, p.Name(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewStorageFailedError(key, p.Name(), err)
	}
	return rows > 0, nil
}

func (p *PostgresWriter) Read(ctx context.Context, key string) (Document, bool, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE id = $1`, p.table)

	var raw []byte
	err := p.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewStorageFailedError(key, p.Name(), err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return doc, true, nil
}

func (p *PostgresWriter) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&n); err != nil {
		return 0, apperrors.NewStorageFailedError("", p.Name(), err)
	}
	return n, nil
}

// Stats returns connection pool statistics
func (p *PostgresWriter) Stats() sql.DBStats {
	return p.db.Stats()
}

func (p *PostgresWriter) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// marshalForPostgres encodes doc with control characters removed from every
// string. JSONB rejects NUL and OCR output can carry it.
func marshalForPostgres(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(sanitizeValue(generic))
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return sanitizeString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[sanitizeString(k)] = sanitizeValue(item)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = sanitizeValue(item)
		}
		return val
	default:
		return v
	}
}

// sanitizeString drops NUL and turns other control characters, apart from
// tab, newline and carriage return, into spaces
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0:
			return -1
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case unicode.IsControl(r):
			return ' '
		default:
			return r
		}
	}, s)
}
