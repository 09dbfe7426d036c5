// Package pgvector stores memories in PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/affect-memory/memory"
)

// DefaultTable is the table used when Options.Table is empty.
const DefaultTable = "affect_memories"

// Options configures a Store.
type Options struct {
	DSN        string
	Table      string
	Dimensions int
}

// Store is a memory.Store backed by a PostgreSQL table with a vector column.
type Store struct {
	db    *sql.DB
	table string
	dims  int
}

var _ memory.Store = (*Store)(nil)

// New connects and prepares the table. Connection or migration failures
// produce an unavailable store rather than an error.
func New(ctx context.Context, opts Options) *Store {
	s := &Store{table: opts.Table, dims: opts.Dimensions}
	if s.table == "" {
		s.table = DefaultTable
	}
	if opts.Dimensions <= 0 {
		log.Warn().Int("dims", opts.Dimensions).Msg("pgvector: invalid dimension, store disabled")
		return s
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		log.Warn().Err(err).Msg("pgvector: cannot open database, store disabled")
		return s
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Warn().Err(err).Msg("pgvector: cannot reach database, store disabled")
		db.Close()
		return s
	}
	if err := s.migrate(ctx, db); err != nil {
		log.Warn().Err(err).Msg("pgvector: migration failed, store disabled")
		db.Close()
		return s
	}
	s.db = db
	return s
}

// migrate creates the table, dropping it first if its vector column was
// declared with another dimension.
func (s *Store) migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}

	var typmod sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT a.atttypmod FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = $1 AND a.attname = 'vector' AND NOT a.attisdropped`, s.table).Scan(&typmod)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("inspect table: %w", err)
	case !typmod.Valid || int(typmod.Int64) != s.dims:
		log.Warn().Str("table", s.table).Int64("dims", typmod.Int64).Int("want", s.dims).
			Msg("pgvector: schema mismatch, rebuilding table from empty")
		if _, err := db.ExecContext(ctx, `DROP TABLE `+pq.QuoteIdentifier(s.table)); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}

	t := pq.QuoteIdentifier(s.table)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			vector vector(%d) NOT NULL,
			emotion_vector TEXT NOT NULL DEFAULT '',
			timestamp DOUBLE PRECISION NOT NULL,
			importance REAL NOT NULL,
			kind TEXT NOT NULL,
			emotions TEXT NOT NULL DEFAULT '',
			access_count BIGINT NOT NULL DEFAULT 0
		)`, t, s.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (kind, timestamp DESC)`,
			pq.QuoteIdentifier(s.table+"_kind_ts"), t),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Available reports whether the database is reachable and migrated.
func (s *Store) Available() bool { return s.db != nil }

// Dimensions returns the vector size of the store.
func (s *Store) Dimensions() int { return s.dims }

// Put inserts a record. A duplicate id replaces the earlier row.
func (s *Store) Put(ctx context.Context, rec *memory.Record) error {
	if !s.Available() {
		log.Warn().Msg("pgvector: store unavailable, put skipped")
		return memory.ErrUnavailable
	}
	if err := memory.CheckVector(rec.Vector, s.dims); err != nil {
		return err
	}
	if rec.Text == "" {
		return memory.ErrEmptyText
	}

	emotionVector, err := encodeJSON(rec.EmotionVector, len(rec.EmotionVector) > 0)
	if err != nil {
		return err
	}
	emotions, err := encodeJSON(rec.Emotions, len(rec.Emotions) > 0)
	if err != nil {
		return err
	}
	kind := rec.Kind
	if kind == "" {
		kind = memory.KindRaw
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, text, vector, emotion_vector, timestamp, importance, kind, emotions, access_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			vector = EXCLUDED.vector,
			emotion_vector = EXCLUDED.emotion_vector,
			timestamp = EXCLUDED.timestamp,
			importance = EXCLUDED.importance,
			kind = EXCLUDED.kind,
			emotions = EXCLUDED.emotions,
			access_count = EXCLUDED.access_count`, pq.QuoteIdentifier(s.table))
	_, err = s.db.ExecContext(ctx, stmt,
		rec.ID,
		rec.Text,
		pgvector.NewVector(rec.Vector),
		emotionVector,
		rec.Timestamp,
		rec.Importance,
		string(kind),
		emotions,
		rec.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

const columns = `id, text, vector, emotion_vector, timestamp, importance, kind, emotions, access_count`

// Search returns up to limit records ordered by cosine distance.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]memory.Record, error) {
	if !s.Available() {
		log.Warn().Msg("pgvector: store unavailable, search returns nothing")
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(vector), s.dims)
	}
	if !memory.Usable(vector) {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY vector <=> $1 LIMIT $2`, columns, pq.QuoteIdentifier(s.table))
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	return scanRows(rows)
}

// Delete removes the given ids. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if !s.Available() {
		log.Warn().Msg("pgvector: store unavailable, delete skipped")
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, stmt, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete memories: %w", err)
	}
	return nil
}

// UpdateAccessCount sets the access count of one row in place.
func (s *Store) UpdateAccessCount(ctx context.Context, id string, count int64) error {
	if !s.Available() {
		return nil
	}
	if count < 0 {
		count = 0
	}
	stmt := fmt.Sprintf(`UPDATE %s SET access_count = $2 WHERE id = $1`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, stmt, id, count); err != nil {
		return fmt.Errorf("update access count: %w", err)
	}
	return nil
}

// Scan returns the newest limit records of kind ("" for all).
func (s *Store) Scan(ctx context.Context, limit int, kind memory.Kind) ([]memory.Record, error) {
	if !s.Available() {
		log.Warn().Msg("pgvector: store unavailable, scan returns nothing")
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}

	where, args := []string{"1 = 1"}, []any{}
	if kind != "" {
		args = append(args, string(kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY timestamp DESC, id ASC LIMIT $%d`,
		columns, pq.QuoteIdentifier(s.table), strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan memories: %w", err)
	}
	return scanRows(rows)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if !s.Available() {
		return 0, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+pq.QuoteIdentifier(s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRows(rows *sql.Rows) ([]memory.Record, error) {
	defer rows.Close()

	var records []memory.Record
	for rows.Next() {
		var (
			rec           memory.Record
			vector        pgvector.Vector
			emotionVector string
			kind          string
			emotions      string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Text,
			&vector,
			&emotionVector,
			&rec.Timestamp,
			&rec.Importance,
			&kind,
			&emotions,
			&rec.AccessCount,
		); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		rec.Vector = vector.Slice()
		rec.Kind = memory.ParseKind(kind)
		if emotionVector != "" && json.Unmarshal([]byte(emotionVector), &rec.EmotionVector) != nil {
			rec.EmotionVector = nil
		}
		if emotions != "" && json.Unmarshal([]byte(emotions), &rec.Emotions) != nil {
			rec.Emotions = nil
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func encodeJSON(v any, present bool) (string, error) {
	if !present {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}
