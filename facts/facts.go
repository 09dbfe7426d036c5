// Package facts is the agent's ledger of durable key/value facts about the
// user, such as their name or their relationship to the agent.
//
// Facts arrive from two directions. The user states them directly, and
// consolidation infers them from clusters of memories. Inferred facts may
// fill gaps but never contradict a stored value.
package facts

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Provenance says who asserted a fact.
type Provenance string

const (
	ProvenanceUser  Provenance = "user"  // stated by the user; always wins
	ProvenanceDream Provenance = "dream" // inferred during consolidation; fills gaps only
)

// ParseProvenance maps a string to a Provenance. Anything that is not
// "dream" is treated as a user assertion.
func ParseProvenance(s string) Provenance {
	if strings.EqualFold(strings.TrimSpace(s), string(ProvenanceDream)) {
		return ProvenanceDream
	}
	return ProvenanceUser
}

// CoreKeys are returned by Relevant regardless of the query.
var CoreKeys = []string{"user_name", "user_role", "relationship", "developer"}

// Fact is one ledger entry.
type Fact struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Ledger is a concurrency-safe fact map, optionally persisted to SQLite.
// The map only changes after the corresponding row has been written, so a
// failed write leaves both untouched.
type Ledger struct {
	mu    sync.RWMutex
	facts map[string]Fact
	db    *sql.DB
	core  map[string]bool
	now   func() time.Time
}

// New returns an in-memory ledger.
func New() *Ledger {
	core := make(map[string]bool, len(CoreKeys))
	for _, k := range CoreKeys {
		core[k] = true
	}
	return &Ledger{
		facts: make(map[string]Fact),
		core:  core,
		now:   time.Now,
	}
}

// Open returns a ledger persisted at path, loading any facts already there.
// An empty path returns an in-memory ledger.
func Open(ctx context.Context, path string) (*Ledger, error) {
	l := New()
	if path == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	if err := l.load(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	l.db = db
	return l, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS facts (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		provenance TEXT NOT NULL DEFAULT 'user',
		updated_at TEXT NOT NULL
	)`)
	return err
}

func (l *Ledger) load(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT key, value, provenance, updated_at FROM facts`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var f Fact
		var prov, updated string
		if err := rows.Scan(&f.Key, &f.Value, &prov, &updated); err != nil {
			return err
		}
		f.Provenance = ParseProvenance(prov)
		f.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		l.facts[f.Key] = f
	}
	return rows.Err()
}

// Write records key=value under the given provenance and reports whether
// the ledger now holds that value.
//
// User writes always upsert. Dream writes insert when the key is absent,
// succeed without change when the stored value is equal, and are rejected
// when it differs.
func (l *Ledger) Write(ctx context.Context, key, value string, p Provenance) bool {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.facts[key]
	if p == ProvenanceDream && ok {
		if existing.Value != value {
			log.Info().Str("key", key).Str("stored", existing.Value).Str("inferred", value).
				Msg("rejected inferred fact that contradicts the ledger")
			return false
		}
		return true
	}
	if p != ProvenanceDream {
		p = ProvenanceUser
	}

	f := Fact{Key: key, Value: value, Provenance: p, UpdatedAt: l.now().UTC()}
	if l.db != nil {
		_, err := l.db.ExecContext(ctx, `
			INSERT INTO facts (key, value, provenance, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				provenance = excluded.provenance,
				updated_at = excluded.updated_at`,
			f.Key, f.Value, string(f.Provenance), f.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("fact write failed")
			return false
		}
	}
	l.facts[key] = f
	return true
}

// Relevant returns the facts worth putting in front of the chat model for
// query: every core key, plus facts whose key or value occurs in the query
// or contains one of its words (words of one rune are ignored).
func (l *Ledger) Relevant(query string) map[string]string {
	query = strings.ToLower(query)
	tokens := strings.Fields(query)

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string)
	for key, f := range l.facts {
		k := strings.ToLower(key)
		v := strings.ToLower(f.Value)

		if l.core[k] {
			out[key] = f.Value
			continue
		}
		if strings.Contains(query, k) || (v != "" && strings.Contains(query, v)) {
			out[key] = f.Value
			continue
		}
		for _, tok := range tokens {
			if len([]rune(tok)) <= 1 {
				continue
			}
			if strings.Contains(k, tok) || strings.Contains(v, tok) {
				out[key] = f.Value
				break
			}
		}
	}
	return out
}

// Get returns the value stored under key.
func (l *Ledger) Get(key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.facts[strings.TrimSpace(key)]
	return f.Value, ok
}

// All returns every fact sorted by key.
func (l *Ledger) All() []Fact {
	l.mu.RLock()
	out := make([]Fact, 0, len(l.facts))
	for _, f := range l.facts {
		out = append(out, f)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Delete removes a fact. Deleting an absent key is not an error.
func (l *Ledger) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil {
		if _, err := l.db.ExecContext(ctx, `DELETE FROM facts WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete fact: %w", err)
		}
	}
	delete(l.facts, key)
	return nil
}

// Close closes the backing database, if any.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
