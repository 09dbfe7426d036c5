// Package chromem stores memories in chromem-go, a pure Go embedded vector
// database, either in memory or persisted to a directory of gob files.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/affect-memory/memory"
)

// SchemaVersion is bumped whenever the metadata layout changes. Collections
// written under another version are dropped on open.
const SchemaVersion = 1

const collectionPrefix = "memories_"

// Metadata keys of a stored document.
const (
	keyEmotionVector = "emotion_vector"
	keyTimestamp     = "timestamp"
	keyImportance    = "importance"
	keyKind          = "kind"
	keyEmotions      = "emotions"
	keyAccessCount   = "access_count"
)

var requiredKeys = []string{keyTimestamp, keyImportance, keyKind, keyAccessCount}

// Options configures a Store.
type Options struct {
	// Path persists the database to a directory. Empty keeps it in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Dimensions is the vector size every record must have.
	Dimensions int
}

// Store is a memory.Store backed by a single chromem-go collection.
//
// chromem documents are immutable once added, so an access-count update
// re-adds the whole document under the same id. Mutations hold mu so such a
// rewrite can never resurrect a concurrently deleted record; reads go
// straight to the collection and get copies.
type Store struct {
	db   *chromem.DB
	col  *chromem.Collection
	dims int
	mu   sync.Mutex
}

var _ memory.Store = (*Store)(nil)

// New opens a store. Failing to open the backend is not an error: the
// returned store is unavailable and every operation degrades to a no-op.
func New(opts Options) *Store {
	s := &Store{dims: opts.Dimensions}
	if opts.Dimensions <= 0 {
		log.Warn().Int("dims", opts.Dimensions).Msg("chromem: invalid dimension, store disabled")
		return s
	}

	var (
		db  *chromem.DB
		err error
	)
	if opts.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			log.Warn().Err(err).Str("path", opts.Path).Msg("chromem: cannot open database, store disabled")
			return s
		}
	}

	col, err := openCollection(context.Background(), db, opts.Dimensions)
	if err != nil {
		log.Warn().Err(err).Msg("chromem: cannot open collection, store disabled")
		return s
	}
	s.db = db
	s.col = col
	return s
}

// CollectionName returns the collection name for a dimension.
func CollectionName(dims int) string {
	return fmt.Sprintf("%sv%d_%d", collectionPrefix, SchemaVersion, dims)
}

// openCollection returns the collection for dims, dropping collections of
// other schema versions or dimensions and rebuilding the current one if its
// documents do not match the schema.
func openCollection(ctx context.Context, db *chromem.DB, dims int) (*chromem.Collection, error) {
	name := CollectionName(dims)
	for existing := range db.ListCollections() {
		if existing == name || !strings.HasPrefix(existing, collectionPrefix) {
			continue
		}
		log.Warn().Str("collection", existing).Str("want", name).Msg("chromem: schema mismatch, dropping collection")
		if err := db.DeleteCollection(existing); err != nil {
			return nil, fmt.Errorf("drop %s: %w", existing, err)
		}
	}

	col, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	if conforms(ctx, col, dims) {
		return col, nil
	}

	log.Warn().Str("collection", name).Msg("chromem: stored documents do not match schema, rebuilding from empty")
	if err := db.DeleteCollection(name); err != nil {
		return nil, fmt.Errorf("drop %s: %w", name, err)
	}
	col, err = db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return col, nil
}

// conforms samples one document and checks its vector size and metadata.
func conforms(ctx context.Context, col *chromem.Collection, dims int) bool {
	if col.Count() == 0 {
		return true
	}
	results, err := col.QueryEmbedding(ctx, probe(dims), 1, nil, nil)
	if err != nil || len(results) == 0 {
		return false
	}
	r := results[0]
	if len(r.Embedding) != dims {
		return false
	}
	for _, k := range requiredKeys {
		if _, ok := r.Metadata[k]; !ok {
			return false
		}
	}
	return true
}

func probe(dims int) []float32 {
	v := make([]float32, dims)
	v[0] = 1
	return v
}

// Available reports whether the collection was opened.
func (s *Store) Available() bool { return s.col != nil }

// Dimensions returns the vector size of the store.
func (s *Store) Dimensions() int { return s.dims }

// Put adds a record.
func (s *Store) Put(ctx context.Context, rec *memory.Record) error {
	if !s.Available() {
		log.Warn().Msg("chromem: store unavailable, put skipped")
		return memory.ErrUnavailable
	}
	if err := memory.CheckVector(rec.Vector, s.dims); err != nil {
		return err
	}
	if rec.Text == "" {
		return memory.ErrEmptyText
	}

	doc, err := toDocument(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Search returns up to limit records nearest to vector.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]memory.Record, error) {
	if !s.Available() {
		log.Warn().Msg("chromem: store unavailable, search returns nothing")
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

	results, err := s.query(ctx, vector, limit, nil)
	if err != nil {
		return nil, err
	}
	return toRecords(results), nil
}

// query runs QueryEmbedding with n capped at the collection size.
// chromem-go rejects nResults larger than the document count, and the count
// can shrink between reading it and querying, so it retries on that error.
func (s *Store) query(ctx context.Context, vector []float32, n int, where map[string]string) ([]chromem.Result, error) {
	for attempt := 0; attempt < 3; attempt++ {
		count := s.col.Count()
		if count == 0 {
			return nil, nil
		}
		if n > count {
			n = count
		}
		results, err := s.col.QueryEmbedding(ctx, vector, n, where, nil)
		if err == nil {
			return results, nil
		}
		if !isInsufficientDocsError(err) {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
	}
	return nil, nil
}

// Delete removes the given ids. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if !s.Available() {
		log.Warn().Msg("chromem: store unavailable, delete skipped")
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// UpdateAccessCount rewrites one document with a new access count.
// A record that no longer exists is left alone.
func (s *Store) UpdateAccessCount(ctx context.Context, id string, count int64) error {
	if !s.Available() {
		return nil
	}
	if count < 0 {
		count = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.col.GetByID(ctx, id)
	if err != nil {
		// Deleted since it was read.
		return nil
	}
	meta := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[keyAccessCount] = strconv.FormatInt(count, 10)
	doc.Metadata = meta

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("rewrite document: %w", err)
	}
	return nil
}

// Scan returns the newest limit records of kind ("" for all).
func (s *Store) Scan(ctx context.Context, limit int, kind memory.Kind) ([]memory.Record, error) {
	if !s.Available() {
		log.Warn().Msg("chromem: store unavailable, scan returns nothing")
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}

	var where map[string]string
	if kind != "" {
		where = map[string]string{keyKind: string(kind)}
	}
	// A full-collection query is chromem's only way to list documents.
	results, err := s.query(ctx, probe(s.dims), s.col.Count(), where)
	if err != nil {
		return nil, err
	}

	records := toRecords(results)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp > records[j].Timestamp
		}
		return records[i].ID < records[j].ID
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if !s.Available() {
		return 0, nil
	}
	return s.col.Count(), nil
}

// Close releases resources. Persistent databases are written on every
// mutation, so there is nothing to flush.
func (s *Store) Close() error {
	return nil
}

func toDocument(rec *memory.Record) (chromem.Document, error) {
	meta := map[string]string{
		keyTimestamp:   strconv.FormatFloat(rec.Timestamp, 'f', -1, 64),
		keyImportance:  strconv.FormatFloat(float64(rec.Importance), 'f', -1, 32),
		keyKind:        string(rec.Kind),
		keyAccessCount: strconv.FormatInt(rec.AccessCount, 10),
	}
	if meta[keyKind] == "" {
		meta[keyKind] = string(memory.KindRaw)
	}
	if len(rec.EmotionVector) > 0 {
		b, err := json.Marshal(rec.EmotionVector)
		if err != nil {
			return chromem.Document{}, fmt.Errorf("marshal emotion vector: %w", err)
		}
		meta[keyEmotionVector] = string(b)
	}
	if len(rec.Emotions) > 0 {
		b, err := json.Marshal(rec.Emotions)
		if err != nil {
			return chromem.Document{}, fmt.Errorf("marshal emotions: %w", err)
		}
		meta[keyEmotions] = string(b)
	}

	return chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: append([]float32(nil), rec.Vector...),
		Metadata:  meta,
	}, nil
}

func toRecords(results []chromem.Result) []memory.Record {
	records := make([]memory.Record, 0, len(results))
	for _, r := range results {
		records = append(records, toRecord(r.ID, r.Content, r.Embedding, r.Metadata))
	}
	return records
}

// toRecord decodes a document. Malformed optional fields decode as absent;
// the caller decides what to do with a malformed vector.
func toRecord(id, content string, embedding []float32, meta map[string]string) memory.Record {
	rec := memory.Record{
		ID:     id,
		Text:   content,
		Vector: append([]float32(nil), embedding...),
		Kind:   memory.ParseKind(meta[keyKind]),
	}
	rec.Timestamp, _ = strconv.ParseFloat(meta[keyTimestamp], 64)
	if imp, err := strconv.ParseFloat(meta[keyImportance], 32); err == nil {
		rec.Importance = float32(imp)
	}
	if n, err := strconv.ParseInt(meta[keyAccessCount], 10, 64); err == nil && n > 0 {
		rec.AccessCount = n
	}
	if v := meta[keyEmotionVector]; v != "" {
		if err := json.Unmarshal([]byte(v), &rec.EmotionVector); err != nil {
			rec.EmotionVector = nil
		}
	}
	if v := meta[keyEmotions]; v != "" {
		if err := json.Unmarshal([]byte(v), &rec.Emotions); err != nil {
			rec.Emotions = nil
		}
	}
	return rec
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
