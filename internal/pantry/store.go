package pantry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/shelf-scanner/internal/metrics"
	"github.com/zombor/shelf-scanner/internal/scanning"
)

// DefaultReadLimit is the number of records returned by List and searched by Search
const DefaultReadLimit = 100

// displayLayout formats RecognitionDate
const displayLayout = "2006-01-02 15:04:05"

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates record_<uuid> IDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return "record_" + uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// StoreOptions configures read and retention limits
type StoreOptions struct {
	// ReadLimit caps List and Search results; 0 means DefaultReadLimit
	ReadLimit int
	// MaxRecords evicts the oldest records beyond this count on Append; 0 keeps everything
	MaxRecords int
}

// Store is the recognition history. Every mutation reads, modifies and writes
// the whole collection while holding mu.
type Store struct {
	mu          sync.Mutex
	backend     Backend
	idGenerator IDGenerator
	timeSource  TimeSource
	readLimit   int
	maxRecords  int
}

// NewStore creates a new Store with default ID generator and time source
func NewStore(backend Backend, opts StoreOptions) *Store {
	return NewStoreWithDeps(backend, opts, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewStoreWithDeps creates a new Store with custom dependencies for testing
func NewStoreWithDeps(backend Backend, opts StoreOptions, idGen IDGenerator, timeSrc TimeSource) *Store {
	readLimit := opts.ReadLimit
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	maxRecords := opts.MaxRecords
	if maxRecords < 0 {
		maxRecords = 0
	}
	return &Store{
		backend:     backend,
		idGenerator: idGen,
		timeSource:  timeSrc,
		readLimit:   readLimit,
		maxRecords:  maxRecords,
	}
}

// load decodes the full collection. A missing collection is empty, not an error.
func (s *Store) load(ctx context.Context) ([]*Record, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []*Record{}, nil
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	if records == nil {
		records = []*Record{}
	}
	return records, nil
}

func (s *Store) save(ctx context.Context, records []*Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	return s.backend.Save(ctx, data)
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StoreOperationsTotal.WithLabelValues(op, result).Inc()
}

// Append assigns a fresh ID and timestamp to record and inserts it at the head
// of the collection. The caller's record is not modified.
func (s *Store) Append(ctx context.Context, record Record) (saved *Record, err error) {
	defer func() { observe("append", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		// Never overwrite a collection we could not read
		return nil, &PersistenceError{Op: "append", Err: err}
	}

	id, err := s.uniqueID(records)
	if err != nil {
		return nil, &PersistenceError{Op: "append", Err: err}
	}

	now := s.timeSource.Now()
	saved = &Record{
		ID:              id,
		Timestamp:       now.UnixMilli(),
		ImageRef:        record.ImageRef,
		ContentType:     record.ContentType,
		Items:           append([]scanning.Item{}, record.Items...),
		ItemCount:       len(record.Items),
		RecognitionDate: record.RecognitionDate,
	}
	if saved.RecognitionDate == "" {
		saved.RecognitionDate = now.Format(displayLayout)
	}

	records = append([]*Record{saved}, records...)
	if s.maxRecords > 0 && len(records) > s.maxRecords {
		slog.Info("Evicting oldest records", "evicted", len(records)-s.maxRecords, "max_records", s.maxRecords)
		records = records[:s.maxRecords]
	}

	if err := s.save(ctx, records); err != nil {
		return nil, &PersistenceError{Op: "append", Err: err}
	}

	slog.Debug("Record saved", "id", saved.ID, "items", saved.ItemCount)
	return saved, nil
}

// uniqueID asks the generator for an ID not already present in records
func (s *Store) uniqueID(records []*Record) (string, error) {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.ID] = true
	}
	for range 5 {
		id := s.idGenerator.Generate()
		if id != "" && !seen[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("generating unique record id")
}

// List returns at most limit records, most recent first. limit == 0 uses the
// configured read window; limit < 0 returns everything. Read failures are
// logged and yield an empty list.
func (s *Store) List(ctx context.Context, limit int) []*Record {
	records, err := s.load(ctx)
	observe("list", err)
	if err != nil {
		slog.Error("Failed to read history", "error", err)
		return []*Record{}
	}
	if limit == 0 {
		limit = s.readLimit
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// Get returns the record with the given ID
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	records, err := s.load(ctx)
	observe("get", err)
	if err != nil {
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes exactly one record
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	defer func() { observe("delete", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}

	kept := make([]*Record, 0, len(records))
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := s.save(ctx, kept); err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	slog.Debug("Record deleted", "id", id)
	return nil
}

// Clear removes all records
func (s *Store) Clear(ctx context.Context) (err error) {
	defer func() { observe("clear", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Remove(ctx); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}
	return nil
}

// Search returns records within the read window having an item whose name
// contains keyword, ignoring case. Store order is preserved.
func (s *Store) Search(ctx context.Context, keyword string) []*Record {
	records := s.List(ctx, 0)
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return records
	}

	matches := make([]*Record, 0)
	for _, r := range records {
		if r.matches(keyword) {
			matches = append(matches, r)
		}
	}
	return matches
}

// Close closes the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
