package memory

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store owns the set of remembered records and the decay parameters that
// govern them. It performs no I/O.
//
// A Store is not safe for concurrent use. Callers serialise access, either by
// confining the store to one goroutine or by guarding it with a lock (see
// engine.Engine).
type Store struct {
	records map[string]*Record
	order   []string
	params  Params
	clock   Clock
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithParams sets the decay parameters. Invalid params are rejected by New's
// callers through Params.Validate; New itself trusts them.
func WithParams(p Params) Option {
	return func(s *Store) { s.params = p }
}

// WithClock injects the time source used for creation and access stamps.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger used for skip-and-log reporting during decay.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*Record),
		params:  DefaultParams(),
		clock:   SystemClock{},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add stores a new episodic record and returns its id.
func (s *Store) Add(content string, baseImportance float64, category string) (string, error) {
	return s.AddRecord(NewRecord{
		Content:        content,
		BaseImportance: baseImportance,
		Category:       category,
	})
}

// AddRecord stores a new record built from nr and returns its id.
func (s *Store) AddRecord(nr NewRecord) (string, error) {
	if math.IsNaN(nr.BaseImportance) || nr.BaseImportance < 0 || nr.BaseImportance > 1 {
		return "", fmt.Errorf("%w: base importance must be in [0,1], got %v", ErrInvalidInput, nr.BaseImportance)
	}
	kind := nr.Kind
	if kind == "" {
		kind = Episodic
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, nr.Kind)
	}

	now := s.clock.Now()
	rec := Record{
		ID:                uuid.New().String(),
		Content:           nr.Content,
		Context:           nr.Context,
		Kind:              kind,
		Category:          nr.Category,
		CreatedAt:         now,
		LastAccessedAt:    now,
		BaseImportance:    nr.BaseImportance,
		CurrentImportance: nr.BaseImportance,
	}.clone()

	s.records[rec.ID] = &rec
	s.order = append(s.order, rec.ID)
	return rec.ID, nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, error) {
	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.clone(), nil
}

// Remove deletes the record with the given id. Removing an unknown id is a
// no-op; the return value reports whether anything was deleted.
func (s *Store) Remove(id string) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return true
}

// All yields copies of every record in insertion order. Each range over the
// returned sequence starts a fresh walk of the store.
func (s *Store) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		ids := slices.Clone(s.order)
		for _, id := range ids {
			r, ok := s.records[id]
			if !ok {
				continue
			}
			if !yield(r.clone()) {
				return
			}
		}
	}
}

// Len returns the number of stored records.
func (s *Store) Len() int { return len(s.records) }

// Params returns the store's decay parameters.
func (s *Store) Params() Params { return s.params }

// SetParams replaces the decay parameters after validating them.
func (s *Store) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.params = p
	return nil
}

// Clock returns the store's time source.
func (s *Store) Clock() Clock { return s.clock }

// Touch records a successful recall of id at the given time.
func (s *Store) Touch(id string, at time.Time) error {
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.AccessCount++
	r.LastAccessedAt = at
	return nil
}

// State is a point-in-time copy of a store, detached from it.
type State struct {
	Params  Params   `json:"params"`
	Records []Record `json:"records"`
}

// State returns a deep copy of the store's records and parameters.
func (s *Store) State() State {
	st := State{
		Params:  s.params,
		Records: make([]Record, 0, len(s.records)),
	}
	for r := range s.All() {
		st.Records = append(st.Records, r)
	}
	return st
}

// Restore builds a new Store from st. Records keep their ids, stamps and
// derived importance exactly as captured.
func Restore(st State, opts ...Option) (*Store, error) {
	if err := st.Params.Validate(); err != nil {
		return nil, fmt.Errorf("restore params: %w", err)
	}
	s := New(opts...)
	s.params = st.Params
	for _, r := range st.Records {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: record without id", ErrInvalidInput)
		}
		if _, dup := s.records[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate record id %s", ErrInvalidInput, r.ID)
		}
		rec := r.clone()
		s.records[rec.ID] = &rec
		s.order = append(s.order, rec.ID)
	}
	return s, nil
}
