// Package snapshot persists memory stores as checksum-verified snapshots.
//
// A snapshot file is a JSON envelope:
//
//	{"version":1,"timestamp":"...","checksum":"sha256:<hex>","payload":{"params":{...},"records":[...]}}
//
// The checksum covers the payload bytes exactly as written. Files are written
// under a temporary name and renamed into place, so a failed save never
// replaces a good snapshot with a partial one.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/mnemo/internal/memory"
)

// FormatVersion is the envelope version written by this package.
const FormatVersion = 1

const (
	namePrefix = "snap-"
	nameSuffix = ".msnap"
	sumPrefix  = "sha256:"
)

// Handle identifies a stored snapshot.
type Handle struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`

	// Set by Save only.
	Records  int    `json:"records,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// Info describes a snapshot's envelope after verification.
type Info struct {
	Handle    Handle    `json:"handle"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Records   int       `json:"records"`
	Checksum  string    `json:"checksum"`
	Valid     bool      `json:"valid"`
	Problem   string    `json:"problem,omitempty"`
}

type envelope struct {
	Version   int             `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Checksum  string          `json:"checksum"`
	Payload   json.RawMessage `json:"payload"`
}

// Manager saves, loads, lists and prunes snapshots on a Medium.
type Manager struct {
	medium Medium
	codec  Codec
	clock  memory.Clock
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithCodec sets the transport codec (compression, encryption).
func WithCodec(c Codec) Option {
	return func(m *Manager) { m.codec = c }
}

// WithClock sets the clock used to stamp new snapshots.
func WithClock(c memory.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager writing to medium.
func NewManager(medium Medium, opts ...Option) *Manager {
	m := &Manager{
		medium: medium,
		codec:  Identity{},
		clock:  memory.SystemClock{},
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Save snapshots s. The store's state is copied before any I/O starts, so the
// caller only needs to hold its lock for the duration of this call's first
// step; see SaveState for lock-free use with a copy taken elsewhere.
func (m *Manager) Save(ctx context.Context, s *memory.Store) (Handle, error) {
	return m.SaveState(ctx, s.State())
}

// SaveState writes st as a new snapshot.
func (m *Manager) SaveState(ctx context.Context, st memory.State) (Handle, error) {
	if st.Records == nil {
		st.Records = []memory.Record{}
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return Handle{}, fmt.Errorf("encode snapshot payload: %w", err)
	}
	sum := checksum(payload)

	now := m.clock.Now()
	data, err := json.Marshal(envelope{
		Version:   FormatVersion,
		Timestamp: now.UTC(),
		Checksum:  sum,
		Payload:   payload,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("encode snapshot envelope: %w", err)
	}
	if data, err = m.codec.Encode(data); err != nil {
		return Handle{}, fmt.Errorf("%s encode: %w", m.codec.Name(), err)
	}

	name := fileName(now)
	if err := m.medium.WriteAtomic(ctx, name, data); err != nil {
		return Handle{}, classify("write", name, err)
	}

	h := Handle{
		Name:      name,
		CreatedAt: now,
		Size:      int64(len(data)),
		Records:   len(st.Records),
		Checksum:  sum,
	}
	m.logger.Info("snapshot saved",
		zap.String("name", name),
		zap.Int("records", h.Records),
		zap.Int64("bytes", h.Size),
		zap.String("codec", m.codec.Name()))
	return h, nil
}

// Load reads and verifies h and returns a fresh store built from it.
func (m *Manager) Load(ctx context.Context, h Handle, opts ...memory.Option) (*memory.Store, error) {
	env, st, err := m.read(ctx, h.Name)
	if err != nil {
		return nil, err
	}
	s, err := memory.Restore(st, opts...)
	if err != nil {
		return nil, corrupt(h.Name, "invalid store state", err)
	}
	m.logger.Info("snapshot loaded",
		zap.String("name", h.Name),
		zap.Int("records", s.Len()),
		zap.Time("taken_at", env.Timestamp))
	return s, nil
}

// LoadLatest loads the newest snapshot. It does not fall back to older ones;
// a corrupt newest snapshot is reported to the caller.
func (m *Manager) LoadLatest(ctx context.Context, opts ...memory.Option) (*memory.Store, Handle, error) {
	hs, err := m.List(ctx)
	if err != nil {
		return nil, Handle{}, err
	}
	if len(hs) == 0 {
		return nil, Handle{}, ErrNoSnapshots
	}
	s, err := m.Load(ctx, hs[0], opts...)
	return s, hs[0], err
}

// Find returns the handle with the given name.
func (m *Manager) Find(ctx context.Context, name string) (Handle, error) {
	hs, err := m.List(ctx)
	if err != nil {
		return Handle{}, err
	}
	for _, h := range hs {
		if h.Name == name {
			return h, nil
		}
	}
	return Handle{}, &IOError{Op: "find", Name: name, Err: fmt.Errorf("no such snapshot")}
}

// List returns every snapshot, newest first.
func (m *Manager) List(ctx context.Context) ([]Handle, error) {
	entries, err := m.medium.List(ctx)
	if err != nil {
		return nil, classify("list", "", err)
	}
	var hs []Handle
	for _, e := range entries {
		created, ok := parseName(e.Name)
		if !ok {
			continue
		}
		hs = append(hs, Handle{Name: e.Name, CreatedAt: created, Size: e.Size})
	}
	sort.Slice(hs, func(i, j int) bool {
		if !hs[i].CreatedAt.Equal(hs[j].CreatedAt) {
			return hs[i].CreatedAt.After(hs[j].CreatedAt)
		}
		return hs[i].Name > hs[j].Name
	})
	return hs, nil
}

// Prune deletes all but the keep newest snapshots and returns what it removed.
func (m *Manager) Prune(ctx context.Context, keep int) ([]Handle, error) {
	if keep < 0 {
		keep = 0
	}
	hs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(hs) <= keep {
		return nil, nil
	}
	var removed []Handle
	for _, h := range hs[keep:] {
		if err := m.medium.Remove(ctx, h.Name); err != nil {
			return removed, classify("remove", h.Name, err)
		}
		removed = append(removed, h)
	}
	m.logger.Info("snapshots pruned", zap.Int("removed", len(removed)), zap.Int("kept", keep))
	return removed, nil
}

// Inspect verifies h and describes its envelope. A corrupt snapshot is
// reported through Info.Valid rather than an error; I/O failures and
// cancellation are still returned.
func (m *Manager) Inspect(ctx context.Context, h Handle) (Info, error) {
	info := Info{Handle: h}
	env, st, err := m.read(ctx, h.Name)
	if err != nil {
		if !IsCorruption(err) {
			return info, err
		}
		info.Problem = err.Error()
		return info, nil
	}
	info.Version = env.Version
	info.Timestamp = env.Timestamp
	info.Checksum = env.Checksum
	info.Records = len(st.Records)
	info.Valid = true
	return info, nil
}

func (m *Manager) read(ctx context.Context, name string) (envelope, memory.State, error) {
	var env envelope
	var st memory.State

	data, err := m.medium.Read(ctx, name)
	if err != nil {
		return env, st, classify("read", name, err)
	}
	if data, err = m.codec.Decode(data); err != nil {
		return env, st, corrupt(name, "undecodable transport", err)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, st, corrupt(name, "malformed envelope", err)
	}
	if env.Version != FormatVersion {
		return env, st, corrupt(name, fmt.Sprintf("unsupported format version %d", env.Version), nil)
	}
	if got := checksum(env.Payload); got != env.Checksum {
		return env, st, corrupt(name, fmt.Sprintf("checksum mismatch: stored %s, computed %s", env.Checksum, got), nil)
	}
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&st); err != nil {
		return env, st, corrupt(name, "malformed payload", err)
	}
	return env, st, nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return sumPrefix + hex.EncodeToString(sum[:])
}

// fileName encodes the creation time so listing does not depend on mtimes.
func fileName(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s%019d-%s%s", namePrefix, t.UnixNano(), suffix, nameSuffix)
}

func parseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return time.Time{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	stamp, _, ok := strings.Cut(core, "-")
	if !ok {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
