package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/placepicker/backend/internal/catalog"
	"github.com/placepicker/backend/internal/events"
	"github.com/placepicker/backend/internal/kv"
	"github.com/placepicker/backend/internal/locate"
)

var ErrSessionNotFound = errors.New("session not found")

const DefaultIdleTTL = 30 * time.Minute

type SessionsConfig struct {
	Catalog   *catalog.Catalog
	Store     kv.Store
	Key       string
	Publisher events.Publisher
	Logger    zerolog.Logger
	// Locator is optional. When nil the client delivers its own position.
	Locator locate.Locator
	// BaseCtx bounds background position lookups; cancel it on shutdown.
	BaseCtx context.Context
	// IdleTTL is how long an untouched session stays in memory. Its
	// selection stays in the store and is restored on the next access.
	IdleTTL time.Duration
}

// Sessions keeps one Picker per session id. Only sessions minted by Create
// exist; one that was evicted from memory is restored from the store the
// next time it is asked for.
type Sessions struct {
	cfg   SessionsConfig
	now   func() time.Time
	loads singleflight.Group

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	picker   *Picker
	lastSeen time.Time
}

type SessionSummary struct {
	ID       string `json:"id"`
	Picked   int    `json:"picked"`
	State    string `json:"state"`
	Location string `json:"location"`
}

func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.BaseCtx == nil {
		cfg.BaseCtx = context.Background()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Key == "" {
		cfg.Key = DefaultSelectionKey
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	return &Sessions{cfg: cfg, now: time.Now, entries: map[string]*sessionEntry{}}
}

// Create mints a session and stores its empty selection, which is what
// later marks the id as known to Get.
func (s *Sessions) Create(ctx context.Context) (*Picker, error) {
	id := uuid.NewString()
	if err := kv.Namespace(s.cfg.Store, id).Set(ctx, s.cfg.Key, encodeIDs(nil)); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.open(ctx, id)
}

// Get returns the session's picker, restoring it if needed. Ids that are
// not UUIDs or have no stored selection are rejected with
// ErrSessionNotFound.
func (s *Sessions) Get(ctx context.Context, id string) (*Picker, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return s.open(ctx, parsed.String())
}

// open returns the live picker for id or loads it. Loads of the same id are
// collapsed into one, and a picker enters the registry only after its
// selection is loaded. The registry lock never covers store I/O.
func (s *Sessions) open(ctx context.Context, id string) (*Picker, error) {
	if p, ok := s.lookup(id); ok {
		return p, nil
	}

	v, err, _ := s.loads.Do(id, func() (any, error) {
		if p, ok := s.lookup(id); ok {
			return p, nil
		}
		p, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries[id] = &sessionEntry{picker: p, lastSeen: s.now()}
		s.mu.Unlock()
		s.cfg.Logger.Info().Str("session_id", id).Int("picked", len(p.Picked())).Msg("session opened")

		if s.cfg.Locator != nil {
			go p.Locate(s.cfg.BaseCtx, s.cfg.Locator)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Picker), nil
}

func (s *Sessions) load(ctx context.Context, id string) (*Picker, error) {
	store := kv.Namespace(s.cfg.Store, id)
	_, ok, err := store.Get(ctx, s.cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	p := NewPicker(PickerConfig{
		SessionID: id,
		Catalog:   s.cfg.Catalog,
		Store:     store,
		Key:       s.cfg.Key,
		Surface:   &VisibilityFlag{},
		Publisher: s.cfg.Publisher,
		Logger:    s.cfg.Logger,
	})
	if err := p.LoadInitialSelection(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// lookup returns a live picker and marks it as used. Idle sessions are
// evicted on the way.
func (s *Sessions) lookup(id string) (*Picker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictIdleLocked(now)

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = now
	return e.picker, true
}

func (s *Sessions) evictIdleLocked(now time.Time) {
	for id, e := range s.entries {
		if now.Sub(e.lastSeen) > s.cfg.IdleTTL {
			delete(s.entries, id)
			s.cfg.Logger.Debug().Str("session_id", id).Msg("idle session evicted")
		}
	}
}

// List summarizes live sessions ordered by id.
func (s *Sessions) List() []SessionSummary {
	s.mu.Lock()
	s.evictIdleLocked(s.now())
	pickers := make([]*Picker, 0, len(s.entries))
	for _, e := range s.entries {
		pickers = append(pickers, e.picker)
	}
	s.mu.Unlock()

	out := make([]SessionSummary, 0, len(pickers))
	for _, p := range pickers {
		v := p.View()
		out = append(out, SessionSummary{ID: v.SessionID, Picked: len(v.Picked), State: v.State, Location: v.Location})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
