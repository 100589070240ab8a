package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/placepicker/backend/internal/catalog"
	"github.com/placepicker/backend/internal/events"
	"github.com/placepicker/backend/internal/kv"
	"github.com/placepicker/backend/internal/locate"
	"github.com/placepicker/backend/internal/models"
)

var (
	ErrUnknownPlace     = errors.New("unknown place")
	ErrNotPicked        = errors.New("place is not picked")
	ErrNoPendingRemoval = errors.New("no removal pending")
)

type PickerConfig struct {
	SessionID string
	Catalog   *catalog.Catalog
	Store     kv.Store
	Key       string
	Surface   Surface
	Publisher events.Publisher
	Logger    zerolog.Logger
}

// Picker is the picked-places state machine of one session. It keeps the
// picked list and the persisted id list in lockstep and owns the one-shot
// position that orders the available places.
//
// States: idle (pending == nil) and removal pending (pending != nil).
type Picker struct {
	id        string
	catalog   *catalog.Catalog
	store     kv.Store
	key       string
	surface   Surface
	publisher events.Publisher
	logger    zerolog.Logger

	mu            sync.Mutex
	loaded        bool
	picked        []models.Place
	available     []models.Place
	pending       *string
	location      string
	position      *models.Position
	locateStarted bool
}

func NewPicker(cfg PickerConfig) *Picker {
	if cfg.Key == "" {
		cfg.Key = DefaultSelectionKey
	}
	if cfg.Surface == nil {
		cfg.Surface = &VisibilityFlag{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	return &Picker{
		id:        cfg.SessionID,
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		key:       cfg.Key,
		surface:   cfg.Surface,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With().Str("session_id", cfg.SessionID).Logger(),
		picked:    []models.Place{},
		available: []models.Place{},
		location:  models.LocationPending,
	}
}

func (p *Picker) SessionID() string {
	return p.id
}

// LoadInitialSelection seeds the picked list from the store. Only the first
// call reads; later calls return nil. Ids missing from the catalog are
// dropped and the stored list is rewritten without them.
func (p *Picker) LoadInitialSelection(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}

	ids, err := p.readIDs(ctx)
	if err != nil {
		return err
	}

	picked := make([]models.Place, 0, len(ids))
	var stale []string
	for _, id := range ids {
		place, ok := p.catalog.Find(id)
		if !ok {
			stale = append(stale, id)
			continue
		}
		picked = append(picked, place)
	}

	if len(stale) > 0 {
		p.logger.Warn().Strs("place_ids", stale).Msg("dropping stored places missing from catalog")
		if err := p.writeIDs(ctx, placeIDs(picked)); err != nil {
			return err
		}
	}

	p.picked = picked
	p.loaded = true
	return nil
}

// Pick adds the place to the front of the picked list. It reports false
// when the place was already picked.
func (p *Picker) Pick(ctx context.Context, placeID string) (bool, error) {
	added, err := p.pick(ctx, placeID)
	if err != nil || !added {
		return added, err
	}
	p.publish(ctx, events.TypePlacePicked, placeID)
	return true, nil
}

func (p *Picker) pick(ctx context.Context, placeID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if indexOfPlace(p.picked, placeID) >= 0 {
		return false, nil
	}
	place, ok := p.catalog.Find(placeID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPlace, placeID)
	}

	ids, err := p.readIDs(ctx)
	if err != nil {
		return false, err
	}
	if !containsID(ids, placeID) {
		if err := p.writeIDs(ctx, append([]string{placeID}, ids...)); err != nil {
			return false, err
		}
	}

	p.picked = append([]models.Place{place}, p.picked...)
	return true, nil
}

// RequestRemoval marks a picked place for removal and shows the
// confirmation surface. Nothing is removed until ConfirmRemoval.
func (p *Picker) RequestRemoval(placeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if indexOfPlace(p.picked, placeID) < 0 {
		return fmt.Errorf("%w: %s", ErrNotPicked, placeID)
	}
	id := placeID
	p.pending = &id
	p.surface.Show()
	return nil
}

// CancelRemoval abandons a pending removal. It is a no-op when idle.
func (p *Picker) CancelRemoval() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return
	}
	p.pending = nil
	p.surface.Hide()
}

// Dismiss handles the surface closing on its own (escape key, backdrop).
// It is a cancel: dismissing never deletes a pick.
func (p *Picker) Dismiss() {
	p.CancelRemoval()
}

// ConfirmRemoval removes the pending place from the picked list and the
// store and returns its id.
func (p *Picker) ConfirmRemoval(ctx context.Context) (string, error) {
	placeID, err := p.confirmRemoval(ctx)
	if err != nil {
		return "", err
	}
	p.publish(ctx, events.TypePlaceRemoved, placeID)
	return placeID, nil
}

func (p *Picker) confirmRemoval(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil {
		return "", ErrNoPendingRemoval
	}
	placeID := *p.pending

	ids, err := p.readIDs(ctx)
	if err != nil {
		return "", err
	}
	if err := p.writeIDs(ctx, withoutID(ids, placeID)); err != nil {
		return "", err
	}

	p.picked = withoutPlace(p.picked, placeID)
	p.pending = nil
	p.surface.Hide()
	return placeID, nil
}

// Locate asks locator for the current position once per session. Later
// calls, and calls after a position was delivered through ApplyPosition,
// do nothing.
func (p *Picker) Locate(ctx context.Context, locator locate.Locator) {
	p.mu.Lock()
	if p.locateStarted || p.location != models.LocationPending {
		p.mu.Unlock()
		return
	}
	p.locateStarted = true
	p.mu.Unlock()

	pos, err := locator.Locate(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("position unavailable")
		p.FailPosition()
		return
	}
	p.ApplyPosition(pos)
}

// ApplyPosition ranks the catalog around pos. Only the first position or
// failure of a session is applied; the return value reports whether this
// one was.
func (p *Picker) ApplyPosition(pos models.Position) bool {
	ranked := RankByDistance(p.catalog.All(), pos.Lat, pos.Lng)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.location != models.LocationPending {
		return false
	}
	p.position = &pos
	p.available = ranked
	p.location = models.LocationLocated
	p.logger.Debug().Float64("lat", pos.Lat).Float64("lng", pos.Lng).Msg("position applied")
	return true
}

// FailPosition records that no position will arrive. Available places
// stay empty for the rest of the session.
func (p *Picker) FailPosition() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.location != models.LocationPending {
		return false
	}
	p.location = models.LocationFailed
	return true
}

func (p *Picker) Picked() []models.Place {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Place, len(p.picked))
	copy(out, p.picked)
	return out
}

func (p *Picker) Available() []models.Place {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Place, len(p.available))
	copy(out, p.available)
	return out
}

// PendingRemoval returns the place awaiting confirmation, if any.
func (p *Picker) PendingRemoval() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return "", false
	}
	return *p.pending, true
}

func (p *Picker) View() models.SelectionView {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := models.SelectionView{
		SessionID: p.id,
		Picked:    make([]models.Place, len(p.picked)),
		Available: make([]models.Place, len(p.available)),
		State:     models.StateIdle,
		Location:  p.location,
	}
	copy(view.Picked, p.picked)
	copy(view.Available, p.available)
	if p.pending != nil {
		id := *p.pending
		view.PendingRemoval = &id
		view.State = models.StateRemovalPending
	}
	if flag, ok := p.surface.(interface{ Visible() bool }); ok {
		view.DialogOpen = flag.Visible()
	}
	if p.position != nil {
		pos := *p.position
		view.Position = &pos
	}
	return view
}

// readIDs returns the stored selection. A missing or unparsable value is
// an empty selection, not an error.
func (p *Picker) readIDs(ctx context.Context) ([]string, error) {
	raw, ok, err := p.store.Get(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	if !ok {
		return nil, nil
	}
	ids, valid := decodeIDs(raw)
	if !valid {
		p.logger.Warn().Str("key", p.key).Msg("stored selection is malformed, treating as empty")
		return nil, nil
	}
	return ids, nil
}

func (p *Picker) writeIDs(ctx context.Context, ids []string) error {
	if err := p.store.Set(ctx, p.key, encodeIDs(ids)); err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	return nil
}

func (p *Picker) publish(ctx context.Context, typ string, placeID string) {
	e := events.Event{Type: typ, SessionID: p.id, PlaceID: placeID, At: time.Now().UTC()}
	if err := p.publisher.Publish(ctx, e); err != nil {
		p.logger.Error().Err(err).Str("event", typ).Str("place_id", placeID).Msg("failed to publish selection event")
	}
}
