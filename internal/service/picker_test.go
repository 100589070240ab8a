package service

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/placepicker/backend/internal/catalog"
	"github.com/placepicker/backend/internal/events"
	"github.com/placepicker/backend/internal/kv"
	"github.com/placepicker/backend/internal/locate"
	"github.com/placepicker/backend/internal/models"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]models.Place{
		{ID: "p1", Name: "Forest Waterfall", Lat: 44.5588, Lng: -80.344},
		{ID: "p2", Name: "Sahara Desert Dunes", Lat: 25.0, Lng: 0.0},
		{ID: "p3", Name: "Majestic Mountains", Lat: 46.5761, Lng: 7.9794},
		{ID: "p4", Name: "Caribbean Beach", Lat: 18.2208, Lng: -66.5901},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type flakyStore struct {
	kv.Store
	failSet bool
	failGet bool
	sets    int
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errors.New("store unavailable")
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value string) error {
	if f.failSet {
		return errors.New("store unavailable")
	}
	f.sets++
	return f.Store.Set(ctx, key, value)
}

func newLoadedPicker(t *testing.T, store kv.Store, pub events.Publisher) *Picker {
	t.Helper()
	p := NewPicker(PickerConfig{
		SessionID: "s1",
		Catalog:   testCatalog(t),
		Store:     store,
		Publisher: pub,
		Logger:    zerolog.Nop(),
	})
	if err := p.LoadInitialSelection(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return p
}

func storedIDs(t *testing.T, store kv.Store) []string {
	t.Helper()
	raw, ok, err := store.Get(context.Background(), DefaultSelectionKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		return nil
	}
	ids, valid := decodeIDs(raw)
	if !valid {
		t.Fatalf("stored selection is malformed: %s", raw)
	}
	return ids
}

func assertSameIDSet(t *testing.T, p *Picker, store kv.Store) {
	t.Helper()
	a := placeIDs(p.Picked())
	b := append([]string(nil), storedIDs(t, store)...)
	sort.Strings(a)
	sort.Strings(b)
	if len(a) == 0 && len(b) == 0 {
		return
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("picked ids %v differ from stored ids %v", a, b)
	}
}

func TestPickFromEmptySelection(t *testing.T) {
	store := kv.NewMemory()
	p := newLoadedPicker(t, store, nil)

	if len(p.Picked()) != 0 {
		t.Fatalf("expected empty picked list at start")
	}
	added, err := p.Pick(context.Background(), "p1")
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if !added {
		t.Fatalf("expected p1 to be added")
	}
	if ids := placeIDs(p.Picked()); !reflect.DeepEqual(ids, []string{"p1"}) {
		t.Fatalf("expected [p1], got %v", ids)
	}
	raw, _, _ := store.Get(context.Background(), DefaultSelectionKey)
	if raw != `["p1"]` {
		t.Fatalf("expected stored [\"p1\"], got %s", raw)
	}
}

func TestPickPrependsMostRecentFirst(t *testing.T) {
	store := kv.NewMemory()
	p := newLoadedPicker(t, store, nil)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		if _, err := p.Pick(ctx, id); err != nil {
			t.Fatalf("pick %s: %v", id, err)
		}
	}
	want := []string{"p3", "p2", "p1"}
	if ids := placeIDs(p.Picked()); !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	if ids := storedIDs(t, store); !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected stored %v, got %v", want, ids)
	}
}

func TestPickIsIdempotent(t *testing.T) {
	store := &flakyStore{Store: kv.NewMemory()}
	pub := &recordingPublisher{}
	p := newLoadedPicker(t, store, pub)
	ctx := context.Background()

	if _, err := p.Pick(ctx, "p1"); err != nil {
		t.Fatalf("pick: %v", err)
	}
	picked := p.Picked()
	stored := storedIDs(t, store)
	sets := store.sets

	added, err := p.Pick(ctx, "p1")
	if err != nil {
		t.Fatalf("second pick: %v", err)
	}
	if added {
		t.Fatalf("expected duplicate pick to be a no-op")
	}
	if !reflect.DeepEqual(p.Picked(), picked) {
		t.Fatalf("picked list changed on duplicate pick")
	}
	if !reflect.DeepEqual(storedIDs(t, store), stored) {
		t.Fatalf("stored list changed on duplicate pick")
	}
	if store.sets != sets {
		t.Fatalf("expected no store write on duplicate pick")
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
}

func TestPickUnknownPlace(t *testing.T) {
	store := kv.NewMemory()
	p := newLoadedPicker(t, store, nil)

	_, err := p.Pick(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownPlace) {
		t.Fatalf("expected ErrUnknownPlace, got %v", err)
	}
	if len(p.Picked()) != 0 || storedIDs(t, store) != nil {
		t.Fatalf("expected no mutation on unknown place")
	}
}

func TestPickDoesNotDuplicateStoredID(t *testing.T) {
	backing := kv.NewMemory()
	p := newLoadedPicker(t, backing, nil)
	ctx := context.Background()

	// Another writer already stored p2 after this picker loaded.
	if err := backing.Set(ctx, DefaultSelectionKey, `["p2"]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := p.Pick(ctx, "p2"); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if ids := storedIDs(t, backing); !reflect.DeepEqual(ids, []string{"p2"}) {
		t.Fatalf("expected stored [p2], got %v", ids)
	}
}

func TestLoadInitialSelectionResolvesInOrder(t *testing.T) {
	store := kv.NewMemory()
	if err := store.Set(context.Background(), DefaultSelectionKey, `["p1","p2"]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	p := newLoadedPicker(t, store, nil)

	picked := p.Picked()
	if ids := placeIDs(picked); !reflect.DeepEqual(ids, []string{"p1", "p2"}) {
		t.Fatalf("expected [p1 p2], got %v", ids)
	}
	if picked[0].Name != "Forest Waterfall" {
		t.Fatalf("expected full place record, got %+v", picked[0])
	}
}

func TestLoadInitialSelectionMalformedIsEmpty(t *testing.T) {
	for _, raw := range []string{"{not json", `{"ids":["p1"]}`, `[1,2]`, "null", ""} {
		store := kv.NewMemory()
		if err := store.Set(context.Background(), DefaultSelectionKey, raw); err != nil {
			t.Fatalf("set: %v", err)
		}
		p := newLoadedPicker(t, store, nil)
		if len(p.Picked()) != 0 {
			t.Fatalf("raw %q: expected empty selection, got %v", raw, placeIDs(p.Picked()))
		}
		if _, err := p.Pick(context.Background(), "p3"); err != nil {
			t.Fatalf("raw %q: pick: %v", raw, err)
		}
		if ids := storedIDs(t, store); !reflect.DeepEqual(ids, []string{"p3"}) {
			t.Fatalf("raw %q: expected stored [p3], got %v", raw, ids)
		}
	}
}

func TestLoadInitialSelectionDropsUnknownIDs(t *testing.T) {
	store := kv.NewMemory()
	if err := store.Set(context.Background(), DefaultSelectionKey, `["p2","gone","p1"]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	p := newLoadedPicker(t, store, nil)

	if ids := placeIDs(p.Picked()); !reflect.DeepEqual(ids, []string{"p2", "p1"}) {
		t.Fatalf("expected [p2 p1], got %v", ids)
	}
	if ids := storedIDs(t, store); !reflect.DeepEqual(ids, []string{"p2", "p1"}) {
		t.Fatalf("expected stored list repaired to [p2 p1], got %v", ids)
	}
}

func TestLoadInitialSelectionRunsOnce(t *testing.T) {
	store := kv.NewMemory()
	p := newLoadedPicker(t, store, nil)
	ctx := context.Background()

	if err := store.Set(ctx, DefaultSelectionKey, `["p4"]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := p.LoadInitialSelection(ctx); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(p.Picked()) != 0 {
		t.Fatalf("expected second load to be ignored, got %v", placeIDs(p.Picked()))
	}
}

func TestLoadInitialSelectionStoreError(t *testing.T) {
	p := NewPicker(PickerConfig{
		SessionID: "s1",
		Catalog:   testCatalog(t),
		Store:     &flakyStore{Store: kv.NewMemory(), failGet: true},
		Logger:    zerolog.Nop(),
	})
	if err := p.LoadInitialSelection(context.Background()); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestConfirmRemoval(t *testing.T) {
	store := kv.NewMemory()
	if err := store.Set(context.Background(), DefaultSelectionKey, `["p1","p2"]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	pub := &recordingPublisher{}
	p := newLoadedPicker(t, store, pub)

	if err := p.RequestRemoval("p1"); err != nil {
		t.Fatalf("request removal: %v", err)
	}
	if id, ok := p.PendingRemoval(); !ok || id != "p1" {
		t.Fatalf("expected p1 pending, got %q (ok=%v)", id, ok)
	}
	if v := p.View(); !v.DialogOpen || v.State != models.StateRemovalPending {
		t.Fatalf("expected open dialog in removal_pending, got %+v", v)
	}
	if len(p.Picked()) != 2 {
		t.Fatalf("request removal must not mutate picked list")
	}

	removed, err := p.ConfirmRemoval(context.Background())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if removed != "p1" {
		t.Fatalf("expected p1 removed, got %s", removed)
	}
	if ids := placeIDs(p.Picked()); !reflect.DeepEqual(ids, []string{"p2"}) {
		t.Fatalf("expected [p2], got %v", ids)
	}
	if ids := storedIDs(t, store); !reflect.DeepEqual(ids, []string{"p2"}) {
		t.Fatalf("expected stored [p2], got %v", ids)
	}
	v := p.View()
	if v.State != models.StateIdle || v.DialogOpen || v.PendingRemoval != nil {
		t.Fatalf("expected idle with closed dialog, got %+v", v)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypePlaceRemoved || pub.events[0].PlaceID != "p1" {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestCancelRemoval(t *testing.T) {
	store := kv.NewMemory()
	if err := store.Set(context.Background(), DefaultSelectionKey, `["p1","p2"]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	p := newLoadedPicker(t, store, nil)

	if err := p.RequestRemoval("p1"); err != nil {
		t.Fatalf("request removal: %v", err)
	}
	p.CancelRemoval()

	if ids := placeIDs(p.Picked()); !reflect.DeepEqual(ids, []string{"p1", "p2"}) {
		t.Fatalf("expected [p1 p2], got %v", ids)
	}
	if ids := storedIDs(t, store); !reflect.DeepEqual(ids, []string{"p1", "p2"}) {
		t.Fatalf("expected stored [p1 p2], got %v", ids)
	}
	if v := p.View(); v.State != models.StateIdle || v.DialogOpen {
		t.Fatalf("expected idle with closed dialog, got %+v", v)
	}
}

func TestDismissKeepsPick(t *testing.T) {
	store := kv.NewMemory()
	p := newLoadedPicker(t, store, nil)
	ctx := context.Background()
	if _, err := p.Pick(ctx, "p3"); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if err := p.RequestRemoval("p3"); err != nil {
		t.Fatalf("request removal: %v", err)
	}

	p.Dismiss()

	if ids := placeIDs(p.Picked()); !reflect.DeepEqual(ids, []string{"p3"}) {
		t.Fatalf("dismiss removed a pick: %v", ids)
	}
	if _, ok := p.PendingRemoval(); ok {
		t.Fatalf("expected no pending removal after dismiss")
	}
	if _, err := p.ConfirmRemoval(ctx); !errors.Is(err, ErrNoPendingRemoval) {
		t.Fatalf("expected ErrNoPendingRemoval after dismiss, got %v", err)
	}
}

func TestConfirmRemovalWhenIdle(t *testing.T) {
	store := kv.NewMemory()
	p := newLoadedPicker(t, store, nil)
	if _, err := p.ConfirmRemoval(context.Background()); !errors.Is(err, ErrNoPendingRemoval) {
		t.Fatalf("expected ErrNoPendingRemoval, got %v", err)
	}
}

func TestRequestRemovalNotPicked(t *testing.T) {
	p := newLoadedPicker(t, kv.NewMemory(), nil)
	if err := p.RequestRemoval("p1"); !errors.Is(err, ErrNotPicked) {
		t.Fatalf("expected ErrNotPicked, got %v", err)
	}
	if p.View().DialogOpen {
		t.Fatalf("dialog must stay closed")
	}
}

func TestRequestRemovalRetargets(t *testing.T) {
	store := kv.NewMemory()
	if err := store.Set(context.Background(), DefaultSelectionKey, `["p1","p2"]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	p := newLoadedPicker(t, store, nil)
	if err := p.RequestRemoval("p1"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := p.RequestRemoval("p2"); err != nil {
		t.Fatalf("request: %v", err)
	}
	removed, err := p.ConfirmRemoval(context.Background())
	if err != nil || removed != "p2" {
		t.Fatalf("expected p2 removed, got %q err=%v", removed, err)
	}
}

func TestFailedWriteLeavesStateUnchanged(t *testing.T) {
	store := &flakyStore{Store: kv.NewMemory()}
	p := newLoadedPicker(t, store, nil)
	ctx := context.Background()
	if _, err := p.Pick(ctx, "p1"); err != nil {
		t.Fatalf("pick: %v", err)
	}

	store.failSet = true
	if _, err := p.Pick(ctx, "p2"); err == nil {
		t.Fatalf("expected write error")
	}
	if ids := placeIDs(p.Picked()); !reflect.DeepEqual(ids, []string{"p1"}) {
		t.Fatalf("expected [p1] after failed pick, got %v", ids)
	}

	if err := p.RequestRemoval("p1"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := p.ConfirmRemoval(ctx); err == nil {
		t.Fatalf("expected write error")
	}
	if ids := placeIDs(p.Picked()); !reflect.DeepEqual(ids, []string{"p1"}) {
		t.Fatalf("expected [p1] after failed removal, got %v", ids)
	}
	if _, ok := p.PendingRemoval(); !ok {
		t.Fatalf("expected removal to remain pending after failed write")
	}

	store.failSet = false
	assertSameIDSet(t, p, store)
}

func TestPickAndRemoveKeepIDSetsEqual(t *testing.T) {
	store := kv.NewMemory()
	p := newLoadedPicker(t, store, nil)
	ctx := context.Background()
	ids := []string{"p1", "p2", "p3", "p4"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		id := ids[rng.Intn(len(ids))]
		if rng.Intn(2) == 0 {
			if _, err := p.Pick(ctx, id); err != nil {
				t.Fatalf("step %d pick %s: %v", i, id, err)
			}
		} else if err := p.RequestRemoval(id); err == nil {
			if rng.Intn(3) == 0 {
				p.CancelRemoval()
			} else if _, err := p.ConfirmRemoval(ctx); err != nil {
				t.Fatalf("step %d confirm %s: %v", i, id, err)
			}
		}
		assertSameIDSet(t, p, store)
	}
}

func TestLocateRanksAvailableOnce(t *testing.T) {
	p := newLoadedPicker(t, kv.NewMemory(), nil)
	if v := p.View(); v.Location != models.LocationPending || len(v.Available) != 0 {
		t.Fatalf("expected pending location and no available places, got %+v", v)
	}

	// Standing in the Alps.
	p.Locate(context.Background(), locate.StaticLocator{Position: models.Position{Lat: 46.6, Lng: 8.0}})
	avail := placeIDs(p.Available())
	if len(avail) != 4 || avail[0] != "p3" {
		t.Fatalf("expected p3 nearest, got %v", avail)
	}

	p.Locate(context.Background(), locate.StaticLocator{Position: models.Position{Lat: 44.5, Lng: -80.3}})
	if p.ApplyPosition(models.Position{Lat: 44.5, Lng: -80.3}) {
		t.Fatalf("expected second position to be ignored")
	}
	if got := placeIDs(p.Available()); !reflect.DeepEqual(got, avail) {
		t.Fatalf("available changed after first position: %v", got)
	}
	if v := p.View(); v.Location != models.LocationLocated || v.Position == nil || v.Position.Lat != 46.6 {
		t.Fatalf("unexpected view: %+v", v)
	}
}

type failingLocator struct{}

func (failingLocator) Locate(ctx context.Context) (models.Position, error) {
	return models.Position{}, locate.ErrUnavailable
}

func TestLocateFailureLeavesAvailableEmpty(t *testing.T) {
	p := newLoadedPicker(t, kv.NewMemory(), nil)
	p.Locate(context.Background(), failingLocator{})

	if v := p.View(); v.Location != models.LocationFailed || len(v.Available) != 0 {
		t.Fatalf("expected failed location and empty available, got %+v", v)
	}
	if p.ApplyPosition(models.Position{Lat: 1, Lng: 1}) {
		t.Fatalf("expected position after failure to be ignored")
	}
	if len(p.Available()) != 0 {
		t.Fatalf("expected available to stay empty")
	}
}

func TestClientPositionBlocksLocate(t *testing.T) {
	p := newLoadedPicker(t, kv.NewMemory(), nil)
	if !p.ApplyPosition(models.Position{Lat: 18.2, Lng: -66.5}) {
		t.Fatalf("expected first position to apply")
	}
	if p.FailPosition() {
		t.Fatalf("expected failure after position to be ignored")
	}
	p.Locate(context.Background(), locate.StaticLocator{Position: models.Position{Lat: 46.6, Lng: 8.0}})
	if got := p.Available(); got[0].ID != "p4" {
		t.Fatalf("expected p4 nearest, got %s", got[0].ID)
	}
}
