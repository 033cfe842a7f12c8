package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/sctid"
	"github.com/user/sctid/internal/store"
	"github.com/user/sctid/internal/strategy"
)

type fixture struct {
	svc   *Service
	store *store.MemoryStore
	reg   *reservation.MemoryRegistry
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	reg := reservation.NewMemoryRegistry()
	return &fixture{
		svc:   New(st, strategy.NewSequential(st, reg), reg, cfg),
		store: st,
		reg:   reg,
	}
}

func generate(t *testing.T, svc *Service, ns string, cat sctid.Category, quantity int) []string {
	t.Helper()
	ids, err := svc.Generate(context.Background(), ns, cat, quantity)
	if err != nil {
		t.Fatalf("Generate(%q, %s, %d): %v", ns, cat, quantity, err)
	}
	return ids
}

func TestGenerateSequentialAcrossNamespaces(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	if got := generate(t, f.svc, sctid.International, sctid.Concept, 3); !slices.Equal(got, []string{"100005", "101009", "102002"}) {
		t.Fatalf("international = %v", got)
	}
	if got := generate(t, f.svc, "1000129", sctid.Concept, 3); !slices.Equal(got, []string{"11000129102", "21000129106", "31000129108"}) {
		t.Fatalf("extension = %v", got)
	}
	if got := generate(t, f.svc, sctid.International, sctid.Concept, 1); !slices.Equal(got, []string{"103007"}) {
		t.Fatalf("next international = %v", got)
	}

	for _, id := range []string{"100005", "11000129102", "103007"} {
		status, err := f.svc.GetStatus(context.Background(), id)
		if err != nil || status != sctid.Assigned {
			t.Fatalf("GetStatus(%s) = %s, %v; want Assigned", id, status, err)
		}
	}
	if f.store.Len() != 7 {
		t.Fatalf("store has %d records, want 7", f.store.Len())
	}
}

func TestGenerateQuadraticProbing(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	if got := generate(t, f.svc, sctid.International, sctid.Concept, 1); got[0] != "100005" {
		t.Fatalf("first = %v", got)
	}
	added, err := f.svc.Register(ctx, []string{"101009", "102002"})
	if err != nil || len(added) != 2 {
		t.Fatalf("Register = %v, %v", added, err)
	}
	if got := generate(t, f.svc, sctid.International, sctid.Concept, 1); got[0] != "103007" {
		t.Fatalf("after out-of-band registrations = %v, want [103007]", got)
	}
}

func TestGenerateRespectsReservationUntilExhausted(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	var bulk []string
	for item := uint64(100); item <= 198; item++ {
		bulk = append(bulk, sctid.MustAssemble(item, sctid.International, sctid.Concept))
	}
	if bulk[len(bulk)-1] != "198007" {
		t.Fatalf("last bulk id = %s", bulk[len(bulk)-1])
	}
	if _, err := f.svc.Register(ctx, bulk); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := f.svc.CreateReservation(ctx, reservation.Range{
		Name:       "nothingAboveOneHundredNinetyNine",
		LowerBound: 200,
		UpperBound: 8999999999999999,
		Namespace:  reservation.Namespaced(sctid.International),
		Categories: []sctid.Category{sctid.Concept},
	})
	if err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}

	if got := generate(t, f.svc, sctid.International, sctid.Concept, 1); got[0] != "199004" {
		t.Fatalf("next = %v, want [199004]", got)
	}

	_, err = f.svc.Generate(ctx, sctid.International, sctid.Concept, 1)
	if !IsExhausted(err) {
		t.Fatalf("Generate with no room = %v, want ALLOCATION_EXHAUSTED", err)
	}
	want := "Couldn't generate 1 identifiers [CONCEPT, INT] in maximum (1000) number of attempts"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
	if f.store.Len() != 100 {
		t.Fatalf("store has %d records, want 100", f.store.Len())
	}

	// Other categories keep their whole space.
	if got := generate(t, f.svc, sctid.International, sctid.Description, 1); got[0] != "100014" {
		t.Fatalf("description = %v", got)
	}
}

func TestGenerateWrapsAround(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	max := sctid.MaxItemID(sctid.International)
	if _, err := f.store.CompareAndSwapCounter(ctx, sctid.International, sctid.Concept, 0, max-1); err != nil {
		t.Fatal(err)
	}
	// The low end is partly taken and partly reserved.
	if _, err := f.svc.Register(ctx, []string{"100005"}); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.CreateReservation(ctx, reservation.Range{Name: "low", LowerBound: 101, UpperBound: 102,
		Categories: []sctid.Category{sctid.Concept}}); err != nil {
		t.Fatal(err)
	}

	first := generate(t, f.svc, sctid.International, sctid.Concept, 1)
	if first[0] != "999999999999999006" {
		t.Fatalf("first = %v", first)
	}
	second := generate(t, f.svc, sctid.International, sctid.Concept, 1)
	prev, _ := sctid.Parse(first[0])
	next, _ := sctid.Parse(second[0])
	if next.ItemID >= prev.ItemID {
		t.Fatalf("no wraparound: %d after %d", next.ItemID, prev.ItemID)
	}
	if next.ItemID == 100 || (next.ItemID >= 101 && next.ItemID <= 102) {
		t.Fatalf("wrapped onto a registered or reserved id: %d", next.ItemID)
	}
}

// cyclingStrategy proposes ids from a fixed cycle, ignoring attempts.
type cyclingStrategy struct {
	mu    sync.Mutex
	cycle []uint64
	next  int
}

func (c *cyclingStrategy) Propose(_ context.Context, _ string, _ sctid.Category, quantity, _ int) ([]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, quantity)
	for len(out) < quantity {
		out = append(out, c.cycle[c.next%len(c.cycle)])
		c.next++
	}
	return out, nil
}

func TestGenerateExhaustionIsDeterministic(t *testing.T) {
	st := store.NewMemoryStore()
	reg := reservation.NewMemoryRegistry()
	svc := New(st, &cyclingStrategy{cycle: []uint64{1000, 1001}}, reg, Config{MaxAttempts: 5})

	for i := 0; i < 2; i++ {
		if _, err := svc.Generate(context.Background(), sctid.International, sctid.Concept, 1); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}
	_, err := svc.Generate(context.Background(), sctid.International, sctid.Concept, 1)
	want := "Couldn't generate 1 identifiers [CONCEPT, INT] in maximum (5) number of attempts"
	if err == nil || err.Error() != want {
		t.Fatalf("third Generate = %v, want %q", err, want)
	}
	if CodeOf(err) != ErrorCodeAllocationExhausted {
		t.Fatalf("code = %q", CodeOf(err))
	}
	if st.Len() != 2 {
		t.Fatalf("store has %d records, want 2", st.Len())
	}
}

func TestGenerateExhaustedPersistsNothing(t *testing.T) {
	st := store.NewMemoryStore()
	svc := New(st, &cyclingStrategy{cycle: []uint64{1, 2}}, reservation.NewMemoryRegistry(), Config{MaxAttempts: 3})
	_, err := svc.Generate(context.Background(), "1000129", sctid.Relationship, 3)
	want := "Couldn't generate 3 identifiers [RELATIONSHIP, 1000129] in maximum (3) number of attempts"
	if err == nil || err.Error() != want {
		t.Fatalf("Generate = %v, want %q", err, want)
	}
	if st.Len() != 0 {
		t.Fatalf("partial allocation persisted: %d records", st.Len())
	}
}

func TestGenerateStrategyOutOfIDs(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	ns := "1000129"
	if err := f.svc.CreateReservation(ctx, reservation.Range{Name: "most", LowerBound: 3, UpperBound: 99999999,
		Namespace: reservation.Namespaced(ns), Categories: []sctid.Category{sctid.Concept}}); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Generate(ctx, ns, sctid.Concept, 3)
	if !IsExhausted(err) || !errors.Is(err, strategy.ErrNoItemIDs) {
		t.Fatalf("Generate = %v, want exhausted wrapping ErrNoItemIDs", err)
	}
}

func TestGenerateRandomInSmallFreeSpace(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reg := reservation.NewMemoryRegistry()
	svc := New(st, strategy.NewRandom(reg, strategy.WithSeed(1)), reg, Config{MaxAttempts: 64})
	ns := "1000129"
	if err := svc.CreateReservation(ctx, reservation.Range{Name: "all-but-two", LowerBound: 3, UpperBound: 99999999,
		Namespace: reservation.Namespaced(ns), Categories: []sctid.Category{sctid.Concept}}); err != nil {
		t.Fatal(err)
	}
	free := []string{sctid.MustAssemble(1, ns, sctid.Concept), sctid.MustAssemble(2, ns, sctid.Concept)}

	first := generate(t, svc, ns, sctid.Concept, 1)
	if !slices.Contains(free, first[0]) {
		t.Fatalf("first = %v, want one of %v", first, free)
	}
	second := generate(t, svc, ns, sctid.Concept, 1)
	if !slices.Contains(free, second[0]) || second[0] == first[0] {
		t.Fatalf("second = %v after %v, want the other of %v", second, first, free)
	}

	_, err := svc.Generate(ctx, ns, sctid.Concept, 1)
	want := "Couldn't generate 1 identifiers [CONCEPT, 1000129] in maximum (64) number of attempts"
	if !IsExhausted(err) || err.Error() != want {
		t.Fatalf("Generate with both ids taken = %v, want %q", err, want)
	}
}

type existsFailStore struct {
	*store.MemoryStore
}

func (existsFailStore) ExistsAny(context.Context, []string) (map[string]struct{}, error) {
	return nil, store.NewUnavailableError("exists", errors.New("connection reset"))
}

func TestGenerateSurfacesStoreFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	st := existsFailStore{mem}
	reg := reservation.NewMemoryRegistry()
	svc := New(st, strategy.NewSequential(st, reg), reg, DefaultConfig())

	_, err := svc.Generate(context.Background(), sctid.International, sctid.Concept, 2)
	if !IsStoreUnavailable(err) {
		t.Fatalf("Generate = %v, want STORE_UNAVAILABLE", err)
	}
	if IsExhausted(err) {
		t.Fatal("store failure reported as exhaustion")
	}
	if mem.Len() != 0 {
		t.Fatalf("records written despite failure: %d", mem.Len())
	}

	mem.FailWith = errors.New("disk full")
	_, err = svc.Generate(context.Background(), sctid.International, sctid.Concept, 1)
	if !IsStoreUnavailable(err) {
		t.Fatalf("Generate with failing counter = %v, want STORE_UNAVAILABLE", err)
	}
	if _, err := svc.Register(context.Background(), []string{"100005"}); !IsStoreUnavailable(err) {
		t.Fatalf("Register = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if _, err := f.svc.Generate(context.Background(), "123", sctid.Concept, 1); CodeOf(err) != ErrorCodeInvalidNamespace {
		t.Fatalf("bad namespace = %v", err)
	}
	if _, err := f.svc.Generate(context.Background(), "", sctid.Category(9), 1); CodeOf(err) != ErrorCodeInvalidCategory {
		t.Fatalf("bad category = %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("Generate(0) did not panic")
		}
	}()
	_, _ = f.svc.Generate(context.Background(), "", sctid.Concept, 0)
}

func TestConcurrentGenerateIsUnique(t *testing.T) {
	t.Run("sequential", func(t *testing.T) {
		f := newFixture(t, DefaultConfig())
		assertConcurrentUnique(t, f.svc, f.store)
	})
	t.Run("random", func(t *testing.T) {
		st := store.NewMemoryStore()
		reg := reservation.NewMemoryRegistry()
		svc := New(st, strategy.NewRandom(reg, strategy.WithSeed(9)), reg, DefaultConfig())
		assertConcurrentUnique(t, svc, st)
	})
}

func assertConcurrentUnique(t *testing.T, svc *Service, st *store.MemoryStore) {
	t.Helper()
	const workers = 8
	const calls = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []string
	)
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Half the workers share one category, the rest spread out.
			cat := sctid.Concept
			if w%2 == 1 {
				cat = sctid.Categories[w%len(sctid.Categories)]
			}
			for i := 0; i < calls; i++ {
				ids, err := svc.Generate(context.Background(), sctid.International, cat, 5)
				if err != nil {
					errCh <- err
					return
				}
				mu.Lock()
				all = append(all, ids...)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("Generate: %v", err)
	}

	if len(all) != workers*calls*5 {
		t.Fatalf("got %d ids", len(all))
	}
	seen := make(map[string]bool, len(all))
	for _, id := range all {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if st.Len() != len(all) {
		t.Fatalf("store has %d records, want %d", st.Len(), len(all))
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	added, err := f.svc.Register(ctx, []string{"100005", "100005", "11000129102"})
	if err != nil || !slices.Equal(added, []string{"100005", "11000129102"}) {
		t.Fatalf("Register = %v, %v", added, err)
	}
	rec, err := f.store.Get(ctx, "11000129102")
	if err != nil || rec.Source != sctid.SourceRegistered || rec.Status != sctid.Assigned {
		t.Fatalf("registered record = %+v, %v", rec, err)
	}

	// Idempotent, and never downgrades a published id.
	if _, err := f.svc.Publish(ctx, []string{"100005"}); err != nil {
		t.Fatal(err)
	}
	added, err = f.svc.Register(ctx, []string{"100005"})
	if err != nil || len(added) != 0 {
		t.Fatalf("re-Register = %v, %v", added, err)
	}
	if status, _ := f.svc.GetStatus(ctx, "100005"); status != sctid.Published {
		t.Fatalf("status after re-register = %s", status)
	}

	// Generation skips registered ids.
	if got := generate(t, f.svc, sctid.International, sctid.Concept, 1); got[0] != "101009" {
		t.Fatalf("generate after register = %v", got)
	}
}

func TestRegisterRejectsMalformedBatch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	for _, bad := range []string{"100006", "100033", "12345", "abc123"} {
		_, err := f.svc.Register(context.Background(), []string{"101009", bad})
		if !IsInvalidIdentifier(err) {
			t.Fatalf("Register(%s) = %v, want INVALID_IDENTIFIER", bad, err)
		}
	}
	if f.store.Len() != 0 {
		t.Fatalf("malformed batch wrote %d records", f.store.Len())
	}
}

func TestStatusLifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	reg := reservation.NewMemoryRegistry()
	svc := New(st, strategy.NewSequential(st, reg), reg, DefaultConfig(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	ids := generate(t, svc, sctid.International, sctid.Description, 2)

	changed, err := svc.Publish(ctx, ids)
	if err != nil || len(changed) != 2 || changed[0].Status != sctid.Published {
		t.Fatalf("Publish = %+v, %v", changed, err)
	}
	changed, err = svc.Publish(ctx, ids)
	if err != nil || len(changed) != 0 {
		t.Fatalf("second Publish = %+v, %v; want no changes", changed, err)
	}

	now = now.Add(time.Hour)
	changed, err = svc.Deprecate(ctx, ids[:1])
	if err != nil || len(changed) != 1 || !changed[0].ModifiedAt.Equal(now) {
		t.Fatalf("Deprecate = %+v, %v", changed, err)
	}
	if _, err := svc.Publish(ctx, ids); !IsStatusConflict(err) {
		t.Fatalf("Publish deprecated = %v, want STATUS_CONFLICT", err)
	}
	if status, _ := svc.GetStatus(ctx, ids[1]); status != sctid.Published {
		t.Fatalf("rejected batch changed %s to %s", ids[1], status)
	}

	if _, err := svc.Deprecate(ctx, []string{sctid.MustAssemble(999999, "", sctid.Concept)}); !IsStatusConflict(err) {
		t.Fatalf("Deprecate available = %v, want STATUS_CONFLICT", err)
	}

	// Publishing an unknown id records it directly as published.
	changed, err = svc.Publish(ctx, []string{"21000129106"})
	if err != nil || len(changed) != 1 || changed[0].Source != sctid.SourceRegistered {
		t.Fatalf("Publish unknown = %+v, %v", changed, err)
	}
}

func TestGetStatusAndSctIDs(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	ids := generate(t, f.svc, sctid.International, sctid.Concept, 1)

	if status, err := f.svc.GetStatus(ctx, "101009"); err != nil || status != sctid.Available {
		t.Fatalf("GetStatus unknown = %s, %v", status, err)
	}
	if _, err := f.svc.GetStatus(ctx, "100006"); !IsInvalidIdentifier(err) {
		t.Fatalf("GetStatus bad checksum = %v", err)
	}

	recs, err := f.svc.GetSctIDs(ctx, []string{ids[0], "11000129102"})
	if err != nil {
		t.Fatalf("GetSctIDs: %v", err)
	}
	if recs[ids[0]].Status != sctid.Assigned || recs[ids[0]].Source != sctid.SourceGenerated {
		t.Fatalf("generated record = %+v", recs[ids[0]])
	}
	ext := recs["11000129102"]
	if ext.Status != sctid.Available || ext.Namespace != "1000129" || ext.ItemID != 1 {
		t.Fatalf("unknown record = %+v", ext)
	}
	if f.store.Len() != 1 {
		t.Fatal("GetSctIDs persisted available records")
	}
}

func TestCreateReservationLogsCategoryNames(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := newFixture(t, DefaultConfig())
	r := reservation.Range{Name: "pair", LowerBound: 100, UpperBound: 150,
		Categories: []sctid.Category{sctid.Concept, sctid.Relationship}}
	if err := f.svc.CreateReservation(context.Background(), r); err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	if !strings.Contains(buf.String(), "categories=CONCEPT,RELATIONSHIP") {
		t.Fatalf("log = %q", buf.String())
	}
}

func TestReservationManagement(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	r := reservation.Range{Name: "skip", LowerBound: 100, UpperBound: 150, Categories: []sctid.Category{sctid.Concept}}
	if err := f.svc.CreateReservation(ctx, r); err != nil {
		t.Fatal(err)
	}
	bad := reservation.Range{Name: "bad", LowerBound: 120, UpperBound: 200, Categories: []sctid.Category{sctid.Concept}}
	if err := f.svc.CreateReservation(ctx, bad); CodeOf(err) != ErrorCodeInvalidReservation {
		t.Fatalf("CreateReservation overlapping = %v", err)
	}
	list, err := f.svc.ListReservations(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "skip" {
		t.Fatalf("ListReservations = %+v, %v", list, err)
	}

	if got := generate(t, f.svc, sctid.International, sctid.Concept, 1); got[0] != sctid.MustAssemble(151, "", sctid.Concept) {
		t.Fatalf("generate = %v, want item 151", got)
	}

	if err := f.svc.DeleteReservation(ctx, "skip"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteReservation(ctx, "skip"); CodeOf(err) != ErrorCodeReservationNotFound {
		t.Fatalf("DeleteReservation missing = %v", err)
	}
}

func TestKeyedLocksRelease(t *testing.T) {
	k := newKeyedLocks()
	unlock := k.lock(lockKey{"", sctid.Concept}, lockKey{"1000129", sctid.Concept}, lockKey{"", sctid.Concept})
	if k.size() != 2 {
		t.Fatalf("size = %d, want 2", k.size())
	}
	done := make(chan struct{})
	go func() {
		u := k.lock(lockKey{"", sctid.Concept})
		u()
		close(done)
	}()
	unlock()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	if k.size() != 0 {
		t.Fatalf("size after release = %d", k.size())
	}
}

func ExampleService_Generate() {
	st := store.NewMemoryStore()
	reg := reservation.NewMemoryRegistry()
	svc := New(st, strategy.NewSequential(st, reg), reg, DefaultConfig())
	ids, _ := svc.Generate(context.Background(), "", sctid.Concept, 3)
	fmt.Println(ids)
	// Output: [100005 101009 102002]
}
