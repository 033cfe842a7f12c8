// Package service orchestrates identifier allocation: it drives a
// generation strategy, filters proposals against the identifier store,
// persists the survivors and manages identifier status and reservations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/sctid/internal/observability"
	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/sctid"
	"github.com/user/sctid/internal/store"
	"github.com/user/sctid/internal/strategy"
)

// DefaultMaxAttempts bounds the strategy calls made by one Generate.
const DefaultMaxAttempts = 1000

// Config holds Service settings.
type Config struct {
	MaxAttempts int
}

// DefaultConfig returns the default Service settings.
func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts}
}

// Service is the identifier allocation engine.
//
// Generate and Register hold a mutex per (namespace, category) from the
// strategy proposal through the store upsert, so the existence check and
// the write form a single linearization point. Reservation changes
// exclude all allocation while they run.
type Service struct {
	store        store.IdentifierStore
	strategy     strategy.Strategy
	reservations reservation.Registry
	cfg          Config

	locks *keyedLocks
	resMu sync.RWMutex

	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

// WithMetrics records allocation metrics into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service. A non-positive cfg.MaxAttempts falls back to
// DefaultMaxAttempts.
func New(st store.IdentifierStore, strat strategy.Strategy, reg reservation.Registry, cfg Config, opts ...Option) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	s := &Service{
		store:        st,
		strategy:     strat,
		reservations: reg,
		cfg:          cfg,
		locks:        newKeyedLocks(),
		tracer:       observability.Tracer(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxAttempts returns the configured attempt budget.
func (s *Service) MaxAttempts() int {
	return s.cfg.MaxAttempts
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Generate allocates quantity new identifiers in namespace ns and category
// cat and records them as Assigned. The result keeps proposal order. On
// failure nothing is persisted.
//
// Generate panics if quantity is not positive.
func (s *Service) Generate(ctx context.Context, ns string, cat sctid.Category, quantity int) ([]string, error) {
	if quantity <= 0 {
		panic(fmt.Sprintf("service: generate quantity must be positive, got %d", quantity))
	}
	if err := sctid.ValidateNamespace(ns); err != nil {
		return nil, &Error{Code: ErrorCodeInvalidNamespace, Msg: err.Error(), Err: err}
	}
	if !cat.Valid() {
		return nil, &Error{Code: ErrorCodeInvalidCategory, Msg: fmt.Sprintf("unknown component category %d", uint8(cat))}
	}

	nsLabel := sctid.NamespaceLabel(ns)
	ctx, span := s.tracer.Start(ctx, "sctid.generate", trace.WithAttributes(
		attribute.String("sctid.namespace", nsLabel),
		attribute.String("sctid.category", cat.String()),
		attribute.Int("sctid.quantity", quantity),
	))
	defer span.End()

	s.resMu.RLock()
	defer s.resMu.RUnlock()
	unlock := s.locks.lock(lockKey{ns, cat})
	defer unlock()

	collected := make([]string, 0, quantity)
	seen := make(map[string]struct{}, quantity)
	attempt := 0
	for ; len(collected) < quantity && attempt < s.cfg.MaxAttempts; attempt++ {
		needed := quantity - len(collected)
		itemIDs, err := s.strategy.Propose(ctx, ns, cat, needed, attempt)
		if err != nil {
			if errors.Is(err, strategy.ErrNoItemIDs) {
				s.metrics.Exhausted(nsLabel, cat.String())
				err = exhaustedError(quantity, ns, cat, s.cfg.MaxAttempts, err)
				spanError(span, err)
				return nil, err
			}
			if store.IsUnavailable(err) {
				err = storeUnavailable(err)
			} else {
				err = fmt.Errorf("propose item ids: %w", err)
			}
			spanError(span, err)
			return nil, err
		}

		candidates := make([]string, 0, len(itemIDs))
		for _, itemID := range itemIDs {
			id, err := sctid.Assemble(itemID, ns, cat)
			if err != nil {
				err = fmt.Errorf("assemble proposed item id %d: %w", itemID, err)
				spanError(span, err)
				return nil, err
			}
			if _, dup := seen[id]; dup {
				continue
			}
			candidates = append(candidates, id)
		}

		existing, err := s.store.ExistsAny(ctx, candidates)
		if err != nil {
			err = storeUnavailable(err)
			spanError(span, err)
			return nil, err
		}
		s.metrics.Collisions(nsLabel, cat.String(), len(existing))
		for _, id := range candidates {
			if _, taken := existing[id]; taken {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			collected = append(collected, id)
		}
	}
	s.metrics.Attempts(cat.String(), attempt)
	span.SetAttributes(attribute.Int("sctid.attempts", attempt))

	if len(collected) < quantity {
		s.metrics.Exhausted(nsLabel, cat.String())
		err := exhaustedError(quantity, ns, cat, s.cfg.MaxAttempts, nil)
		slog.Warn("identifier allocation exhausted",
			"namespace", nsLabel, "category", cat, "quantity", quantity, "max_attempts", s.cfg.MaxAttempts)
		spanError(span, err)
		return nil, err
	}

	now := s.now()
	records := make([]sctid.Record, 0, len(collected))
	for _, id := range collected {
		r, err := sctid.NewRecord(id, sctid.Assigned, sctid.SourceGenerated, now)
		if err != nil {
			return nil, fmt.Errorf("build record %s: %w", id, err)
		}
		records = append(records, r)
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		err = storeUnavailable(err)
		spanError(span, err)
		return nil, err
	}

	s.metrics.Generated(nsLabel, cat.String(), len(collected))
	slog.Debug("generated identifiers",
		"namespace", nsLabel, "category", cat, "quantity", quantity, "attempts", attempt)
	return collected, nil
}

// parseAll validates every id before any work is done and returns the
// de-duplicated ids in input order with their records.
func parseAll(ids []string, now time.Time) ([]string, map[string]sctid.Record, error) {
	order := make([]string, 0, len(ids))
	recs := make(map[string]sctid.Record, len(ids))
	for _, id := range ids {
		if _, dup := recs[id]; dup {
			continue
		}
		r, err := sctid.NewRecord(id, sctid.Available, "", now)
		if err != nil {
			return nil, nil, invalidIdentifier(id, err)
		}
		recs[id] = r
		order = append(order, id)
	}
	return order, recs, nil
}

func keysOf(recs map[string]sctid.Record) []lockKey {
	keys := make([]lockKey, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, lockKey{r.Namespace, r.Category})
	}
	return keys
}

// Register records externally allocated identifiers as Assigned. Ids that
// already have a record are left untouched. It returns the ids that were
// newly recorded, in input order. A malformed id rejects the whole batch.
func (s *Service) Register(ctx context.Context, ids []string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "sctid.register", trace.WithAttributes(attribute.Int("sctid.count", len(ids))))
	defer span.End()

	order, recs, err := parseAll(ids, s.now())
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	if len(order) == 0 {
		return nil, nil
	}

	s.resMu.RLock()
	defer s.resMu.RUnlock()
	unlock := s.locks.lock(keysOf(recs)...)
	defer unlock()

	existing, err := s.store.ExistsAny(ctx, order)
	if err != nil {
		err = storeUnavailable(err)
		spanError(span, err)
		return nil, err
	}

	var (
		added   []string
		records []sctid.Record
	)
	for _, id := range order {
		if _, ok := existing[id]; ok {
			continue
		}
		r := recs[id]
		r.Status = sctid.Assigned
		r.Source = sctid.SourceRegistered
		records = append(records, r)
		added = append(added, id)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		err = storeUnavailable(err)
		spanError(span, err)
		return nil, err
	}
	for _, r := range records {
		s.metrics.Registered(sctid.NamespaceLabel(r.Namespace), r.Category.String(), 1)
	}
	slog.Debug("registered identifiers", "requested", len(order), "added", len(added))
	return added, nil
}

// GetStatus returns the status of id; unknown identifiers are Available.
func (s *Service) GetStatus(ctx context.Context, id string) (sctid.Status, error) {
	if _, err := sctid.Parse(id); err != nil {
		return sctid.Available, invalidIdentifier(id, err)
	}
	r, err := s.store.Get(ctx, id)
	if store.IsNotFound(err) {
		return sctid.Available, nil
	}
	if err != nil {
		return sctid.Available, storeUnavailable(err)
	}
	return r.Status, nil
}

// GetSctIDs returns the record of every id. Ids without a stored record are
// reported as Available records built from the parsed id.
func (s *Service) GetSctIDs(ctx context.Context, ids []string) (map[string]sctid.Record, error) {
	order, recs, err := parseAll(ids, time.Time{})
	if err != nil {
		return nil, err
	}
	found, err := s.store.GetMany(ctx, order)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	for id, r := range found {
		recs[id] = r
	}
	return recs, nil
}

// Publish moves ids to Published. Already published ids are skipped; a
// deprecated id rejects the batch. It returns the records that changed.
func (s *Service) Publish(ctx context.Context, ids []string) ([]sctid.Record, error) {
	return s.transition(ctx, "sctid.publish", ids, sctid.Published)
}

// Deprecate moves ids to Deprecated. Already deprecated ids are skipped; an
// available id rejects the batch. It returns the records that changed.
func (s *Service) Deprecate(ctx context.Context, ids []string) ([]sctid.Record, error) {
	return s.transition(ctx, "sctid.deprecate", ids, sctid.Deprecated)
}

func (s *Service) transition(ctx context.Context, spanName string, ids []string, target sctid.Status) ([]sctid.Record, error) {
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.Int("sctid.count", len(ids))))
	defer span.End()

	now := s.now()
	order, recs, err := parseAll(ids, now)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	if len(order) == 0 {
		return nil, nil
	}

	unlock := s.locks.lock(keysOf(recs)...)
	defer unlock()

	found, err := s.store.GetMany(ctx, order)
	if err != nil {
		err = storeUnavailable(err)
		spanError(span, err)
		return nil, err
	}

	var changed []sctid.Record
	for _, id := range order {
		cur, ok := found[id]
		if !ok {
			cur = recs[id]
			cur.Source = sctid.SourceRegistered
		}
		if cur.Status == target {
			continue
		}
		if !cur.Status.CanTransition(target) {
			err := statusConflict(id, cur.Status, target)
			spanError(span, err)
			return nil, err
		}
		cur.Status = target
		cur.ModifiedAt = now
		changed = append(changed, cur)
	}
	if len(changed) == 0 {
		return nil, nil
	}
	if err := s.store.Upsert(ctx, changed); err != nil {
		err = storeUnavailable(err)
		spanError(span, err)
		return nil, err
	}
	s.metrics.Transitioned(target.String(), len(changed))
	slog.Debug("identifier status changed", "status", target, "count", len(changed))
	return changed, nil
}

// CreateReservation adds a reservation range.
func (s *Service) CreateReservation(ctx context.Context, r reservation.Range) error {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	if err := s.reservations.Create(ctx, r); err != nil {
		return err
	}
	slog.Info("reservation created", "name", r.Name, "lower", r.LowerBound, "upper", r.UpperBound,
		"namespace", r.NamespaceLabel(), "categories", strings.Join(r.CategoryLabels(), ","))
	return nil
}

// DeleteReservation removes the named reservation range.
func (s *Service) DeleteReservation(ctx context.Context, name string) error {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	if err := s.reservations.Delete(ctx, name); err != nil {
		return err
	}
	slog.Info("reservation deleted", "name", name)
	return nil
}

// ListReservations returns every reservation range ordered by lower bound.
func (s *Service) ListReservations(ctx context.Context) ([]reservation.Range, error) {
	return s.reservations.List(ctx)
}
