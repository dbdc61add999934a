// Package engine composes the recorder, monitor, validator, index, store,
// and event publisher into the operations the collaborators call. It owns
// the per-user session registry: at most one live claim session per user.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/clock"
	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/internal/events"
	"github.com/landloop/territory-engine/internal/index"
	"github.com/landloop/territory-engine/internal/logging"
	"github.com/landloop/territory-engine/internal/monitor"
	"github.com/landloop/territory-engine/internal/observability"
	"github.com/landloop/territory-engine/internal/session"
	"github.com/landloop/territory-engine/internal/store"
	"github.com/landloop/territory-engine/internal/validate"
	"github.com/landloop/territory-engine/model"
)

var (
	// ErrSessionExists rejects a second session for a user already tracking.
	ErrSessionExists = errors.New("an active session already exists for this user")
	// ErrNoSession indicates the user has no live session.
	ErrNoSession = errors.New("no active session for this user")
	// ErrStartInViolation rejects a session whose very first position
	// already violates a foreign territory. No tracking ever begins.
	ErrStartInViolation = errors.New("starting position violates a foreign territory")
)

// Accepted rings are thinned before persistence; a couple of metres is well
// under GPS accuracy and invisible on a map.
const simplifyToleranceM = 2.0

const tracerName = "github.com/landloop/territory-engine/internal/engine"

// Engine is the composition root of the claim engine.
type Engine struct {
	cfg     config.Config
	log     logging.Logger
	clk     clock.Clock
	idx     *index.Grid
	store   store.TerritoryStore
	events  events.Publisher
	metrics *observability.EngineCollector

	validator *validate.Validator
	monitor   *monitor.Monitor
	tracer    trace.Tracer

	mu       sync.Mutex
	sessions map[string]*entry
}

// entry pairs a session with its monitor loop and result watchers.
type entry struct {
	sess     *session.Session
	stop     chan struct{}
	stopOnce sync.Once
	watchers map[chan model.CollisionResult]struct{}
}

// Option customises engine construction.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option { return func(e *Engine) { e.log = l } }

// WithClock sets the clock driving monitor and refresh cadences.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clk = c } }

// WithEvents sets the event publisher.
func WithEvents(p events.Publisher) Option { return func(e *Engine) { e.events = p } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *observability.EngineCollector) Option { return func(e *Engine) { e.metrics = m } }

// New constructs an engine over the given index and store. Unset options
// default to a noop logger, the wall clock, and a noop publisher.
func New(cfg config.Config, idx *index.Grid, st store.TerritoryStore, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		log:      logging.Noop(),
		clk:      clock.Real{},
		idx:      idx,
		store:    st,
		events:   events.Noop{},
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.validator = validate.New(cfg, idx, e.log)
	e.monitor = monitor.New(cfg.Proximity, idx, e.log)
	e.tracer = otel.Tracer(tracerName)
	return e
}

// Status is a point-in-time snapshot of one session.
type Status struct {
	SessionID           string                `json:"session_id"`
	OwnerID             string                `json:"owner_id"`
	State               session.State         `json:"state"`
	StartedAt           time.Time             `json:"started_at"`
	Points              int                   `json:"points"`
	CumulativeDistanceM float64               `json:"cumulative_distance_m"`
	Closed              bool                  `json:"closed"`
	LastResult          model.CollisionResult `json:"last_result"`
}

// IngestResult reports what one submitted fix did to the session.
type IngestResult struct {
	Accepted            bool                  `json:"accepted"`
	Drop                session.DropReason    `json:"drop,omitempty"`
	SoftSpeedExceeded   bool                  `json:"soft_speed_exceeded,omitempty"`
	Points              int                   `json:"points"`
	CumulativeDistanceM float64               `json:"cumulative_distance_m"`
	Closed              bool                  `json:"closed"`
	LastResult          model.CollisionResult `json:"last_result"`
}

// StartSession opens a claim session for the owner at the given first fix.
// The starting position is evaluated immediately, outside the periodic
// cadence; if it already violates a foreign territory the session aborts
// before any tracking begins and ErrStartInViolation is returned alongside
// the violating result.
func (e *Engine) StartSession(ctx context.Context, ownerID string, first model.Fix) (Status, model.CollisionResult, error) {
	e.mu.Lock()
	if prev, ok := e.sessions[ownerID]; ok && !prev.sess.State().Terminal() {
		e.mu.Unlock()
		return Status{}, model.CollisionResult{}, ErrSessionExists
	}
	e.mu.Unlock()

	sess := session.New(ownerID, e.cfg.Ingest, e.clk.Now())
	res := e.monitor.Evaluate(ctx, ownerID, first.Point(), nil)
	e.metrics.ObserveGrade(res.GradeName)

	if res.Grade == model.GradeViolation {
		sess.Transition(session.StateAborted)
		e.publishViolation(ctx, sess, res, nil)
		return Status{}, res, ErrStartInViolation
	}

	sess.SetLastResult(res)
	sess.Do(func(rec *session.Recorder) {
		rec.Append(first)
	})

	ent := &entry{
		sess:     sess,
		stop:     make(chan struct{}),
		watchers: make(map[chan model.CollisionResult]struct{}),
	}

	e.mu.Lock()
	if prev, ok := e.sessions[ownerID]; ok && !prev.sess.State().Terminal() {
		e.mu.Unlock()
		return Status{}, model.CollisionResult{}, ErrSessionExists
	}
	e.sessions[ownerID] = ent
	e.metrics.SetActiveSessions(len(e.sessions))
	e.mu.Unlock()

	go e.monitorLoop(ent)

	e.log.Info(ctx, "session started",
		logging.String("session_id", sess.ID),
		logging.String("owner_id", ownerID),
		logging.String("grade", res.GradeName),
	)
	return e.status(ent), res, nil
}

// IngestFix feeds one GPS fix into the owner's live session.
func (e *Engine) IngestFix(ctx context.Context, ownerID string, f model.Fix) (IngestResult, error) {
	ent, err := e.live(ownerID)
	if err != nil {
		return IngestResult{}, err
	}

	var (
		ar     session.AppendResult
		points int
		distM  float64
		closed bool
	)
	ent.sess.Do(func(rec *session.Recorder) {
		ar = rec.Append(f)
		points = rec.PointCount()
		distM = rec.CumulativeDistanceM()
		closed = rec.IsClosed(e.cfg.Closure)
	})

	outcome := "accepted"
	if !ar.Accepted {
		outcome = string(ar.Drop)
	}
	e.metrics.ObserveFix(outcome)

	return IngestResult{
		Accepted:            ar.Accepted,
		Drop:                ar.Drop,
		SoftSpeedExceeded:   ar.SoftSpeedExceeded,
		Points:              points,
		CumulativeDistanceM: distM,
		Closed:              closed,
		LastResult:          ent.sess.LastResult(),
	}, nil
}

// CancelSession discards the owner's live session and its path.
func (e *Engine) CancelSession(ctx context.Context, ownerID string) error {
	ent, err := e.live(ownerID)
	if err != nil {
		return err
	}
	if !ent.sess.Transition(session.StateCancelled) {
		return ErrNoSession
	}
	e.remove(ownerID, ent)
	e.log.Info(ctx, "session cancelled",
		logging.String("session_id", ent.sess.ID),
		logging.String("owner_id", ownerID),
	)
	return nil
}

// CloseAndValidate runs the owner's recorded path through the validation
// pipeline. On acceptance the ring is simplified, submitted to the store,
// and the session ends validated; a store failure is surfaced and leaves the
// session tracking so the caller can retry the close. On rejection the
// session stays tracking so the user can keep walking and close again.
func (e *Engine) CloseAndValidate(ctx context.Context, ownerID string) (model.ClaimVerdict, string, error) {
	ent, err := e.live(ownerID)
	if err != nil {
		return model.ClaimVerdict{}, "", err
	}

	var verdict model.ClaimVerdict
	ent.sess.Do(func(rec *session.Recorder) {
		verdict = e.validator.Validate(ctx, ownerID, rec)
	})
	e.metrics.ObserveVerdict(string(verdict.Reason))

	if !verdict.Accepted {
		e.log.Info(ctx, "claim rejected",
			logging.String("session_id", ent.sess.ID),
			logging.String("owner_id", ownerID),
			logging.String("reason", string(verdict.Reason)),
		)
		e.publishClaim(ctx, ent.sess, verdict, "")
		return verdict, "", nil
	}

	verdict.Draft.Ring = store.SimplifyRing(verdict.Draft.Ring, simplifyToleranceM)
	territoryID, err := e.store.SubmitClaim(ctx, verdict.Draft)
	if err != nil {
		e.log.Error(ctx, "claim submission failed",
			logging.String("session_id", ent.sess.ID),
			logging.Err(err),
		)
		return verdict, "", err
	}

	if !ent.sess.Transition(session.StateValidated) {
		// Lost a race with an abort; the territory is persisted regardless.
		return verdict, territoryID, nil
	}
	e.remove(ownerID, ent)
	e.publishClaim(ctx, ent.sess, verdict, territoryID)

	e.log.Info(ctx, "claim accepted",
		logging.String("session_id", ent.sess.ID),
		logging.String("owner_id", ownerID),
		logging.String("territory_id", territoryID),
		logging.Float64("area_m2", verdict.Draft.AreaSquareMeters),
	)
	return verdict, territoryID, nil
}

// SessionState returns a snapshot of the owner's live session.
func (e *Engine) SessionState(ownerID string) (Status, error) {
	ent, err := e.live(ownerID)
	if err != nil {
		return Status{}, err
	}
	return e.status(ent), nil
}

// Subscribe streams every proximity evaluation for the owner's live session.
// The channel closes when the session ends. The returned cancel function
// detaches the watcher and is safe to call more than once.
func (e *Engine) Subscribe(ownerID string) (<-chan model.CollisionResult, func(), error) {
	ent, err := e.live(ownerID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan model.CollisionResult, 16)
	e.mu.Lock()
	if ent.watchers == nil {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	ent.watchers[ch] = struct{}{}
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if ent.watchers != nil {
			if _, ok := ent.watchers[ch]; ok {
				delete(ent.watchers, ch)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

// RefreshSnapshot reloads the configured region from the store and swaps the
// index to the fresh snapshot in one step.
func (e *Engine) RefreshSnapshot(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "snapshot.refresh")
	defer span.End()

	started := e.clk.Now()
	territories, err := e.store.TerritoriesInRegion(ctx, e.region())
	if err != nil {
		span.RecordError(err)
		return err
	}
	e.idx.Load(territories)
	span.SetAttributes(attribute.Int("snapshot.territories", e.idx.Len()))
	took := e.clk.Now().Sub(started)
	e.metrics.ObserveSnapshot(e.idx.Len(), took)
	e.log.Debug(ctx, "snapshot refreshed",
		logging.Int("territories", e.idx.Len()),
		logging.Duration("took", took),
	)
	return nil
}

// Run refreshes the snapshot immediately and then on the configured cadence
// until the context ends.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.RefreshSnapshot(ctx); err != nil {
		e.log.Warn(ctx, "initial snapshot refresh failed", logging.Err(err))
	}
	ticker := e.clk.NewTicker(e.cfg.Snapshot.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := e.RefreshSnapshot(ctx); err != nil {
				e.log.Warn(ctx, "snapshot refresh failed", logging.Err(err))
			}
		}
	}
}

// Close stops every live session's monitor loop. Sessions are in-memory only
// and do not survive shutdown.
func (e *Engine) Close() {
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.sessions))
	for _, ent := range e.sessions {
		entries = append(entries, ent)
	}
	e.mu.Unlock()
	for _, ent := range entries {
		ent.sess.Transition(session.StateCancelled)
		e.remove(ent.sess.OwnerID, ent)
	}
}

// monitorLoop re-evaluates the session on the proximity cadence until the
// session ends. Evaluation reads a copy of the path, so ingestion is never
// blocked for the duration of a geometry pass.
func (e *Engine) monitorLoop(ent *entry) {
	ticker := e.clk.NewTicker(e.cfg.Proximity.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ent.stop:
			return
		case <-ticker.C():
			if e.evaluate(context.Background(), ent) {
				return
			}
		}
	}
}

// evaluate runs one proximity pass, reporting whether the session was
// aborted for a violation.
func (e *Engine) evaluate(ctx context.Context, ent *entry) bool {
	var (
		current geo.Point
		ok      bool
		path    []geo.Point
	)
	ent.sess.Do(func(rec *session.Recorder) {
		current, ok = rec.CurrentPosition()
		path = rec.Points()
	})
	if !ok || ent.sess.State().Terminal() {
		return false
	}

	res := e.monitor.Evaluate(ctx, ent.sess.OwnerID, current, path)
	ent.sess.SetLastResult(res)
	e.metrics.ObserveGrade(res.GradeName)
	e.notify(ent, res)

	if res.Grade != model.GradeViolation {
		return false
	}
	if !ent.sess.Transition(session.StateAborted) {
		return true
	}
	e.publishViolation(ctx, ent.sess, res, path)
	e.remove(ent.sess.OwnerID, ent)
	e.log.Warn(ctx, "session aborted on violation",
		logging.String("session_id", ent.sess.ID),
		logging.String("owner_id", ent.sess.OwnerID),
		logging.String("territory_id", res.TerritoryID),
	)
	return true
}

// notify fans the result out to watchers. Sends never block; a watcher that
// stopped draining loses ticks, not the session.
func (e *Engine) notify(ent *entry, res model.CollisionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range ent.watchers {
		select {
		case ch <- res:
		default:
		}
	}
}

func (e *Engine) publishClaim(ctx context.Context, sess *session.Session, verdict model.ClaimVerdict, territoryID string) {
	ev := events.ClaimEvent{
		SessionID:   sess.ID,
		OwnerID:     sess.OwnerID,
		Accepted:    verdict.Accepted,
		Reason:      verdict.Reason,
		ConflictID:  verdict.ConflictTerritoryID,
		TerritoryID: territoryID,
		At:          e.clk.Now(),
	}
	if verdict.Draft != nil {
		ev.AreaM2 = verdict.Draft.AreaSquareMeters
	}
	if err := e.events.PublishClaim(ctx, ev); err != nil {
		e.log.Warn(ctx, "claim event publish failed", logging.Err(err))
	}
}

func (e *Engine) publishViolation(ctx context.Context, sess *session.Session, res model.CollisionResult, path []geo.Point) {
	ev := events.ViolationEvent{
		SessionID:   sess.ID,
		OwnerID:     sess.OwnerID,
		Kind:        res.Kind,
		TerritoryID: res.TerritoryID,
		At:          e.clk.Now(),
	}
	if len(path) >= 2 {
		if raw, err := store.MarshalPath(path); err == nil {
			ev.PathGeoJSON = raw
		}
	}
	if err := e.events.PublishViolation(ctx, ev); err != nil {
		e.log.Warn(ctx, "violation event publish failed", logging.Err(err))
	}
}

// live returns the owner's entry if the session is still tracking.
func (e *Engine) live(ownerID string) (*entry, error) {
	e.mu.Lock()
	ent, ok := e.sessions[ownerID]
	e.mu.Unlock()
	if !ok || ent.sess.State().Terminal() {
		return nil, ErrNoSession
	}
	return ent, nil
}

// remove drops the entry from the registry, stops its monitor loop, and
// closes its watchers.
func (e *Engine) remove(ownerID string, ent *entry) {
	ent.stopOnce.Do(func() { close(ent.stop) })
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.sessions[ownerID]; ok && cur == ent {
		delete(e.sessions, ownerID)
	}
	for ch := range ent.watchers {
		close(ch)
	}
	ent.watchers = nil
	e.metrics.SetActiveSessions(len(e.sessions))
}

func (e *Engine) status(ent *entry) Status {
	st := Status{
		SessionID:  ent.sess.ID,
		OwnerID:    ent.sess.OwnerID,
		State:      ent.sess.State(),
		StartedAt:  ent.sess.StartedAt,
		LastResult: ent.sess.LastResult(),
	}
	ent.sess.Do(func(rec *session.Recorder) {
		st.Points = rec.PointCount()
		st.CumulativeDistanceM = rec.CumulativeDistanceM()
		st.Closed = rec.IsClosed(e.cfg.Closure)
	})
	return st
}

// region returns the serving region, defaulting to the whole world when the
// config leaves it zero.
func (e *Engine) region() geo.BBox {
	r := e.cfg.Snapshot.Region
	if r == (config.RegionBox{}) {
		return geo.BBox{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}
	}
	return geo.BBox{MinLat: r.MinLat, MinLon: r.MinLon, MaxLat: r.MaxLat, MaxLon: r.MaxLon}
}
