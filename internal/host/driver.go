package host

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sitosync/reasoner/internal/config"
	"github.com/sitosync/reasoner/internal/metrics"
	"github.com/sitosync/reasoner/internal/operation"
	"github.com/sitosync/reasoner/internal/provenance"
	"github.com/sitosync/reasoner/internal/reasoner"
)

// #region collaborators

// Arranger is the external event source: it polls whatever sensor feed
// or message bus delivers raw triggers and translates them into
// situation ids for one EG_TIMEOUT tick (§6's host driver contract).
type Arranger interface {
	PollTriggered(ctx context.Context) (map[int64]bool, error)
}

// Envelope wraps one SE_TIMEOUT cycle's operation sets with a
// correlation id so a downstream transport can dedupe or trace a batch
// across retries — the wire envelope §6 expects around the raw vectors.
type Envelope struct {
	ID       uuid.UUID
	IssuedAt time.Time
	Cycle    time.Duration
	Sets     [][]operation.VirtualOperation
}

// Emitter hands a generated operation envelope off to its transport — a
// wire connection to a downstream actuator, a replay sink, anything
// that can accept the causally-ordered sets GenerateOperations produces.
type Emitter interface {
	Emit(ctx context.Context, envelope Envelope) error
}

// #endregion collaborators

// #region driver

// Driver runs the three independently-timed loops the original
// Synchronizer drives: EG_TIMEOUT polls the arranger for fresh triggers,
// SE_TIMEOUT runs one reasoning cycle and emits its operations,
// SC_TIMEOUT applies decay-only upkeep between full cycles (§6).
type Driver struct {
	cfg       config.Config
	arranger  Arranger
	emitter   Emitter
	reasoner  *reasoner.Reasoner
	generator *operation.Generator
	log       *provenance.Log
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	pending   map[int64]bool
	startedAt time.Time
}

// New returns a driver wired to its collaborators. log may be nil if no
// durable provenance trail is wanted.
func New(cfg config.Config, arranger Arranger, emitter Emitter, r *reasoner.Reasoner, gen *operation.Generator, log *provenance.Log, logger *zap.SugaredLogger) *Driver {
	return &Driver{
		cfg:       cfg,
		arranger:  arranger,
		emitter:   emitter,
		reasoner:  r,
		generator: gen,
		log:       log,
		logger:    logger,
		pending:   make(map[int64]bool),
	}
}

// Run blocks until ctx is cancelled, driving all three timers
// concurrently via an errgroup. Each loop stops cleanly on
// cancellation; Run returns once all three have stopped.
func (d *Driver) Run(ctx context.Context) {
	d.startedAt = time.Now()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { d.runEventGathering(egCtx); return nil })
	eg.Go(func() error { d.runSynchronization(egCtx); return nil })
	eg.Go(func() error { d.runStateCheck(egCtx); return nil })
	_ = eg.Wait()
}

// Reload swaps in a reasoner and generator built against a freshly
// loaded graph, taking effect on the next EG/SE/SC tick. Safe to call
// concurrently with Run.
func (d *Driver) Reload(r *reasoner.Reasoner, gen *operation.Generator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasoner = r
	d.generator = gen
}

// runEventGathering is the EG_TIMEOUT loop: poll the arranger and fold
// whatever it reports into the pending trigger set for the next cycle.
func (d *Driver) runEventGathering(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.EGTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggered, err := d.arranger.PollTriggered(ctx)
			if err != nil {
				d.logger.Warnw("arranger poll failed", "error", err)
				continue
			}
			d.mu.Lock()
			for id := range triggered {
				d.pending[id] = true
			}
			d.mu.Unlock()
		}
	}
}

// runSynchronization is the SE_TIMEOUT loop: drain the pending trigger
// set, run one reasoning cycle, generate operations, and emit them.
func (d *Driver) runSynchronization(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SETimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

// runStateCheck is the SC_TIMEOUT loop: apply P8 decay only, without a
// full reasoning cycle, so short-lived triggers expire on schedule even
// between SE_TIMEOUT ticks.
func (d *Driver) runStateCheck(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SCTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			r := d.reasoner
			d.mu.Unlock()
			r.CheckState(time.Since(d.startedAt))
		}
	}
}

// runCycle drains the pending set, reasons over it, and emits whatever
// operations the generator produces.
func (d *Driver) runCycle(ctx context.Context) {
	d.mu.Lock()
	triggered := d.pending
	d.pending = make(map[int64]bool)
	r := d.reasoner
	gen := d.generator
	d.mu.Unlock()

	current := time.Since(d.startedAt)
	start := time.Now()
	fired := r.Reason(triggered, current)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	for id := range fired {
		gen.CacheEvent(id, true, current)
		metrics.TriggeredTotal.WithLabelValues("p1").Inc()
	}

	sets := gen.GenerateOperations(fired)
	if len(sets) == 0 {
		return
	}
	metrics.OperationsEmitted.WithLabelValues("cycle").Add(float64(len(sets)))

	envelope := Envelope{ID: uuid.New(), IssuedAt: time.Now(), Cycle: current, Sets: sets}
	if err := d.emitter.Emit(ctx, envelope); err != nil {
		d.logger.Warnw("operation emit failed", "envelope_id", envelope.ID, "error", err)
	}

	if d.log != nil {
		for _, set := range sets {
			for _, op := range set {
				entry := provenance.CycleEntry{
					Cycle:    current,
					NodeID:   op.ID,
					Decision: "emitted",
					Pass:     "operation",
					Counter:  op.Counter,
				}
				if err := d.log.Append(entry); err != nil {
					d.logger.Warnw("provenance append failed", "error", err)
				}
			}
		}
	}
}

// #endregion driver
