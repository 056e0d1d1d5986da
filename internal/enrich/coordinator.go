package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pbaille/cvvault/internal/domain"
	"github.com/pbaille/cvvault/internal/metrics"
)

// Reflector turns an entry snapshot into reflection text.
type Reflector interface {
	Reflect(ctx context.Context, entry domain.Entry) string
}

// Entries is the part of the repository the coordinator reads and writes.
type Entries interface {
	Get(kind domain.Kind, id string) (domain.Entry, bool)
	SetReflection(ctx context.Context, kind domain.Kind, id, text string) (bool, error)
}

// Resolution describes a finished enrichment.
type Resolution struct {
	Kind    domain.Kind
	ID      string
	Text    string
	Applied bool // false when the entry was deleted while pending
	Err     error
}

type pendingKey struct {
	kind domain.Kind
	id   string
}

// Coordinator runs at most one enrichment per (kind, id) at a time.
// Different entries may be enriched concurrently.
type Coordinator struct {
	entries    Entries
	reflector  Reflector
	timeout    time.Duration
	log        *slog.Logger
	metrics    metrics.Recorder
	onResolved []func(Resolution)

	mu      sync.Mutex
	pending map[pendingKey]struct{}
	wg      sync.WaitGroup
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTimeout bounds each text-generation call; expiry resolves to the
// failure fallback.
func WithTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

func WithCoordinatorMetrics(m metrics.Recorder) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// OnResolved registers fn to run after each enrichment is written back.
func OnResolved(fn func(Resolution)) CoordinatorOption {
	return func(c *Coordinator) { c.onResolved = append(c.onResolved, fn) }
}

func NewCoordinator(entries Entries, reflector Reflector, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		entries:   entries,
		reflector: reflector,
		log:       slog.Default(),
		metrics:   metrics.Nop{},
		pending:   make(map[pendingKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "coordinator")
	return c
}

// Trigger starts enriching entry id in the background. It returns false
// when that entry is already pending or does not exist.
func (c *Coordinator) Trigger(ctx context.Context, kind domain.Kind, id string) bool {
	k := pendingKey{kind: kind, id: id}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.pending[k]; busy {
		c.metrics.RecordTrigger(string(kind), false)
		c.log.Debug("enrichment already pending", "kind", kind, "id", id)
		return false
	}

	entry, ok := c.entries.Get(kind, id)
	if !ok {
		c.metrics.RecordTrigger(string(kind), false)
		c.log.Debug("enrichment target not found", "kind", kind, "id", id)
		return false
	}

	c.pending[k] = struct{}{}
	c.metrics.RecordTrigger(string(kind), true)
	c.metrics.SetPending(len(c.pending))

	c.wg.Add(1)
	go c.run(context.WithoutCancel(ctx), k, entry)
	return true
}

func (c *Coordinator) run(ctx context.Context, k pendingKey, entry domain.Entry) {
	defer c.wg.Done()

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text := c.reflector.Reflect(callCtx, entry)

	res := Resolution{Kind: k.kind, ID: k.id, Text: text}
	res.Applied, res.Err = c.entries.SetReflection(ctx, k.kind, k.id, text)

	log := c.log.With("kind", k.kind, "id", k.id)
	switch {
	case res.Err != nil:
		log.Error("write reflection failed", "error", res.Err)
	case !res.Applied:
		log.Info("entry deleted while pending, reflection discarded")
	default:
		log.Info("reflection stored")
	}

	c.mu.Lock()
	delete(c.pending, k)
	c.metrics.SetPending(len(c.pending))
	c.mu.Unlock()

	for _, fn := range c.onResolved {
		fn(res)
	}
}

// IsPending reports whether entry id is being enriched.
func (c *Coordinator) IsPending(kind domain.Kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[pendingKey{kind: kind, id: id}]
	return ok
}

// Pending returns the number of in-flight enrichments.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Wait blocks until every triggered enrichment has resolved.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
