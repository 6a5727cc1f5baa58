package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karaqr/realtime/internal/model"
)

// QueueSource provides the queue entries to snapshot.
type QueueSource interface {
	List(ctx context.Context, tenantID string) ([]model.QueueEntry, error)
}

// SnapshotHandler receives queue snapshots.
type SnapshotHandler interface {
	HandleSnapshot(entries []model.QueueEntry)
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func([]model.QueueEntry)

func (f SnapshotHandlerFunc) HandleSnapshot(entries []model.QueueEntry) {
	f(entries)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 5s)
	Timeout  time.Duration // Per-read timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Poller periodically re-reads a tenant's queue.
type Poller struct {
	cfg      Config
	tenantID string
	source   QueueSource
	handler  SnapshotHandler
	logger   *slog.Logger

	mu       sync.Mutex
	snapshot []model.QueueEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, tenantID string, source QueueSource, handler SnapshotHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		tenantID: tenantID,
		source:   source,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("queue poller started",
		"tenant_id", p.tenantID,
		"interval", p.cfg.Interval,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("queue poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the most recent successful read.
func (p *Poller) Snapshot() []model.QueueEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.QueueEntry(nil), p.snapshot...)
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll reads the queue once. On failure the previous snapshot stands.
func (p *Poller) poll() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	entries, err := p.source.List(ctx, p.tenantID)
	if err != nil {
		p.logger.Warn("failed to read queue, keeping previous snapshot",
			"tenant_id", p.tenantID,
			"err", err,
		)
		return
	}

	p.mu.Lock()
	p.snapshot = entries
	p.mu.Unlock()

	if p.handler != nil {
		p.handler.HandleSnapshot(entries)
	}

	p.logger.Debug("queue snapshot refreshed",
		"entries", len(entries),
		"duration", time.Since(start),
	)
}
