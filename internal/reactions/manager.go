package reactions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	HandshakeTimeout   time.Duration // Bound on the subscribe handshake
	CloseTimeout       time.Duration // Bound on clean channel teardown
	MinConnectInterval time.Duration // Minimum spacing between connect attempts
	BaseDelay          time.Duration // First reconnect delay, doubled per attempt
	MaxDelay           time.Duration // Cap on any computed reconnect delay
	MaxJitter          time.Duration // Upper bound of the jitter draw
	MaxAttempts        int           // Retry budget before a terminal failure
	FeedLimit          int           // Activity feed bound
	EchoSelf           bool          // Relay echoes our own broadcasts back
	RequireAck         bool          // Relay acknowledges each publish
}

// DefaultManagerConfig returns sensible defaults. The handshake timeout is
// long enough to tolerate slow venue networks, short enough to fail fast.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HandshakeTimeout:   30 * time.Second,
		CloseTimeout:       10 * time.Second,
		MinConnectInterval: 5 * time.Second,
		BaseDelay:          1 * time.Second,
		MaxDelay:           30 * time.Second,
		MaxJitter:          1 * time.Second,
		MaxAttempts:        5,
		FeedLimit:          200,
		EchoSelf:           true,
		RequireAck:         true,
	}
}

// Hooks are optional observation callbacks, used to feed metrics without
// coupling this package to a metrics backend. All fields may be nil.
type Hooks struct {
	StateChanged     func(State)
	RetryScheduled   func(attempt int, delay time.Duration)
	RetriesExhausted func()
	MessageHandled   func(kind string)
	MessageDiscarded func(reason string)
}

// Manager owns the lifecycle of exactly one broadcast channel per topic and
// hides retry complexity behind a connect/disconnect/status surface.
//
// At most one underlying channel handle is open at a time; a new connect
// attempt tears down any prior handle before opening another. All state is
// mutated only through Manager entry points, never by message handlers.
type Manager struct {
	cfg      ManagerConfig
	policy   Policy
	provider Provider
	agg      *Aggregator
	logger   *slog.Logger
	hooks    Hooks
	now      func() time.Time

	// opMu serializes connect/disconnect/reconnect operations so only one
	// attempt is ever in flight.
	opMu sync.Mutex

	mu          sync.Mutex
	state       State
	tenantID    string
	channel     Channel
	gen         uint64 // attempt generation; stale callbacks are ignored
	intentional bool   // caller-initiated teardown in progress
	rec         ReconnectState
	retryTimer  *time.Timer
	retrySeq    uint64
	watchStop   chan struct{}

	connection *Signal[bool]
	stateSig   *Signal[State]
}

// NewManager creates a Manager using the given channel provider.
func NewManager(cfg ManagerConfig, provider Provider, logger *slog.Logger, hooks Hooks) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg: cfg,
		policy: Policy{
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			MaxJitter:   cfg.MaxJitter,
			MaxAttempts: cfg.MaxAttempts,
		},
		provider:   provider,
		agg:        NewAggregator(cfg.FeedLimit, logger, hooks),
		logger:     logger,
		hooks:      hooks,
		now:        time.Now,
		state:      StateDisconnected,
		connection: NewSignal(false),
		stateSig:   NewSignal(StateDisconnected),
	}
}

// Connect opens the reaction channel for a tenant. It resolves once the
// provider reports a subscribed status, or fails on an error status or the
// handshake timeout. On a non-intentional failure exactly one retry is
// scheduled per the reconnection policy.
//
// Once the retry budget is exhausted, further Connect calls for the same
// tenant fail with ErrRetriesExhausted until ForceReconnect is invoked.
func (m *Manager) Connect(ctx context.Context, tenantID string) (ConnectResult, error) {
	if tenantID == "" {
		return ConnectResult{Message: "tenant id required"}, ErrNoTenant
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if tenantID != m.tenantID {
		// New tenant, new session: fresh retry budget.
		m.rec = ReconnectState{}
	} else if m.rec.Attempts >= m.policy.MaxAttempts && !m.rec.Reconnecting {
		m.mu.Unlock()
		return ConnectResult{Message: "retry budget exhausted"}, ErrRetriesExhausted
	}
	m.tenantID = tenantID
	m.cancelRetryLocked()
	m.mu.Unlock()

	return m.connectAttempt(ctx)
}

// Disconnect closes the channel intentionally: no retry is scheduled, any
// pending reconnect timer is cancelled, and provider-side close errors are
// logged but never surfaced. Idempotent; a no-op with no open channel.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.intentional = true
	m.cancelRetryLocked()
	old := m.channel
	m.channel = nil
	m.gen++
	m.stopWatchLocked()
	wasIdle := old == nil && m.state == StateDisconnected
	m.state = StateDisconnected
	m.mu.Unlock()

	if wasIdle {
		m.mu.Lock()
		m.intentional = false
		m.mu.Unlock()
		return nil
	}

	m.notifyState(StateDisconnected)
	m.connection.Set(false)

	if old != nil {
		done := make(chan error, 1)
		go func() { done <- old.Close() }()

		select {
		case err := <-done:
			if err != nil {
				m.logger.Warn("error closing reactions channel", "error", err)
			}
		case <-time.After(m.cfg.CloseTimeout):
			// Forced cleanup takes priority over clean teardown.
			m.logger.Warn("channel close timed out, forcing local cleanup")
		case <-ctx.Done():
			m.logger.Warn("disconnect cancelled, forcing local cleanup")
		}
	}

	m.mu.Lock()
	m.intentional = false
	m.mu.Unlock()

	m.logger.Info("reactions channel disconnected")
	return nil
}

// ForceReconnect resets the retry budget and reconnects to the last-known
// tenant. Fails with ErrNoTenant if Connect was never called.
func (m *Manager) ForceReconnect(ctx context.Context) (ConnectResult, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.tenantID == "" {
		m.mu.Unlock()
		return ConnectResult{Message: "no tenant has been connected"}, ErrNoTenant
	}
	m.cancelRetryLocked()
	m.rec.Attempts = 0
	m.mu.Unlock()

	return m.connectAttempt(ctx)
}

// IsConnected reports whether the channel is currently subscribed.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectInfo returns a snapshot of the retry budget state.
func (m *Manager) ReconnectInfo() ReconnectState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

// Tenant returns the last tenant passed to Connect, or empty.
func (m *Manager) Tenant() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenantID
}

// Connection exposes the live/connected flag as a reactive value.
func (m *Manager) Connection() *Signal[bool] { return m.connection }

// StateSignal exposes the connection state as a reactive value.
func (m *Manager) StateSignal() *Signal[State] { return m.stateSig }

// Stats returns a snapshot of the reaction counters.
func (m *Manager) Stats() Stats { return m.agg.Stats() }

// Feed returns the current activity feed, newest first.
func (m *Manager) Feed() []FeedEntry { return m.agg.Feed() }

// StatsSignal exposes the counters as a reactive value.
func (m *Manager) StatsSignal() *Signal[Stats] { return m.agg.StatsSignal() }

// FeedSignal exposes the activity feed as a reactive value.
func (m *Manager) FeedSignal() *Signal[[]FeedEntry] { return m.agg.FeedSignal() }

// ResetActivity zeroes all counters and clears the feed.
func (m *Manager) ResetActivity() { m.agg.Reset() }

// SendReaction broadcasts a reaction on the open channel.
func (m *Manager) SendReaction(ctx context.Context, kind, userName string) error {
	return m.send(ctx, "reaction", func(tenant string, ts int64) interface{} {
		return reactionWire{Type: kind, UserName: userName, Timestamp: ts, TenantID: tenant}
	})
}

// SendComment broadcasts a comment on the open channel.
func (m *Manager) SendComment(ctx context.Context, text, userName string) error {
	return m.send(ctx, "comment", func(tenant string, ts int64) interface{} {
		return commentWire{Text: text, UserName: userName, Timestamp: ts, TenantID: tenant}
	})
}

func (m *Manager) send(ctx context.Context, kind string, data func(tenant string, ts int64) interface{}) error {
	m.mu.Lock()
	ch := m.channel
	tenant := m.tenantID
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || ch == nil {
		return ErrNotConnected
	}

	msg := outboundMessage{
		Type:     kind,
		TenantID: tenant,
		Data:     data(tenant, m.now().UnixMilli()),
	}
	return ch.Send(ctx, kind, msg)
}

// connectAttempt performs a single gated attempt. Caller must hold opMu.
func (m *Manager) connectAttempt(ctx context.Context) (ConnectResult, error) {
	m.mu.Lock()
	tenant := m.tenantID
	wait := Gate(m.rec.LastAttemptAt, m.now(), m.cfg.MinConnectInterval)
	attempts := m.rec.Attempts
	m.mu.Unlock()

	topic := TopicForTenant(tenant)

	if wait > 0 {
		m.logger.Debug("rate limiting connect attempt", "topic", topic, "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ConnectResult{Message: "connect cancelled"}, ctx.Err()
		}
	}

	// Tear down any prior handle first: at most one channel may be open.
	state := StateConnecting
	if attempts > 0 {
		state = StateReconnecting
	}
	m.mu.Lock()
	old := m.channel
	m.channel = nil
	m.gen++
	gen := m.gen
	m.stopWatchLocked()
	m.state = state
	// Stamped after the gate wait, immediately before the dial, so
	// overlapping callers serialize correctly.
	m.rec.LastAttemptAt = m.now()
	m.mu.Unlock()
	m.notifyState(state)

	if old != nil {
		m.closeQuietly(old)
	}

	m.logger.Info("opening reactions channel", "topic", topic, "attempt", attempts)

	ch, err := m.provider.OpenChannel(ctx, topic, ChannelConfig{
		EchoSelf:   m.cfg.EchoSelf,
		RequireAck: m.cfg.RequireAck,
	})
	if err != nil {
		return m.attemptFailed(gen, nil, fmt.Sprintf("open channel: %v", err), err, true)
	}

	sink := func(env Envelope) { m.agg.Handle(env, tenant) }
	ch.OnMessage("reaction", sink)
	ch.OnMessage("comment", sink)

	statusCh := make(chan Status, 8)
	if err := ch.Subscribe(func(s Status) {
		select {
		case statusCh <- s:
		default:
		}
	}); err != nil {
		return m.attemptFailed(gen, ch, fmt.Sprintf("subscribe: %v", err), err, true)
	}

	handshake := time.NewTimer(m.cfg.HandshakeTimeout)
	defer handshake.Stop()

	for {
		select {
		case s := <-statusCh:
			switch s {
			case StatusSubscribed:
				m.mu.Lock()
				if m.intentional || gen != m.gen {
					// Disconnect raced the handshake; the late result
					// must not reopen state.
					m.mu.Unlock()
					m.closeQuietly(ch)
					return ConnectResult{Message: "disconnected during handshake"}, nil
				}
				m.channel = ch
				m.rec.Attempts = 0
				m.rec.Reconnecting = false
				m.state = StateConnected
				stop := make(chan struct{})
				m.watchStop = stop
				m.mu.Unlock()

				m.notifyState(StateConnected)
				m.connection.Set(true)
				m.logger.Info("reactions channel subscribed", "topic", topic)

				go m.watch(gen, statusCh, stop)
				return ConnectResult{OK: true, Message: "connected to reaction stream"}, nil

			case StatusChannelError, StatusTimedOut, StatusClosed:
				return m.attemptFailed(gen, ch, "channel status "+string(s), ErrNotConnected, true)
			}

		case <-handshake.C:
			// Rejects the caller synchronously, but still counts as a
			// transient failure for retry purposes.
			return m.attemptFailed(gen, ch, "handshake timeout", ErrConnectTimeout, true)

		case <-ctx.Done():
			// Caller cancellation is not a transport failure; no retry.
			return m.attemptFailed(gen, ch, "connect cancelled", ctx.Err(), false)
		}
	}
}

func (m *Manager) attemptFailed(gen uint64, ch Channel, msg string, cause error, retry bool) (ConnectResult, error) {
	if ch != nil {
		m.closeQuietly(ch)
	}

	m.mu.Lock()
	actionable := gen == m.gen && !m.intentional
	if actionable {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	m.logger.Warn("reactions connect attempt failed", "reason", msg)

	if actionable {
		m.notifyState(StateDisconnected)
		m.connection.Set(false)
		if retry {
			m.scheduleRetry()
		}
	}

	return ConnectResult{Message: msg}, cause
}

// scheduleRetry arms at most one reconnect timer per the policy.
func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.policy.RetryAllowed(m.rec, m.intentional) {
		if m.rec.Attempts >= m.policy.MaxAttempts {
			m.logger.Error("reconnect attempts exhausted, waiting for force reconnect",
				"attempts", m.rec.Attempts,
			)
			if m.hooks.RetriesExhausted != nil {
				m.hooks.RetriesExhausted()
			}
		}
		return
	}

	m.rec.Attempts++
	m.rec.Reconnecting = true
	m.state = StateReconnecting

	delay := m.policy.NextDelay(m.rec.Attempts)
	m.logger.Info("scheduling reconnect", "attempt", m.rec.Attempts, "delay", delay)
	if m.hooks.RetryScheduled != nil {
		m.hooks.RetryScheduled(m.rec.Attempts, delay)
	}

	m.retrySeq++
	seq := m.retrySeq
	m.retryTimer = time.AfterFunc(delay, func() { m.retryFire(seq) })
}

// retryFire runs when a reconnect timer elapses. A timer cancelled after
// firing still gets here, so it re-checks its sequence and the intent flag
// before acting.
func (m *Manager) retryFire(seq uint64) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if seq != m.retrySeq || m.intentional || !m.rec.Reconnecting {
		m.mu.Unlock()
		return
	}
	m.rec.Reconnecting = false
	m.retryTimer = nil
	m.mu.Unlock()

	// Background retry: nothing awaits this result. Failures are observable
	// only through the connection signal and logs.
	if _, err := m.connectAttempt(context.Background()); err != nil {
		m.logger.Debug("background reconnect attempt failed", "error", err)
	}
}

// watch consumes post-handshake statuses for one subscribed channel.
func (m *Manager) watch(gen uint64, statusCh <-chan Status, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case s := <-statusCh:
			switch s {
			case StatusChannelError, StatusTimedOut, StatusClosed:
				m.channelDropped(gen, s)
				return
			}
		}
	}
}

// channelDropped handles an external drop of a subscribed channel.
func (m *Manager) channelDropped(gen uint64, s Status) {
	m.mu.Lock()
	if gen != m.gen || m.intentional {
		m.mu.Unlock()
		return
	}
	old := m.channel
	m.channel = nil
	m.gen++
	m.watchStop = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.notifyState(StateDisconnected)
	m.connection.Set(false)

	if old != nil {
		m.closeQuietly(old)
	}

	m.logger.Warn("reactions channel dropped", "status", string(s))
	m.scheduleRetry()
}

// cancelRetryLocked stops any pending reconnect timer and invalidates a
// timer that has already fired but not yet run. Caller must hold mu.
func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.retrySeq++
	m.rec.Reconnecting = false
}

// stopWatchLocked detaches the status watcher of the previous channel.
// Caller must hold mu.
func (m *Manager) stopWatchLocked() {
	if m.watchStop != nil {
		close(m.watchStop)
		m.watchStop = nil
	}
}

func (m *Manager) closeQuietly(ch Channel) {
	if err := ch.Close(); err != nil {
		m.logger.Debug("error closing superseded channel", "error", err)
	}
}

func (m *Manager) notifyState(s State) {
	m.stateSig.Set(s)
	if m.hooks.StateChanged != nil {
		m.hooks.StateChanged(s)
	}
}
