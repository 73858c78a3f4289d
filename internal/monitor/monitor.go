// Package monitor implements the live execution monitor: it consumes
// the runner's stream for one run at a time and derives a consistent
// display state from it, surviving transport drops with bounded-retry
// reconnection and coalescing message bursts into one update pass per
// display tick.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackmesh/runboard/internal/domain"
	"github.com/stackmesh/runboard/internal/notify"
	"github.com/stackmesh/runboard/internal/runnerwire"
)

// defaultRetention keeps a just-finished batch in the active display
// set for a short window so it doesn't vanish mid-glance.
const defaultRetention = 5 * time.Second

// Runner is the REST collaborator that starts and stops executions.
// It is consumed as a black box.
type Runner interface {
	StartExecution(ctx context.Context, spec, runID string, dryRun bool) error
	StopExecution(ctx context.Context, runID string) error
}

// Config configures a Monitor
type Config struct {
	// StreamURL maps a run id to its stream endpoint. Required.
	StreamURL func(runID string) string
	// Runner starts/stops executions. Optional; without it the monitor
	// only observes streams.
	Runner Runner
	// Dialer opens transports. Defaults to the WebSocket dialer.
	Dialer Dialer
	// Notifier receives terminal-state notifications. Optional.
	Notifier notify.Notifier

	MaxRetries    int             // default 3
	RetryDelays   []time.Duration // default 5s, 10s, 20s
	FlushInterval time.Duration   // default one display frame
	Retention     time.Duration   // default 5s

	Logf func(format string, args ...interface{})
}

// Monitor owns one run's monitor state and every resource attached to
// it: the transport, the pending-message queue, and all timers.
// Switching runs tears the previous owner's resources down first.
type Monitor struct {
	cfg    Config
	mu     sync.Mutex
	state  *MonitorState
	conn   Conn
	queue  *coalescer
	timers *timerRegistry

	// gen invalidates scheduled callbacks (reconnects, flushes, ticks)
	// from a superseded run. Bumped on every teardown.
	gen    int
	closed bool

	updates chan struct{}
}

// New creates a Monitor. StreamURL is required.
func New(cfg Config) (*Monitor, error) {
	if cfg.StreamURL == nil {
		return nil, fmt.Errorf("stream URL resolver is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebsocketDialer()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = maxRetries
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = retryDelays
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	return &Monitor{
		cfg:     cfg,
		state:   NewState(),
		timers:  newTimerRegistry(),
		updates: make(chan struct{}, 1),
	}, nil
}

// Updates signals that the display state changed. The channel is
// coalesced: a pending signal covers any number of changes.
func (m *Monitor) Updates() <-chan struct{} {
	return m.updates
}

// SetPlan installs a fetched execution plan, tearing down any active
// run first.
func (m *Monitor) SetPlan(plan *domain.Plan) {
	m.mu.Lock()
	m.teardownLocked()
	m.state.SetPlan(plan.Spec, plan.ToBatches())
	m.mu.Unlock()
	m.notifyUpdate()
}

// Start begins a new run: resets batch state, asks the runner to
// start executing, and opens the stream.
func (m *Monitor) Start(ctx context.Context, dryRun bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("monitor is closed")
	}
	if m.state.Run.Status.Active() {
		m.mu.Unlock()
		return fmt.Errorf("run %s is already active", m.state.Run.ID)
	}

	runID := uuid.NewString()
	spec := m.state.Run.Spec
	m.state.BeginRun(runID, dryRun, time.Now())
	gen := m.gen
	m.queue = newCoalescer(m.cfg.FlushInterval, m.flushFunc(gen))
	m.mu.Unlock()
	m.notifyUpdate()

	if m.cfg.Runner != nil {
		if err := m.cfg.Runner.StartExecution(ctx, spec, runID, dryRun); err != nil {
			m.mu.Lock()
			if gen == m.gen {
				m.state.Run.Status = domain.RunFailed
				m.state.appendOrch(time.Now(), "Failed to start execution: "+err.Error(), domain.LogError)
			}
			m.mu.Unlock()
			m.notifyUpdate()
			return fmt.Errorf("starting execution: %w", err)
		}
	}

	m.mu.Lock()
	if gen != m.gen || !m.state.Run.Status.Active() {
		m.mu.Unlock()
		return nil
	}
	m.timers.Every(timerElapsed, time.Second, m.elapsedTick(gen))
	m.mu.Unlock()

	go m.connect(gen, runID, 0)
	return nil
}

// Abort requests cancellation: it sends the abort control message,
// asks the runner to stop, and tears the run down as aborted. Safe to
// call at any time.
func (m *Monitor) Abort(ctx context.Context) error {
	m.mu.Lock()
	if !m.state.Run.Status.Active() {
		m.mu.Unlock()
		return nil
	}
	runID := m.state.Run.ID
	if m.conn != nil {
		if err := m.conn.WriteJSON(runnerwire.NewAbortRequest()); err != nil {
			m.cfg.Logf("sending abort request: %v", err)
		}
	}
	m.state.MarkAborted(time.Now())
	sum := m.state.Summary()
	// Full teardown: an already-scheduled flush must not touch the
	// aborted run's state.
	m.teardownLocked()
	m.mu.Unlock()
	m.notifyUpdate()

	if m.cfg.Runner != nil {
		if err := m.cfg.Runner.StopExecution(ctx, runID); err != nil {
			m.cfg.Logf("stopping execution %s: %v", runID, err)
		}
	}
	m.sendNotification(domain.RunAborted, sum)
	return nil
}

// Reset returns the monitor to idle, releasing the transport, the
// pending queue, and all timers. Idempotent.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.teardownLocked()
	m.state.Reset()
	m.mu.Unlock()
	m.notifyUpdate()
}

// Close shuts the monitor down for good. Idempotent.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.teardownLocked()
	m.timers.Close()
	m.mu.Unlock()
}

// teardownLocked releases all per-run resources and invalidates every
// scheduled callback. Callers hold m.mu.
func (m *Monitor) teardownLocked() {
	m.gen++
	m.closeConnLocked()
	m.timers.CancelAll()
	m.queue = nil
}

// closeConnLocked closes the transport if open. Idempotent.
func (m *Monitor) closeConnLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// connect opens the stream for a run. retry counts prior attempts;
// zero means the initial connection.
func (m *Monitor) connect(gen int, runID string, retry int) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	url := m.cfg.StreamURL(runID)
	queue := m.queue
	m.mu.Unlock()

	conn, err := m.cfg.Dialer.Dial(context.Background(), url)
	if err != nil {
		m.cfg.Logf("stream connect (attempt %d): %v", retry, err)
		m.handleDisconnect(gen, runID, retry)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	// At most one open transport per run.
	m.closeConnLocked()
	m.conn = conn
	m.timers.Cancel(timerCountdown)
	m.timers.Cancel(timerReconnect)
	m.state.MarkConnected(retry > 0, time.Now())
	m.mu.Unlock()
	m.notifyUpdate()

	go m.readLoop(gen, runID, conn, queue)
}

// readLoop pushes inbound frames into the coalescing queue until the
// transport fails or is closed.
func (m *Monitor) readLoop(gen int, runID string, conn Conn, queue *coalescer) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			// Retry budget was reset when this connection opened.
			m.handleDisconnect(gen, runID, 0)
			return
		}
		queue.Enqueue(runnerwire.Decode(data))
	}
}

// handleDisconnect reacts to a closed transport: reconnect with
// backoff while the run is active and retries remain, otherwise fail
// the run. Intentional closes (run no longer active) do nothing.
func (m *Monitor) handleDisconnect(gen int, runID string, retry int) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.closeConnLocked()

	if !m.state.Run.Status.Active() {
		m.mu.Unlock()
		return
	}

	if retry >= m.cfg.MaxRetries {
		m.state.MarkRetriesExhausted(m.cfg.MaxRetries, time.Now())
		sum := m.state.Summary()
		m.timers.CancelAll()
		m.mu.Unlock()
		m.notifyUpdate()
		m.sendNotification(domain.RunFailed, sum)
		return
	}

	delay := retryDelay(m.cfg.RetryDelays, retry)
	m.state.MarkReconnecting(retry+1, delay, time.Now())
	m.timers.Every(timerCountdown, time.Second, m.countdownTick(gen))
	m.timers.After(timerReconnect, delay, func() {
		m.connect(gen, runID, retry+1)
	})
	m.mu.Unlock()
	m.notifyUpdate()
}

// flushFunc builds the coalescer callback for one run generation.
// Flushes from a superseded run are discarded whole.
func (m *Monitor) flushFunc(gen int) func([]runnerwire.Message) {
	return func(msgs []runnerwire.Message) {
		m.mu.Lock()
		if gen != m.gen || m.closed {
			m.mu.Unlock()
			return
		}

		now := time.Now()
		var terminal bool
		var completed []string
		for _, msg := range msgs {
			ev := Interpret(msg)
			if ev.Kind == EventNone {
				continue
			}
			res := m.state.Apply(ev, now)
			terminal = terminal || res.RunTerminal
			completed = append(completed, res.CompletedBatches...)
		}

		// Re-render once the retention window of a finished batch
		// elapses so it drops out of the active grid.
		for _, id := range completed {
			m.timers.After(retainPrefix+id, m.cfg.Retention, m.retentionExpired(gen))
		}

		var sum domain.Summary
		status := m.state.Run.Status
		if terminal {
			sum = m.state.Summary()
			m.closeConnLocked()
			m.timers.CancelAll()
		}
		m.mu.Unlock()
		m.notifyUpdate()

		if terminal {
			m.sendNotification(status, sum)
		}
	}
}

func (m *Monitor) elapsedTick(gen int) func() {
	return func() {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.state.ElapsedTick(time.Now())
		m.mu.Unlock()
		m.notifyUpdate()
	}
}

func (m *Monitor) countdownTick(gen int) func() {
	return func() {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.state.CountdownTick()
		m.mu.Unlock()
		m.notifyUpdate()
	}
}

func (m *Monitor) retentionExpired(gen int) func() {
	return func() {
		m.mu.Lock()
		stale := gen != m.gen
		m.mu.Unlock()
		if !stale {
			m.notifyUpdate()
		}
	}
}

func (m *Monitor) notifyUpdate() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

func (m *Monitor) sendNotification(status domain.RunStatus, sum domain.Summary) {
	if m.cfg.Notifier == nil {
		return
	}

	n := notify.Notification{
		Title: fmt.Sprintf("Run %s", status),
		Message: fmt.Sprintf("%d completed, %d failed, %d pending in %s",
			sum.Completed, sum.Failed, sum.Pending, sum.Elapsed),
	}
	switch status {
	case domain.RunCompleted:
		n.Type = notify.NotifySuccess
	case domain.RunFailed:
		n.Type = notify.NotifyError
	default:
		n.Type = notify.NotifyWarning
	}

	go func() {
		if err := m.cfg.Notifier.Send(n); err != nil {
			m.cfg.Logf("sending notification: %v", err)
		}
	}()
}
