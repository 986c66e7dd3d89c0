package jobmanager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"
)

// ErrAlreadyRunning is returned by Tap when the id it was given already has
// a Running entry in the registry at the time Tap is called. This check
// happens eagerly at Tap's call site rather than racing a lazily-started
// stream, so a collision with an already-Running id is reported before any
// goroutine starts. A Pending id is not rejected here, and a collision with a
// concurrent Submit/Tap that lands after the check is settled by the runner.
var ErrAlreadyRunning = errors.New("jobmanager: job already running")

// Manager coordinates submission, deduplication, cancellation, and
// notification fan-out for a set of concurrently running jobs. I is the
// job id type, N the notification payload type, R the tap result type.
type Manager[I comparable, N any, R any] struct {
	cfg    Config
	clock  Clock
	logger *Logger

	registry      *registry[I]
	notifications *blockingQueue[Notification[I, N]]
	events        *ringQueue[Event[I]]
	dispatch      *blockingQueue[func(context.Context)]

	wg sizedwaitgroup.SizedWaitGroup

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	closeOnce      sync.Once
}

// New constructs a Manager and starts its dispatcher. Callers should defer
// Close to release resources; New/Close is a paired scoped acquisition.
func New[I comparable, N any, R any](cfg Config, clock Clock, logger *Logger) *Manager[I, N, R] {
	if cfg.JobLimit <= 0 {
		cfg.JobLimit = DefaultConfig().JobLimit
	}
	if cfg.NotificationsLimit <= 0 {
		cfg.NotificationsLimit = DefaultConfig().NotificationsLimit
	}
	if cfg.EventsLimit <= 0 {
		cfg.EventsLimit = DefaultConfig().EventsLimit
	}
	if cfg.JobConcurrency <= 0 {
		cfg.JobConcurrency = DefaultConfig().JobConcurrency
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = NewLogger()
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	m := &Manager[I, N, R]{
		cfg:            cfg,
		clock:          clock,
		logger:         logger,
		registry:       newRegistry[I](),
		notifications:  newBlockingQueue[Notification[I, N]](cfg.NotificationsLimit),
		events:         newRingQueue[Event[I]](cfg.EventsLimit),
		dispatch:       newBlockingQueue[func(context.Context)](cfg.JobLimit),
		wg:             sizedwaitgroup.New(cfg.JobConcurrency),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: cancel,
	}
	go m.dispatchLoop()
	return m
}

// dispatchLoop pulls runners off the dispatch queue and runs up to
// JobConcurrency concurrently, via a sizedwaitgroup-bounded fan-out.
func (m *Manager[I, N, R]) dispatchLoop() {
	for fn := range m.dispatch.streamDequeue() {
		m.wg.Add()
		go func(fn func(context.Context)) {
			defer m.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("job runner panic", "error", r)
				}
			}()
			fn(context.Background())
		}(fn)
	}
}

// Submit inserts a Pending entry for job.ID() and queues it for dispatch.
// It returns false without any side effect if the id already has an entry.
func (m *Manager[I, N, R]) Submit(job Job[I, N, R]) bool {
	select {
	case <-m.shutdownCtx.Done():
		return false
	default:
	}

	id := job.ID()
	pending := &jobEntry[I]{status: StatusPending}
	if !m.registry.insertIfAbsent(id, pending) {
		return false
	}

	runnerFn := func(context.Context) {
		_ = m.runRunner(job, false, nil)
	}
	// enqueue also returns nil once Close has closed the dispatch queue, so
	// the shutdown context is checked as well.
	if err := m.dispatch.enqueue(m.shutdownCtx, runnerFn); err != nil || m.shutdownCtx.Err() != nil {
		// Manager shut down while this submit was suspended waiting for
		// dispatch capacity: the job never started, so undo the insert.
		m.registry.removeIfEqual(id, pending)
		return false
	}
	return true
}

// Tap runs job inline (on a goroutine owned by the returned stream, not via
// dispatch) and returns a channel of its yielded results. Notifications are
// still routed to the shared Notifications stream. If the id already has a
// Running entry, Tap fails eagerly with ErrAlreadyRunning instead of
// starting anything.
func (m *Manager[I, N, R]) Tap(job Job[I, N, R]) (<-chan R, error) {
	id := job.ID()
	if cur, ok := m.registry.get(id); ok && cur.status == StatusRunning {
		return nil, ErrAlreadyRunning
	}

	out := make(chan R)
	go func() {
		defer close(out)
		if err := m.runRunner(job, true, out); errors.Is(err, ErrAlreadyRunning) {
			// Lost a race against a concurrent submit/tap for the same id
			// between the eager check above and the front transition. The
			// spec documents this as a deliberate, non-deterministic race;
			// the tap simply yields nothing.
			m.logger.Warn("tap collided with already-running job", "id", id)
		}
	}()
	return out, nil
}

// Cancel asynchronously, idempotently requests that id stop. A Pending job
// is marked Canceled so its runner skips the body entirely; a Running job
// has its cancellation signal raised. An unknown or already-terminated id is
// a silent no-op.
func (m *Manager[I, N, R]) Cancel(id I) {
	for {
		cur, ok := m.registry.get(id)
		if !ok {
			return
		}
		switch cur.status {
		case StatusRunning:
			cur.cancel()
			return
		case StatusPending:
			canceled := &jobEntry[I]{status: StatusCanceled}
			if m.registry.replaceIfEqual(id, cur, canceled) {
				return
			}
			// Lost the race to the runner's front transition (it just
			// became Running); retry and signal it on the next pass.
		case StatusCanceled:
			return
		}
	}
}

// Status reports a job's current registry state, or false if it isn't
// registered (terminated, never submitted, or canceled-and-cleaned-up).
func (m *Manager[I, N, R]) Status(id I) (Status, bool) {
	cur, ok := m.registry.get(id)
	if !ok {
		return 0, false
	}
	return cur.status, true
}

// JobIDs returns a snapshot of currently registered ids.
func (m *Manager[I, N, R]) JobIDs() []I {
	return m.registry.keys()
}

// Notifications is the shared, order-preserving-per-id notification stream.
// It terminates when the manager is closed.
func (m *Manager[I, N, R]) Notifications() <-chan Notification[I, N] {
	return m.notifications.streamDequeue()
}

// Events is the shared lifecycle event stream (a dropping ring buffer under
// the hood). It terminates when the manager is closed.
func (m *Manager[I, N, R]) Events() <-chan Event[I] {
	return m.events.streamDequeue()
}

// LastNotifications peeks and drains up to n queued notifications. It
// returns (nil, false) only if the stream has been closed by Close.
func (m *Manager[I, N, R]) LastNotifications(n int) ([]Notification[I, N], bool) {
	return m.notifications.tryDequeueUpTo(n)
}

// LastEvents peeks and drains up to n queued events. It returns (nil, false)
// only if the stream has been closed by Close.
func (m *Manager[I, N, R]) LastEvents(n int) ([]Event[I], bool) {
	return m.events.tryDequeueUpTo(n)
}

// Close performs an orderly shutdown: it stops accepting new dispatch work,
// closes the notifications and events streams, and clears the registry.
// In-flight runners continue to completion (or observe the closure at their
// next queue interaction) rather than being forcibly killed. Close is safe
// to call more than once.
func (m *Manager[I, N, R]) Close() {
	m.closeOnce.Do(func() {
		m.shutdownCancel()
		m.dispatch.close()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); m.notifications.close() }()
		go func() { defer wg.Done(); m.events.close() }()
		wg.Wait()

		for _, id := range m.registry.keys() {
			m.registry.remove(id)
		}
	})
}

// frontOutcome is the result of a runner's front transition.
type frontOutcome int

const (
	frontStarted frontOutcome = iota
	frontSkipped
	frontAlreadyRunning
)

// frontTransition performs the Pending->Running (or, for tap, absent->
// Running) CAS, looping on CAS races until it observes a terminal outcome.
func (m *Manager[I, N, R]) frontTransition(id I, cancel context.CancelFunc, ignoreAbsence bool) (*jobEntry[I], frontOutcome) {
	next := &jobEntry[I]{status: StatusRunning, cancel: cancel}
	for {
		cur, found := m.registry.get(id)
		if !found {
			if !ignoreAbsence {
				return nil, frontSkipped
			}
			if m.registry.insertIfAbsent(id, next) {
				return next, frontStarted
			}
			continue
		}
		switch cur.status {
		case StatusPending:
			if m.registry.replaceIfEqual(id, cur, next) {
				return next, frontStarted
			}
		case StatusCanceled:
			m.registry.removeIfEqual(id, cur)
			return nil, frontSkipped
		case StatusRunning:
			return nil, frontAlreadyRunning
		}
	}
}

// runRunner drives one job through the lifecycle state machine: front
// transition, body, and exactly-once termination cleanup. resultsOut is nil
// for submit (results are discarded) and non-nil for tap.
func (m *Manager[I, N, R]) runRunner(job Job[I, N, R], ignoreAbsence bool, resultsOut chan<- R) error {
	id := job.ID()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	installed, outcome := m.frontTransition(id, cancel, ignoreAbsence)
	switch outcome {
	case frontSkipped:
		return nil
	case frontAlreadyRunning:
		return ErrAlreadyRunning
	}

	startedAt := m.clock.NowMillis()
	err := m.runBody(ctx, job, resultsOut)
	duration := time.Duration(m.clock.NowMillis()-startedAt) * time.Millisecond

	switch {
	case errors.Is(err, context.Canceled):
		m.registry.removeIfEqual(id, installed)
		return nil
	case err != nil:
		m.registry.removeIfEqual(id, installed)
		m.events.enqueue(FailedEvent[I]{JobID: id, StartedAt: startedAt, Duration: duration, Err: err})
		m.logger.Warn("job failed", "id", id, "duration", durafmt.Parse(duration).String(), "error", err)
		return err
	default:
		m.registry.removeIfEqual(id, installed)
		m.events.enqueue(CompletedEvent[I]{JobID: id, StartedAt: startedAt, Duration: duration})
		m.logger.Info("job completed", "id", id, "duration", durafmt.Parse(duration).String())
		return nil
	}
}

// runBody iterates the job's producer, routing notifications onto the
// shared queue and results (if anyone is tapping) onto resultsOut.
func (m *Manager[I, N, R]) runBody(ctx context.Context, job Job[I, N, R], resultsOut chan<- R) error {
	emit := func(n N) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return m.notifications.enqueue(ctx, Notification[I, N]{JobID: job.ID(), Value: n})
	}
	yield := func(r R) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if resultsOut == nil {
			return nil
		}
		select {
		case resultsOut <- r:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return job.Run(ctx, emit, yield)
}
