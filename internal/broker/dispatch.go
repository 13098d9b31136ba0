package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"taskbridge/internal/history"
	"taskbridge/internal/protocol"
)

// Recorder journals finished tasks. A nil-safe no-op implementation backs
// tests and deployments without a database.
type Recorder interface {
	Append(ctx context.Context, e history.Entry) (string, error)
}

type noopRecorder struct{}

func (noopRecorder) Append(context.Context, history.Entry) (string, error) { return "", nil }

// Dispatcher routes admitted tasks to idle executors. Each task is driven by
// its own goroutine (bounded by a semaphore, so a burst cannot spawn
// unbounded workers): acquire an executor within the configured timeout,
// transmit, and on failure evict and retry after a fixed backoff. The retry
// budget is bounded; exhaustion resolves the task as failed with an explicit
// error result to the producer. Retrying never blocks the producer session
// that admitted the task.
type Dispatcher struct {
	registry *Registry
	ledger   *Ledger
	journal  Recorder
	metrics  *Metrics

	acquireTimeout time.Duration
	backoff        time.Duration
	maxAttempts    int

	queue chan Task
	sem   chan struct{}
}

func NewDispatcher(reg *Registry, led *Ledger, journal Recorder, m *Metrics, acquireTimeout, backoff time.Duration, maxAttempts int) *Dispatcher {
	if journal == nil {
		journal = noopRecorder{}
	}
	return &Dispatcher{
		registry:       reg,
		ledger:         led,
		journal:        journal,
		metrics:        m,
		acquireTimeout: acquireTimeout,
		backoff:        backoff,
		maxAttempts:    maxAttempts,
		queue:          make(chan Task, 1024),
		sem:            make(chan struct{}, 256),
	}
}

// Submit hands a task to the dispatcher. It blocks only if the admission
// queue is full; there is no further admission control (overload degrades to
// delayed service).
func (d *Dispatcher) Submit(t Task) {
	d.queue <- t
}

// Recover resolves a task whose executor vanished mid-flight: requeue once,
// fail the producer on a second loss.
func (d *Dispatcher) Recover(t Task) {
	if t.Requeued {
		d.fail(t, "executor lost")
		return
	}
	t.Requeued = true
	d.metrics.TasksRequeued.Add(1)
	log.Warn().Str("task_id", t.ID).Msg("executor lost mid-task, requeuing")
	d.Submit(t)
}

// Run consumes the admission queue until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.queue:
			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(t Task) {
				defer func() { <-d.sem }()
				d.attempt(ctx, t)
			}(t)
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, t Task) {
	for {
		if ctx.Err() != nil {
			return
		}
		e, ok := d.registry.Acquire(d.acquireTimeout, t)
		if !ok {
			t.Attempts++
			if t.Attempts >= d.maxAttempts {
				d.fail(t, "no executor available")
				return
			}
			log.Debug().Str("task_id", t.ID).Int("attempts", t.Attempts).Msg("no idle executor, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.backoff):
			}
			continue
		}

		line := protocol.Encode(protocol.Message{Kind: protocol.KindAssign, ID: t.ID, Body: t.Payload})
		if err := e.Conn.Send(line); err != nil {
			log.Warn().Err(err).Str("task_id", t.ID).Str("executor_id", e.ID).Msg("assign transmit failed, evicting executor")
			if _, _, removed := d.registry.Evict(e.ID, e.Conn); removed {
				d.metrics.ExecutorsEvicted.Add(1)
			}
			t.Attempts++
			if t.Attempts >= d.maxAttempts {
				d.fail(t, "no executor available")
				return
			}
			// Rate-limit the retry so a dying pool does not spin.
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.backoff):
			}
			continue
		}

		d.metrics.TasksDispatched.Add(1)
		log.Info().Str("task_id", t.ID).Str("executor_id", e.ID).Msg("task assigned")
		return
	}
}

// fail takes the task's ledger entry, notifies the producer with an error
// result, and journals the failure.
func (d *Dispatcher) fail(t Task, reason string) {
	d.metrics.TasksFailed.Add(1)
	log.Error().Str("task_id", t.ID).Str("reason", reason).Int("attempts", t.Attempts).Msg("task failed")

	owner, ok := d.ledger.Take(t.ID)
	if ok {
		line := protocol.Encode(protocol.Message{Kind: protocol.KindResult, ID: t.ID, Body: "ERROR: " + reason})
		if err := owner.Send(line); err != nil {
			log.Warn().Err(err).Str("task_id", t.ID).Msg("could not deliver failure result")
		}
	}

	if _, err := d.journal.Append(context.Background(), history.Entry{
		TaskID:   t.ID,
		Outcome:  history.OutcomeFailed,
		Detail:   reason,
		Attempts: t.Attempts,
	}); err != nil {
		log.Warn().Err(err).Str("task_id", t.ID).Msg("journal append failed")
	}
}
