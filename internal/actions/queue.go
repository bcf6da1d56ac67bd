package actions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bouncer_actions_processed_total",
		Help: "Actions consumed from the queue, by kind and outcome.",
	}, []string{"kind", "outcome"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bouncer_actions_queue_depth",
		Help: "Actions currently waiting in the queue.",
	})
)

// Queue is an unbounded FIFO action queue with a single consumer goroutine.
// Producers never block: Enqueue appends under a mutex and returns. Failed
// actions are logged and dropped, never requeued, and one failed action
// never stops consumption of the rest.
type Queue struct {
	mu      sync.Mutex
	pending []Action
	closed  bool

	// wake has capacity 1: a non-blocking send coalesces any number of
	// enqueues into one consumer wakeup.
	wake chan struct{}

	performer Performer
	logger    *slog.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewQueue creates a queue that is ready to accept actions. The consumer
// does not run until Start is called; actions enqueued before that are
// buffered in order.
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		wake:    make(chan struct{}, 1),
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Bind sets the performer that executes actions. Must be called before
// Start; the wiring phase injects the Telegram channel here.
func (q *Queue) Bind(p Performer) {
	q.performer = p
}

// Enqueue appends the action to the queue. It never blocks regardless of
// queue depth and returns ErrQueueClosed after Stop.
func (q *Queue) Enqueue(a Action) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, a)
	depth := len(q.pending)
	q.mu.Unlock()

	queueDepth.Set(float64(depth))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of actions waiting in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start launches the consumer goroutine.
func (q *Queue) Start() error {
	if q.performer == nil {
		return errNoPerformer
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go q.run(ctx)
	return nil
}

// Stop closes the queue and waits for the consumer to exit. Actions still
// waiting are dropped: delivery is at-most-once and the next verification
// cycle re-derives any still-needed removal from the link store.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	remaining := len(q.pending)
	q.mu.Unlock()

	if remaining > 0 {
		q.logger.Warn("action queue stopping with undelivered actions", "count", remaining)
	}

	if q.cancel != nil {
		q.cancel()
		select {
		case <-q.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// run is the single consumer loop: strictly in submission order, one action
// at a time.
func (q *Queue) run(ctx context.Context) {
	defer close(q.stopped)
	for {
		a, ok := q.next()
		if ok {
			q.perform(ctx, a)
			continue
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			return
		}
	}
}

// next pops the head of the queue.
func (q *Queue) next() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		queueDepth.Set(0)
		return Action{}, false
	}
	a := q.pending[0]
	q.pending = q.pending[1:]
	queueDepth.Set(float64(len(q.pending)))
	return a, true
}

func (q *Queue) perform(ctx context.Context, a Action) {
	var err error
	switch a.Kind {
	case KindInvite:
		err = q.performer.Invite(ctx, a.GroupID, a.TelegramID)
	case KindRemove:
		err = q.performer.Kick(ctx, a.GroupID, a.TelegramID)
	default:
		q.logger.Error("unknown action kind", "kind", string(a.Kind))
		actionsProcessed.WithLabelValues(string(a.Kind), "failed").Inc()
		return
	}

	if err != nil {
		// At-most-once: log and move on, never requeue.
		q.logger.Error("action failed",
			"kind", string(a.Kind),
			"telegram_id", a.TelegramID,
			"group_id", a.GroupID,
			"error", err,
		)
		actionsProcessed.WithLabelValues(string(a.Kind), "failed").Inc()
		return
	}

	q.logger.Debug("action delivered",
		"kind", string(a.Kind),
		"telegram_id", a.TelegramID,
		"group_id", a.GroupID,
	)
	actionsProcessed.WithLabelValues(string(a.Kind), "ok").Inc()
}
