package persistence

import (
	"context"
	"log/slog"
	"time"
)

const (
	writerMaxAttempts  = 3
	writerRetryBackoff = 300 * time.Millisecond
)

type writeOp struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue serializes database writes onto a single goroutine so event
// handlers never block on the disk. Failed writes are retried a bounded
// number of times and then dropped with an error log; persistence faults
// must not reach connectivity state.
type WriterQueue struct {
	logger *slog.Logger
	ops    chan writeOp
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if capacity <= 0 {
		capacity = 256
	}

	return &WriterQueue{
		logger: logger,
		ops:    make(chan writeOp, capacity),
	}
}

// Enqueue never blocks the caller: when the buffer is full the handoff moves
// to a throwaway goroutine.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	op := writeOp{name: name, fn: fn}
	select {
	case w.ops <- op:
	default:
		go func() { w.ops <- op }()
	}
}

func (w *WriterQueue) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *WriterQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-w.ops:
			w.execute(ctx, op)
		}
	}
}

func (w *WriterQueue) execute(ctx context.Context, op writeOp) {
	for attempt := 1; ; attempt++ {
		err := op.fn(ctx)
		if err == nil {
			return
		}
		w.logger.Error("db write failed", "op", op.name, "attempt", attempt, "error", err)
		if attempt >= writerMaxAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * writerRetryBackoff):
		}
	}
}
