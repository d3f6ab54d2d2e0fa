package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"sync"
)

// StageRunner executes one stage task end to end, recording the outcome on
// the task record. Errors returned here are delivery-level only; stage
// failures are recorded on the task and do not surface as runner errors.
type StageRunner interface {
	Run(ctx context.Context, payload StagePayload) error
}

// Worker consumes stage messages and hands them to the runner on a pool of
// goroutines.
type Worker struct {
	receiver    Receiver
	runner      StageRunner
	concurrency int

	wg sync.WaitGroup
}

func NewWorker(receiver Receiver, runner StageRunner, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Worker{receiver: receiver, runner: runner, concurrency: concurrency}
}

// Start launches the worker goroutines. They exit when the receiver's
// channel closes or the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go w.run(ctx, i)
	}
	slog.Info("stage workers started", "concurrency", w.concurrency)
}

func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()
	msgs := w.receiver.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			w.process(ctx, id, msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, id int, msg Message) {
	var payload StagePayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		slog.Error("discarding malformed stage message", "worker", id, "error", err)
		msg.Reject() // nolint:errcheck
		return
	}

	slog.Info("processing stage task", "worker", id, "task_id", payload.TaskID, "kind", payload.Kind)
	if err := w.runner.Run(ctx, payload); err != nil {
		slog.Error("stage task delivery failed", "worker", id, "task_id", payload.TaskID, "error", err)
		msg.Nack() // nolint:errcheck
		return
	}
	msg.Ack() // nolint:errcheck
}

// Wait blocks until all worker goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}
