package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mumehta/MeetScribe/internal/dispatch"
	"github.com/mumehta/MeetScribe/internal/tasks"
)

type recordingRunner struct {
	mu   sync.Mutex
	seen []dispatch.StagePayload
}

func (r *recordingRunner) Run(_ context.Context, payload dispatch.StagePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, payload)
	return nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestWorkerDeliversPublishedPayloads(t *testing.T) {
	queue := dispatch.NewInMemoryQueue(10)
	runner := &recordingRunner{}
	worker := dispatch.NewWorker(queue, runner, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	id := uuid.New()
	require.NoError(t, queue.PublishStageTask(ctx, dispatch.StagePayload{
		TaskID:       id,
		Kind:         tasks.KindPreparation,
		FileRef:      "/tmp/in.mp4",
		OriginalName: "in.mp4",
	}))

	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, 5*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, id, runner.seen[0].TaskID)
	assert.Equal(t, tasks.KindPreparation, runner.seen[0].Kind)
	assert.Equal(t, "/tmp/in.mp4", runner.seen[0].FileRef)
}

func TestWorkersDrainClosedQueue(t *testing.T) {
	// Close only closes the channel; workers holding it drain the backlog
	// and exit on their own, even when they start after the close.
	queue := dispatch.NewInMemoryQueue(4)
	runner := &recordingRunner{}
	worker := dispatch.NewWorker(queue, runner, 2)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, queue.PublishStageTask(ctx, dispatch.StagePayload{
			TaskID: uuid.New(),
			Kind:   tasks.KindPreparation,
		}))
	}
	queue.Close()
	queue.Close()

	worker.Start(ctx)

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after draining a closed queue")
	}
	assert.Equal(t, 4, runner.count())
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	queue := dispatch.NewInMemoryQueue(1)
	worker := dispatch.NewWorker(queue, &recordingRunner{}, 1)

	worker.Start(context.Background())
	queue.Close()

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after queue close")
	}
}
