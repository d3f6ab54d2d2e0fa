package dispatch

import (
	"context"
	"encoding/json"
	"sync"
)

type inMemoryMessage struct {
	queue   string
	payload []byte
}

func (m *inMemoryMessage) Type() string {
	return m.queue
}

func (m *inMemoryMessage) Payload() []byte {
	return m.payload
}

func (m *inMemoryMessage) Ack() error {
	return nil
}

func (m *inMemoryMessage) Nack() error {
	return nil
}

func (m *inMemoryMessage) Reject() error {
	return nil
}

// InMemoryQueue is a channel-backed queue serving both the Publisher and
// Receiver roles for the single-process deployment.
type InMemoryQueue struct {
	messages  chan Message
	closeOnce sync.Once
}

func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 100
	}
	return &InMemoryQueue{
		messages: make(chan Message, capacity),
	}
}

func (q *InMemoryQueue) PublishStageTask(_ context.Context, payload StagePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.messages <- &inMemoryMessage{queue: StageQueue, payload: data}

	return nil
}

func (q *InMemoryQueue) Messages() <-chan Message {
	return q.messages
}

// Close closes the message channel. The channel is never nilled out, so
// receivers that already hold it simply drain and observe the close.
func (q *InMemoryQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.messages)
	})
}
