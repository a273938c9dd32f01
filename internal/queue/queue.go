package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one message body. A non-nil error asks for a retry.
type Handler func(payload []byte) error

// Queue publishes JSON payloads to topics and delivers them to subscribers.
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	MaxRetries int
	// Backoff returns the pause before the given retry attempt.
	Backoff func(attempt int) time.Duration
	Log     zerolog.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
	inflight sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(maxRetries int, log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		MaxRetries: maxRetries,
		Backoff:    LinearBackoff(500 * time.Millisecond),
		Log:        log,
		handlers:   make(map[string][]Handler),
	}
}

// LinearBackoff waits step times the attempt number.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// job wraps a message payload with retry info
type job struct {
	Topic      string
	Payload    []byte
	RetryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.inflight.Add(1)
		go func(h Handler) {
			defer q.inflight.Done()
			q.process(h, job{Topic: topic, Payload: body})
		}(handler)
	}
	return nil
}

// process handles retries and errors
func (q *InMemoryQueue) process(handler Handler, j job) {
	for {
		err := handler(j.Payload)
		if err == nil {
			q.Log.Debug().Str("topic", j.Topic).Int("retries", j.RetryCount).Msg("job processed")
			return
		}

		j.RetryCount++
		if j.RetryCount > q.MaxRetries {
			q.Log.Error().Err(err).Str("topic", j.Topic).Int("attempts", j.RetryCount).Msg("job permanently failed")
			return
		}
		q.Log.Warn().Err(err).Str("topic", j.Topic).Int("attempt", j.RetryCount).Int("max_retries", q.MaxRetries).Msg("job failed, retrying")

		if q.Backoff != nil {
			time.Sleep(q.Backoff(j.RetryCount))
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished, retries included.
func (q *InMemoryQueue) Wait() {
	q.inflight.Wait()
}

var _ Queue = (*InMemoryQueue)(nil)
