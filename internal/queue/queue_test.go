package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

func newTestQueue(maxRetries int) *InMemoryQueue {
	q := NewInMemoryQueue(maxRetries, logger.Nop())
	q.Backoff = nil
	return q
}

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := newTestQueue(3)
	assert.Error(t, q.Publish("nobody", 1))
}

func TestInMemoryQueue_DeliversJSON(t *testing.T) {
	q := newTestQueue(3)
	var got []byte
	require.NoError(t, q.Subscribe("topic", func(payload []byte) error {
		got = payload
		return nil
	}))

	require.NoError(t, q.Publish("topic", map[string]int{"n": 7}))
	q.Wait()
	assert.JSONEq(t, `{"n":7}`, string(got))
}

func TestInMemoryQueue_RetriesUntilSuccess(t *testing.T) {
	q := newTestQueue(3)
	var calls int32
	require.NoError(t, q.Subscribe("topic", func([]byte) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}))

	require.NoError(t, q.Publish("topic", "x"))
	q.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryQueue_GivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue(2)
	var calls int32
	require.NoError(t, q.Subscribe("topic", func([]byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	}))

	require.NoError(t, q.Publish("topic", "x"))
	q.Wait()
	// One attempt plus two retries.
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, b(1))
	assert.Equal(t, 300*time.Millisecond, b(3))
}

type stubRunner struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (r *stubRunner) Run(ctx context.Context) (*model.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	return &model.RunResult{RunID: uuid.New(), Sent: 4}, err
}

func TestCampaignRunSubscriber_RetriesFailedRun(t *testing.T) {
	q := newTestQueue(3)
	runner := &stubRunner{errs: []error{errors.New("claim recipient: connection reset")}}
	require.NoError(t, StartCampaignRunSubscriber(context.Background(), q, runner, logger.Nop()))

	require.NoError(t, q.Publish(TopicCampaignRuns, NewRunRequest("test")))
	q.Wait()
	assert.Equal(t, 2, runner.calls)
}

type ctxRunner struct {
	calls int32
}

func (r *ctxRunner) Run(ctx context.Context) (*model.RunResult, error) {
	atomic.AddInt32(&r.calls, 1)
	return &model.RunResult{RunID: uuid.New()}, ctx.Err()
}

func TestCampaignRunSubscriber_CanceledRunIsNotRetried(t *testing.T) {
	q := newTestQueue(3)
	runner := &ctxRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, StartCampaignRunSubscriber(ctx, q, runner, logger.Nop()))

	require.NoError(t, q.Publish(TopicCampaignRuns, NewRunRequest("test")))
	q.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))
}

func TestCampaignRunSubscriber_TimedOutRunIsNotRetried(t *testing.T) {
	q := newTestQueue(3)
	runner := &stubRunner{errs: []error{fmt.Errorf("claim recipient: %w", context.DeadlineExceeded)}}
	require.NoError(t, StartCampaignRunSubscriber(context.Background(), q, runner, logger.Nop()))

	require.NoError(t, q.Publish(TopicCampaignRuns, NewRunRequest("test")))
	q.Wait()
	assert.Equal(t, 1, runner.calls)
}

func TestCampaignRunSubscriber_DropsInvalidRequest(t *testing.T) {
	q := newTestQueue(3)
	runner := &stubRunner{}
	require.NoError(t, StartCampaignRunSubscriber(context.Background(), q, runner, logger.Nop()))

	require.NoError(t, q.Publish(TopicCampaignRuns, "not a request"))
	q.Wait()
	assert.Zero(t, runner.calls)
}

// fakeChannel records publishes and hands out a scripted delivery stream.
type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	publishErr error
	deliveries chan amqp.Delivery
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Close() error { return nil }

type ackRecorder struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error { a.acks++; return nil }

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return nil }

func TestAMQPQueue_Publish(t *testing.T) {
	ch := &fakeChannel{}
	q := NewAMQPQueue(ch, 3, logger.Nop())

	req := NewRunRequest("api")
	require.NoError(t, q.Publish(TopicCampaignRuns, req))

	assert.Equal(t, []string{TopicCampaignRuns}, ch.declared)
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, int32(0), msg.Headers[RetryHeader])

	var decoded RunRequest
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, req.RequestID, decoded.RequestID)
	assert.Equal(t, "api", decoded.Source)
}

func TestAMQPQueue_Handle(t *testing.T) {
	tests := []struct {
		name          string
		handlerErr    error
		retries       any
		publishErr    error
		wantAcks      int
		wantNacks     int
		wantRequeue   bool
		wantRepublish int32
	}{
		{name: "success acks", wantAcks: 1, wantRepublish: -1},
		{name: "failure republishes with next retry", handlerErr: errors.New("boom"), retries: int32(1), wantAcks: 1, wantRepublish: 2},
		{name: "missing header counts as zero", handlerErr: errors.New("boom"), wantAcks: 1, wantRepublish: 1},
		{name: "exhausted retries are dropped", handlerErr: errors.New("boom"), retries: int32(3), wantNacks: 1, wantRepublish: -1},
		{name: "republish failure requeues", handlerErr: errors.New("boom"), publishErr: errors.New("channel closed"), wantNacks: 1, wantRequeue: true, wantRepublish: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{publishErr: tt.publishErr}
			q := NewAMQPQueue(ch, 3, logger.Nop())
			ack := &ackRecorder{}
			headers := amqp.Table{}
			if tt.retries != nil {
				headers[RetryHeader] = tt.retries
			}
			d := amqp.Delivery{Acknowledger: ack, Headers: headers, Body: []byte(`{}`), DeliveryTag: 9}

			q.handle("topic", d, func([]byte) error { return tt.handlerErr })

			assert.Equal(t, tt.wantAcks, ack.acks)
			assert.Equal(t, tt.wantNacks, ack.nacks)
			assert.Equal(t, tt.wantRequeue, ack.requeue)
			if tt.wantRepublish < 0 {
				assert.Empty(t, ch.published)
				return
			}
			require.Len(t, ch.published, 1)
			assert.Equal(t, tt.wantRepublish, ch.published[0].Headers[RetryHeader])
		})
	}
}

func TestAMQPQueue_SubscribeConsumes(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	q := NewAMQPQueue(ch, 3, logger.Nop())

	got := make(chan []byte, 1)
	require.NoError(t, q.Subscribe("topic", func(payload []byte) error {
		got <- payload
		return nil
	}))

	ack := &ackRecorder{}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte(`{"x":1}`)}
	close(ch.deliveries)

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"x":1}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("delivery not handled")
	}
}
