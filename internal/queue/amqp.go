package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// RetryHeader carries how many times a message has been redelivered.
const RetryHeader = "x-retry-count"

// Channel is the subset of *amqp.Channel the queue uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPQueue publishes to durable RabbitMQ queues named after the topic.
// Failed deliveries are republished with an incremented retry header until
// MaxRetries is reached, then dropped.
type AMQPQueue struct {
	MaxRetries int
	Log        zerolog.Logger

	conn *amqp.Connection
	ch   Channel
}

// DialAMQP connects to RabbitMQ and opens a channel.
func DialAMQP(url string, maxRetries int, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	q := NewAMQPQueue(ch, maxRetries, log)
	q.conn = conn
	return q, nil
}

// NewAMQPQueue wraps an already open channel.
func NewAMQPQueue(ch Channel, maxRetries int, log zerolog.Logger) *AMQPQueue {
	return &AMQPQueue{MaxRetries: maxRetries, Log: log, ch: ch}
}

func (q *AMQPQueue) declare(topic string) error {
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
		Headers:      amqp.Table{RetryHeader: int32(retries)},
	}
	if err := q.ch.Publish("", topic, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts consuming topic with manual acks.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	go func() {
		for d := range msgs {
			q.handle(topic, d, handler)
		}
		q.Log.Info().Str("topic", topic).Msg("delivery channel closed")
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler Handler) {
	log := q.Log.With().Str("topic", topic).Uint64("delivery_tag", d.DeliveryTag).Logger()

	err := handler(d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error().Err(ackErr).Msg("ack failed")
		}
		return
	}

	retries := retryCount(d.Headers)
	if retries >= q.MaxRetries {
		log.Error().Err(err).Int("retries", retries).Msg("message permanently failed, dropping")
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error().Err(nackErr).Msg("nack failed")
		}
		return
	}

	log.Warn().Err(err).Int("retry", retries+1).Int("max_retries", q.MaxRetries).Msg("message failed, republishing")
	if pubErr := q.publish(topic, d.Body, retries+1); pubErr != nil {
		// Leave it to the broker to redeliver.
		log.Error().Err(pubErr).Msg("republish failed, requeueing")
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error().Err(nackErr).Msg("nack failed")
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error().Err(ackErr).Msg("ack failed")
	}
}

func retryCount(headers amqp.Table) int {
	switch v := headers[RetryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (q *AMQPQueue) Close() error {
	var err error
	if q.ch != nil {
		err = q.ch.Close()
	}
	if q.conn != nil {
		if cerr := q.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ Queue = (*AMQPQueue)(nil)
