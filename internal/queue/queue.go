package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docgraph/internal/util"
	"docgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExtractQueue carries documents to run through the pipeline.
	ExtractQueue = "extract_queue"
	// DeleteQueue carries document deletions that must wait for running
	// extractions to stop.
	DeleteQueue = "delete_queue"

	// MaxRetries is the number of redeliveries through the retry queue
	// before a message is parked in the dead-letter queue.
	MaxRetries = 10
	// RetryDelay is how long a failed message waits in the retry queue.
	RetryDelay = 10 * time.Second

	retriesHeader   = "x-retries"
	connectAttempts = 6
)

// Queues lists every work queue the worker consumes.
var Queues = []string{ExtractQueue, DeleteQueue}

// Connect dials the broker, retrying while it is still starting up.
func Connect(ctx context.Context, url string) (*amqp091.Connection, error) {
	var conn *amqp091.Connection
	err := util.RetryWithBackoff(ctx, connectAttempts, time.Second, func(ctx context.Context) error {
		c, err := amqp091.Dial(url)
		if err != nil {
			logger.Warn("[Queue] RabbitMQ not reachable", "err", err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares every queue in names together with its dead-letter
// queue and its retry queue. Messages in the retry queue expire after
// RetryDelay and are routed back to the work queue.
func SetupQueues(ch *amqp091.Channel, names []string) error {
	for _, name := range names {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(RetryDelay / time.Millisecond),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

// Channel is the subset of *amqp091.Channel used to publish.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Publisher sends messages to named queues.
type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// ChannelPublisher publishes persistent messages on the default exchange.
type ChannelPublisher struct {
	ch Channel
}

// NewChannelPublisher wraps ch.
func NewChannelPublisher(ch Channel) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

// Publish implements Publisher.
func (p *ChannelPublisher) Publish(ctx context.Context, queueName string, body []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	if err := p.ch.PublishWithContext(ctx, "", queueName, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}
	return nil
}

// Retries returns the redelivery count carried by msg.
func Retries(msg amqp091.Delivery) int {
	switch v := msg.Headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleFailure moves a message whose processing failed to the retry
// queue. Permanent errors, and messages already retried MaxRetries times,
// go to the dead-letter queue instead. The original delivery is acked
// after the copy is published and requeued when publishing fails.
func HandleFailure(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string, cause error) {
	retries := Retries(msg)

	target := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)

	if IsPermanent(cause) || retries >= MaxRetries {
		target = queueName + "_dlq"
		headers = msg.Headers
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", retries, "err", cause)
	}

	err := ch.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
