package queue

import (
	"context"
	"fmt"
	"time"

	"docgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one message body. A nil error acks the message.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer delivers messages of several queues to their handlers one at a
// time.
type Consumer struct {
	conn     *amqp091.Connection
	handlers map[string]HandlerFunc
	after    func(queueName string, took time.Duration)
}

// NewConsumer creates a Consumer for the queues named in handlers. after,
// when set, runs once a message is settled.
func NewConsumer(conn *amqp091.Connection, handlers map[string]HandlerFunc, after func(queueName string, took time.Duration)) *Consumer {
	return &Consumer{conn: conn, handlers: handlers, after: after}
}

type queuedMessage struct {
	msg       amqp091.Delivery
	queueName string
}

// Run consumes until ctx is done. A single channel with a global prefetch
// of 1 ensures only one message is in flight across all queues.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, true); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages := make(chan queuedMessage)
	for queueName := range c.handlers {
		deliveries, err := ch.Consume(
			queueName,
			queueName+"_consumer",
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", queueName, err)
		}

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						logger.Info("[Queue] Delivery channel closed", "queue", queueName)
						return
					}
					select {
					case messages <- queuedMessage{msg: msg, queueName: queueName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	logger.Info("[Queue] Listening for messages")
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer")
			return nil
		case qm := <-messages:
			start := time.Now()
			c.dispatch(ctx, ch, qm.msg, qm.queueName)
			if c.after != nil {
				c.after(qm.queueName, time.Since(start))
			}
		}
	}
}

// dispatch runs the handler for msg and settles it. When ctx is done the
// message is left unacked so the broker redelivers it.
func (c *Consumer) dispatch(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string) {
	logger.Info("[Queue] Received message", "queue", queueName)

	handler, ok := c.handlers[queueName]
	if !ok {
		HandleFailure(ctx, ch, msg, queueName, Permanent(fmt.Errorf("no handler for queue %s", queueName)))
		return
	}

	err := handler(ctx, msg.Body)
	if err == nil {
		if err := msg.Ack(false); err != nil {
			logger.Error("[Queue] Failed to ack message", "err", err)
		}
		logger.Info("[Queue] Message processed", "queue", queueName)
		return
	}

	if ctx.Err() != nil {
		logger.Warn("[Queue] Message interrupted by shutdown", "queue", queueName, "err", err)
		_ = msg.Nack(false, true)
		return
	}

	logger.Error("[Queue] Error processing message", "queue", queueName, "err", err)
	HandleFailure(ctx, ch, msg, queueName, err)
}
