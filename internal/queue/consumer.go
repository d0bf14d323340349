package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPermanent marks a handler failure that retrying cannot fix. Such
// messages go to the dead letter queue instead of being requeued.
var ErrPermanent = errors.New("permanent failure")

// CompletionHandler processes one completion event
type CompletionHandler func(ctx context.Context, ev *CompletionEvent) error

// Consumer consumes completion events with a pool of workers
type Consumer struct {
	conn       *Connection
	handler    CompletionHandler
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Per-event handler timeout
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  2,
		Prefetch: 1,
		Timeout:  30 * time.Second,
	}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return cfg
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler CompletionHandler, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if ch == nil {
		return ErrClosed
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		CompletedQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting completion consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}
			settle(msg, c.process(ctx, id, msg.Body))
		}
	}
}

// outcome is what to do with a delivery after processing.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDeadLetter
)

// process decodes and handles one message body.
func (c *Consumer) process(ctx context.Context, workerID int, body []byte) outcome {
	var ev CompletionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		slog.Error("failed to unmarshal completion event", "worker_id", workerID, "error", err)
		return outcomeDeadLetter
	}

	evCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.handler(evCtx, &ev)
	if err == nil {
		slog.Info("completion event handled",
			"worker_id", workerID,
			"session_id", ev.SessionID,
			"duration", time.Since(start),
		)
		return outcomeAck
	}

	slog.Error("completion handler failed",
		"worker_id", workerID,
		"session_id", ev.SessionID,
		"error", err,
	)
	if errors.Is(err, ErrPermanent) {
		return outcomeDeadLetter
	}
	return outcomeRequeue
}

// settle acks or rejects a delivery. A message is requeued at most once;
// a second failure dead-letters it.
func settle(msg amqp.Delivery, o outcome) {
	var err error
	switch {
	case o == outcomeAck:
		err = msg.Ack(false)
	case o == outcomeRequeue && !msg.Redelivered:
		err = msg.Nack(false, true)
	default:
		err = msg.Nack(false, false)
	}
	if err != nil {
		slog.Error("failed to settle message", "delivery_tag", msg.DeliveryTag, "error", err)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
