// Package queue publishes onboarding completion events to RabbitMQ and
// consumes them in background workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	CompletedQueueName = "healthbuddy.onboarding.completed"
	DeadLetterQueue    = "healthbuddy.onboarding.completed.dlq"
)

// completedTTL bounds how long an unconsumed completion event is kept
// before it is dead-lettered.
const completedTTL = int32(24 * time.Hour / time.Millisecond)

const maxRedials = 10

var ErrClosed = errors.New("queue connection closed")

// Connection is a RabbitMQ connection that redials with backoff when the
// broker drops it.
type Connection struct {
	url string

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	done       chan struct{}
	closeOnce  sync.Once
	reconnects atomic.Int64
}

// NewConnection dials RabbitMQ and declares the completion queues.
func NewConnection(url string) (*Connection, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}

	c := &Connection{url: url, conn: conn, channel: ch, done: make(chan struct{})}
	go c.supervise(conn)

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(url))
	return c, nil
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// declareTopology declares the durable completion queue, which dead-letters
// expired and rejected events into DeadLetterQueue.
func declareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead letter queue: %w", err)
	}

	args := amqp.Table{
		"x-message-ttl":             completedTTL,
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue,
	}
	if _, err := ch.QueueDeclare(CompletedQueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare completion queue: %w", err)
	}
	return nil
}

// supervise waits for the broker to drop conn and redials until Close.
func (c *Connection) supervise(conn *amqp.Connection) {
	for {
		lost := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case err, ok := <-lost:
			if !ok || err == nil {
				return
			}
			slog.Warn("RabbitMQ connection lost, reconnecting", "error", err)
		}

		next, ok := c.redial()
		if !ok {
			return
		}
		conn = next
	}
}

func (c *Connection) redial() (*amqp.Connection, bool) {
	for attempt := 0; attempt < maxRedials; attempt++ {
		select {
		case <-c.done:
			return nil, false
		case <-time.After(backoff(attempt)):
		}

		conn, ch, err := dial(c.url)
		if err != nil {
			slog.Error("reconnection failed", "attempt", attempt+1, "error", err)
			continue
		}

		c.mu.Lock()
		c.conn, c.channel = conn, ch
		c.mu.Unlock()
		c.reconnects.Add(1)
		slog.Info("reconnected to RabbitMQ", "attempts", attempt+1)
		return conn, true
	}
	slog.Error("giving up on RabbitMQ", "attempts", maxRedials)
	return nil, false
}

// backoff doubles from one second, capped at 30s.
func backoff(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * time.Second
	if d > 30*time.Second || d <= 0 {
		d = 30 * time.Second
	}
	return d
}

// Channel returns the current channel; it changes after a reconnect.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Reconnects counts successful redials since NewConnection.
func (c *Connection) Reconnects() int64 {
	return c.reconnects.Load()
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close stops reconnecting and closes the connection.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// PublishJSON publishes data as a persistent JSON message on queue.
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch := c.Channel()
	if ch == nil {
		return ErrClosed
	}
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// sanitizeURL strips the password from an AMQP URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if len(raw) > 20 {
			return raw[:20] + "..."
		}
		return raw
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
