//go:build integration

package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/queue"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get AMQP URL: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return amqpURL, cleanup
}

func connect(t *testing.T) *queue.Connection {
	t.Helper()
	amqpURL, cleanup := setupRabbitMQ(t)
	t.Cleanup(cleanup)

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func queueDepth(t *testing.T, conn *queue.Connection, name string) int {
	t.Helper()
	q, err := conn.Channel().QueueInspect(name)
	if err != nil {
		t.Fatalf("failed to inspect queue %s: %v", name, err)
	}
	return q.Messages
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}

	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
	if conn.IsConnected() {
		t.Error("expected connection to be closed")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := conn.PublishJSON(context.Background(), queue.CompletedQueueName, map[string]string{}); !errors.Is(err, queue.ErrClosed) {
		t.Errorf("publish after close: error = %v, want ErrClosed", err)
	}
	if conn.Reconnects() != 0 {
		t.Errorf("reconnects = %d, want 0", conn.Reconnects())
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := queue.NewConnection("amqp://invalid:5672")
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_PublishCompletion(t *testing.T) {
	conn := connect(t)
	producer := queue.NewProducer(conn)

	if err := producer.PublishCompletion(context.Background(), completedSession(t)); err != nil {
		t.Fatalf("failed to publish completion: %v", err)
	}

	if n := queueDepth(t, conn, queue.CompletedQueueName); n != 1 {
		t.Errorf("expected 1 message in queue, got %d", n)
	}
}

func TestIntegration_Consumer_HandlesCompletions(t *testing.T) {
	conn := connect(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	received := make(chan *queue.CompletionEvent, 3)
	consumer := queue.NewConsumer(conn, func(_ context.Context, ev *queue.CompletionEvent) error {
		received <- ev
		return nil
	}, queue.ConsumerConfig{Workers: 2})

	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	sent := make(map[string]bool)
	for i := 0; i < 3; i++ {
		sess := completedSession(t)
		sent[sess.ID] = true
		if err := producer.PublishCompletion(ctx, sess); err != nil {
			t.Fatalf("failed to publish completion %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case ev := <-received:
			if !sent[ev.SessionID] {
				t.Errorf("unexpected session %s", ev.SessionID)
			}
			if ev.Session == nil || ev.Session.ID != ev.SessionID {
				t.Error("event should carry its session")
			}
		case <-ctx.Done():
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestIntegration_Consumer_PermanentFailureDeadLetters(t *testing.T) {
	conn := connect(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var calls atomic.Int32
	consumer := queue.NewConsumer(conn, func(context.Context, *queue.CompletionEvent) error {
		calls.Add(1)
		return errors.Join(queue.ErrPermanent, errors.New("rejected"))
	}, queue.DefaultConsumerConfig())

	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}

	if err := queue.NewProducer(conn).PublishCompletion(ctx, completedSession(t)); err != nil {
		t.Fatalf("failed to publish completion: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if queueDepth(t, conn, queue.DeadLetterQueue) == 1 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	consumer.Stop()

	if n := queueDepth(t, conn, queue.DeadLetterQueue); n != 1 {
		t.Errorf("expected 1 dead-lettered message, got %d", n)
	}
	if calls.Load() != 1 {
		t.Errorf("handler called %d times; want 1", calls.Load())
	}
}
