package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/shared/rabbitmq"
)

// AMQPQueue is a TaskQueue on RabbitMQ: a direct exchange with one durable
// queue per category, routing key = category name. Entries are acked at
// dequeue time so the broker's view matches removal-on-delivery.
type AMQPQueue struct {
	client   *rabbitmq.Client
	exchange string
	prefetch int
	logger   *slog.Logger

	mu        sync.Mutex
	consumers map[domain.Category]<-chan amqp.Delivery
}

// NewAMQPQueue declares the exchange and every category queue.
func NewAMQPQueue(client *rabbitmq.Client, exchange string, prefetch int, logger *slog.Logger) (*AMQPQueue, error) {
	if err := client.DeclareExchange(exchange, "direct"); err != nil {
		return nil, err
	}

	for _, category := range domain.Categories() {
		if err := client.DeclareBoundQueue(queueName(category), exchange, string(category)); err != nil {
			return nil, err
		}
	}

	return &AMQPQueue{
		client:    client,
		exchange:  exchange,
		prefetch:  prefetch,
		logger:    logger,
		consumers: make(map[domain.Category]<-chan amqp.Delivery),
	}, nil
}

func queueName(category domain.Category) string {
	return "jobs." + string(category)
}

func (q *AMQPQueue) Enqueue(ctx context.Context, entry Entry) error {
	if !entry.Category.Known() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, string(entry.Category))
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	return q.client.Publish(ctx, q.exchange, string(entry.Category), body)
}

func (q *AMQPQueue) Dequeue(ctx context.Context, category domain.Category, wait time.Duration) (Entry, bool, error) {
	deliveries, err := q.consumer(category)
	if err != nil {
		return Entry{}, false, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case delivery, ok := <-deliveries:
		if !ok {
			return Entry{}, false, fmt.Errorf("delivery channel closed for category %s", category)
		}

		// The entry leaves the queue here regardless of what happens to the
		// job; retries re-enter at the tail.
		if ackErr := delivery.Ack(false); ackErr != nil {
			q.logger.Error("Failed to ACK delivery",
				slog.String("category", string(category)),
				slog.Any("error", ackErr),
			)
		}

		var entry Entry
		if err := json.Unmarshal(delivery.Body, &entry); err != nil {
			q.logger.Error("Failed to parse queue entry, discarding",
				slog.String("category", string(category)),
				slog.String("body", string(delivery.Body)),
				slog.Any("error", err),
			)
			return Entry{}, false, fmt.Errorf("malformed queue entry: %w", err)
		}

		return entry, true, nil

	case <-timer.C:
		return Entry{}, false, nil

	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	}
}

// consumer lazily starts the per-category consumer. Concurrent dispatcher
// goroutines share one delivery channel; the broker hands each message to a
// single receiver.
func (q *AMQPQueue) consumer(category domain.Category) (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if deliveries, ok := q.consumers[category]; ok {
		return deliveries, nil
	}

	deliveries, err := q.client.Consume(queueName(category), "dispatcher-"+string(category), q.prefetch)
	if err != nil {
		return nil, err
	}

	q.consumers[category] = deliveries
	return deliveries, nil
}
