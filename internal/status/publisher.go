package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/shared/rabbitmq"
)

// Transition is the notification emitted on every job state change.
type Transition struct {
	JobID    string          `json:"job_id"`
	Category domain.Category `json:"category"`
	Status   string          `json:"status"`
	At       time.Time       `json:"at"`
}

// Publisher broadcasts job state transitions to live observers. Delivery is
// best-effort and never the system of record; the store stays authoritative.
type Publisher interface {
	Publish(ctx context.Context, jobID string, category domain.Category, status string)
}

// AMQPPublisher fans transitions out on a topic exchange under
// status.<category>. Failures are logged and dropped.
type AMQPPublisher struct {
	client   *rabbitmq.Client
	exchange string
	logger   *slog.Logger
}

// NewAMQPPublisher declares the topic exchange.
func NewAMQPPublisher(client *rabbitmq.Client, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if err := client.DeclareExchange(exchange, "topic"); err != nil {
		return nil, err
	}
	return &AMQPPublisher{client: client, exchange: exchange, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, jobID string, category domain.Category, status string) {
	body, err := json.Marshal(Transition{
		JobID:    jobID,
		Category: category,
		Status:   status,
		At:       time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("Failed to marshal status transition",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.Publish(ctx, p.exchange, "status."+string(category), body); err != nil {
		p.logger.Warn("Failed to publish status transition",
			slog.String("job_id", jobID),
			slog.String("status", status),
			slog.Any("error", err),
		)
	}
}
