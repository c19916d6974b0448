package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
)

const memoryQueueDepth = 1024

// MemoryQueue is an in-process TaskQueue: one buffered channel per category,
// which gives FIFO order and single delivery under concurrent dequeuers.
type MemoryQueue struct {
	lists map[domain.Category]chan Entry
}

// NewMemoryQueue creates channels for every known category.
func NewMemoryQueue() *MemoryQueue {
	lists := make(map[domain.Category]chan Entry, len(domain.Categories()))
	for _, category := range domain.Categories() {
		lists[category] = make(chan Entry, memoryQueueDepth)
	}
	return &MemoryQueue{lists: lists}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, entry Entry) error {
	list, ok := q.lists[entry.Category]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, string(entry.Category))
	}

	select {
	case list <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue full for category %s", entry.Category)
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, category domain.Category, wait time.Duration) (Entry, bool, error) {
	list, ok := q.lists[category]
	if !ok {
		return Entry{}, false, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, string(category))
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case entry := <-list:
		return entry, true, nil
	case <-timer.C:
		return Entry{}, false, nil
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	}
}
