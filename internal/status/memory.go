package status

import (
	"context"
	"sync"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
)

// MemoryPublisher records transitions and fans them out to subscriber
// channels. It backs tests and single-node development.
type MemoryPublisher struct {
	mu          sync.Mutex
	transitions []Transition
	subscribers map[domain.Category][]chan Transition
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		subscribers: make(map[domain.Category][]chan Transition),
	}
}

func (p *MemoryPublisher) Publish(ctx context.Context, jobID string, category domain.Category, status string) {
	t := Transition{JobID: jobID, Category: category, Status: status, At: time.Now().UTC()}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.transitions = append(p.transitions, t)
	for _, sub := range p.subscribers[category] {
		// At-most-once to a live subscriber: a full channel drops the hint.
		select {
		case sub <- t:
		default:
		}
	}
}

// Subscribe returns a channel receiving transitions for the category.
func (p *MemoryPublisher) Subscribe(category domain.Category) <-chan Transition {
	ch := make(chan Transition, 64)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[category] = append(p.subscribers[category], ch)
	return ch
}

// Transitions returns a copy of everything published so far.
func (p *MemoryPublisher) Transitions() []Transition {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Transition, len(p.transitions))
	copy(out, p.transitions)
	return out
}
