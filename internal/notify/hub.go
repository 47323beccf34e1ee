package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

// Hub is the single-process realtime channel used when Redis is not
// configured. Slow subscribers miss events rather than block publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []byte]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan []byte]struct{}),
		logger: logger,
	}
}

func (h *Hub) PublishLowRatingAlert(_ context.Context, businessID string, payload models.AlertEvent) error {
	return h.broadcast(businessID, EventLowRatingAlert, payload)
}

func (h *Hub) PublishNewReviewNotification(_ context.Context, businessID string, payload models.ReviewNotification) error {
	return h.broadcast(businessID, EventNewReview, payload)
}

func (h *Hub) broadcast(businessID string, kind EventType, payload any) error {
	data, err := encodeEvent(kind, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[businessID] {
		select {
		case ch <- data:
		default:
			h.logger.Warn("Realtime subscriber lagging, event skipped", "business_id", businessID, "type", kind)
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, businessID string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	if h.subs[businessID] == nil {
		h.subs[businessID] = make(map[chan []byte]struct{})
	}
	h.subs[businessID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[businessID], ch)
		if len(h.subs[businessID]) == 0 {
			delete(h.subs, businessID)
		}
		h.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
