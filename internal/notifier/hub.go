// Package notifier fans interaction events out to subscribed clients.
// Each resource has a single logical channel: events carry a
// per-resource sequence number and reach every subscriber of that
// resource in enqueue order. There is no ordering across resources and
// no redelivery after a subscription ends; reconnecting clients
// re-fetch state through the feed service and resubscribe.
package notifier

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a change notification for one resource.
type Event struct {
	Resource  string    `json:"resource"`
	Type      string    `json:"type"`
	Sequence  uint64    `json:"sequence"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types published by the interaction engine.
const (
	EventPostCreated        = "post_created"
	EventPostDeleted        = "post_deleted"
	EventLikeCountChanged   = "like_count_changed"
	EventCommentAdded       = "comment_added"
	EventCommentDeleted     = "comment_deleted"
	EventCollectionChanged  = "collection_changed"
	EventFollowCountChanged = "follow_count_changed"
)

// Resource names shared between publishers and subscribers.
const FeedResource = "feed"

func PostResource(id uuid.UUID) string         { return "post:" + id.String() }
func PostCommentsResource(id uuid.UUID) string { return "post:" + id.String() + ":comments" }
func CommentResource(id uuid.UUID) string      { return "comment:" + id.String() }
func UserResource(id uuid.UUID) string         { return "user:" + id.String() }

// Hub routes events to active subscriptions.
type Hub struct {
	mu         sync.Mutex
	resources  map[string]*resourceState
	bufferSize int
	logger     *slog.Logger
}

type resourceState struct {
	seq  uint64
	subs map[*Subscription]struct{}
}

// Subscription delivers events for a fixed set of resources until
// closed. A subscriber that cannot keep up with its buffer is dropped
// rather than delivered out of order.
type Subscription struct {
	hub       *Hub
	resources []string
	ch        chan Event
	closeOnce sync.Once
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		resources:  make(map[string]*resourceState),
		bufferSize: 64,
		logger:     logger,
	}
}

// Subscribe registers interest in the given resources.
func (h *Hub) Subscribe(resources ...string) *Subscription {
	sub := &Subscription{
		hub:       h,
		resources: resources,
		ch:        make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	for _, res := range resources {
		st := h.resources[res]
		if st == nil {
			st = &resourceState{subs: make(map[*Subscription]struct{})}
			h.resources[res] = st
		}
		st.subs[sub] = struct{}{}
	}
	h.mu.Unlock()

	return sub
}

// Publish enqueues an event for every active subscriber of resource.
// Sequence numbers are per resource and monotonic.
func (h *Hub) Publish(resource, eventType string, payload any) {
	h.mu.Lock()

	st := h.resources[resource]
	if st == nil {
		st = &resourceState{subs: make(map[*Subscription]struct{})}
		h.resources[resource] = st
	}
	st.seq++

	ev := Event{
		Resource:  resource,
		Type:      eventType,
		Sequence:  st.seq,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	var dropped []*Subscription
	for sub := range st.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full: dropping the subscriber keeps the
			// per-resource ordering guarantee intact.
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		h.removeLocked(sub)
	}
	h.mu.Unlock()

	for _, sub := range dropped {
		sub.closeChannel()
		h.logger.Warn("dropped slow subscriber", "resource", resource)
	}
}

// Events returns the delivery channel. It is closed when the
// subscription ends; nothing is delivered afterwards.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Resources returns what the subscription listens to.
func (s *Subscription) Resources() []string {
	return s.resources
}

// Close cancels the subscription.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	s.hub.removeLocked(s)
	s.hub.mu.Unlock()
	s.closeChannel()
}

func (s *Subscription) closeChannel() {
	s.closeOnce.Do(func() { close(s.ch) })
}

func (h *Hub) removeLocked(sub *Subscription) {
	for _, res := range sub.resources {
		st := h.resources[res]
		if st == nil {
			continue
		}
		delete(st.subs, sub)
		// Keep the state around even with no subscribers so the
		// sequence continues from where it left off.
	}
}

// SubscriberCount reports active subscribers for a resource.
func (h *Hub) SubscriberCount(resource string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st := h.resources[resource]; st != nil {
		return len(st.subs)
	}
	return 0
}
