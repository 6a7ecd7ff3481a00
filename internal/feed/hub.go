package feed

import (
	"log"
	"sync"
	"time"
)

// Event notifies subscribers that a document under a topic changed. The hub
// carries change signals, not document payloads: stream handlers re-query the
// store so every delivery reflects committed state.
type Event struct {
	Topic     string    `json:"topic"`
	Kind      string    `json:"kind"`
	DocID     string    `json:"docId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event kinds published by the services.
const (
	KindVideoCreated   = "video_created"
	KindVideoUpdated   = "video_updated"
	KindProfileCreated = "profile_created"
	KindProfileUpdated = "profile_updated"
)

// Well-known topics.
const TopicFeed = "feed"

// ProfileTopic returns the per-user profile topic.
func ProfileTopic(userID string) string {
	return "profile:" + userID
}

type subscriber struct {
	id int
	ch chan Event
}

// Hub fans committed document changes out to live subscribers. Publications
// for a single topic are delivered to each subscriber in publish order; no
// ordering holds across topics or across subscribers. A subscriber that
// cannot keep up has events dropped rather than blocking publishers.
type Hub struct {
	mu     sync.Mutex
	nextID int
	topics map[string][]*subscriber
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string][]*subscriber),
	}
}

// Subscribe registers a listener on a topic. The returned cancel function
// tears the subscription down and closes the channel; it is safe to call
// more than once.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &subscriber{
		id: h.nextID,
		ch: make(chan Event, 16),
	}
	h.topics[topic] = append(h.topics[topic], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.unsubscribe(topic, sub.id)
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of its topic. Must only be
// called after the underlying store mutation has committed.
func (h *Hub) Publish(topic, kind, docID string) {
	event := Event{
		Topic:     topic,
		Kind:      kind,
		DocID:     docID,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.topics[topic] {
		select {
		case sub.ch <- event:
		default:
			// Slow consumer; it will resync from the store on its next event.
			log.Printf("[FEED] Dropping %s event for slow subscriber %d on topic %s", kind, sub.id, topic)
		}
	}
}

// SubscriberCount reports the number of live subscriptions on a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

func (h *Hub) unsubscribe(topic string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[topic]
	for i, sub := range subs {
		if sub.id == id {
			h.topics[topic] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			break
		}
	}
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
}
