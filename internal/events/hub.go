package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/treestandk/wingman/internal/models"
)

// Event types, matching the names real-time clients subscribe to.
const (
	TypeLog      = "deployment_log"
	TypeProgress = "deployment_progress"
)

// Event is one broadcast message. Log events carry Message/Timestamp;
// progress events carry StepName/Status/Progress/Steps.
type Event struct {
	Type         string        `json:"type"`
	DeploymentID string        `json:"deployment_id"`
	Message      string        `json:"message,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	StepName     string        `json:"step_name,omitempty"`
	Status       string        `json:"status,omitempty"`
	Progress     int           `json:"progress,omitempty"`
	Steps        []models.Step `json:"steps,omitempty"`
}

// Subscription is one subscriber's buffered event feed.
type Subscription struct {
	ch           chan Event
	deploymentID string // empty subscribes to all deployments
}

// Events returns the subscriber's receive channel. It is closed on
// Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Hub broadcasts deployment events to subscribers, best effort. Publishing
// never blocks: a subscriber that cannot keep up loses events rather than
// stalling the deployment that produced them.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	dropped int64
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber. deploymentID filters events to one
// deployment; empty receives everything. buffer bounds how far the
// subscriber may lag before events are dropped.
func (h *Hub) Subscribe(deploymentID string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{
		ch:           make(chan Event, buffer),
		deploymentID: deploymentID,
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	h.mu.Unlock()
}

// PublishLog broadcasts one log line.
func (h *Hub) PublishLog(deploymentID, message string, timestamp time.Time) {
	h.publish(Event{
		Type:         TypeLog,
		DeploymentID: deploymentID,
		Message:      message,
		Timestamp:    timestamp,
	})
}

// PublishProgress broadcasts a step transition with the full step list.
func (h *Hub) PublishProgress(deploymentID, stepName, status string, progress int, steps []models.Step) {
	h.publish(Event{
		Type:         TypeProgress,
		DeploymentID: deploymentID,
		Timestamp:    time.Now().UTC(),
		StepName:     stepName,
		Status:       status,
		Progress:     progress,
		Steps:        append([]models.Step(nil), steps...),
	})
}

func (h *Hub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if sub.deploymentID != "" && sub.deploymentID != ev.DeploymentID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			atomic.AddInt64(&h.dropped, 1)
		}
	}
}

// Dropped returns how many events were discarded due to slow subscribers.
func (h *Hub) Dropped() int64 {
	return atomic.LoadInt64(&h.dropped)
}
