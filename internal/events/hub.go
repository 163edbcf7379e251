// Package events fans pipeline events out to the UI layers.
package events

import (
	"sync"
	"time"
)

// Kind identifies the payload carried by an Event.
type Kind string

const (
	// KindSession reports the camera/detection state after a change.
	KindSession Kind = "session"
	// KindPrediction reports a classified hand and the word after it.
	KindPrediction Kind = "prediction"
	// KindWarning reports a recoverable per-tick failure.
	KindWarning Kind = "warning"
	// KindChallenge reports the practice challenge after a change.
	KindChallenge Kind = "challenge"
)

// SessionState is the payload of KindSession events.
type SessionState struct {
	ID              string `json:"id,omitempty"`
	State           string `json:"state"`
	CameraActive    bool   `json:"camera_active"`
	DetectionActive bool   `json:"detection_active"`
	Word            string `json:"word"`
}

// Prediction is the payload of KindPrediction events.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Appended   bool    `json:"appended"`
	Word       string  `json:"word"`
}

// Challenge is the payload of KindChallenge events.
type Challenge struct {
	Target   string `json:"target"`
	Points   int    `json:"points"`
	Solved   string `json:"solved,omitempty"`
	Attempts int    `json:"attempts"`
}

// Event is one message for the UI layers. Exactly one payload is set,
// matching Kind.
type Event struct {
	Kind       Kind          `json:"kind"`
	Timestamp  int64         `json:"timestamp"`
	Session    *SessionState `json:"session,omitempty"`
	Prediction *Prediction   `json:"prediction,omitempty"`
	Challenge  *Challenge    `json:"challenge,omitempty"`
	Warning    string        `json:"warning,omitempty"`
}

// NewSession builds a KindSession event.
func NewSession(s SessionState) Event {
	return Event{Kind: KindSession, Timestamp: time.Now().UnixMilli(), Session: &s}
}

// NewPrediction builds a KindPrediction event.
func NewPrediction(p Prediction) Event {
	return Event{Kind: KindPrediction, Timestamp: time.Now().UnixMilli(), Prediction: &p}
}

// NewChallenge builds a KindChallenge event.
func NewChallenge(c Challenge) Event {
	return Event{Kind: KindChallenge, Timestamp: time.Now().UnixMilli(), Challenge: &c}
}

// NewWarning builds a KindWarning event.
func NewWarning(err error) Event {
	return Event{Kind: KindWarning, Timestamp: time.Now().UnixMilli(), Warning: err.Error()}
}

// DefaultBuffer is the per-subscriber queue length used by Subscribe.
const DefaultBuffer = 64

// Hub delivers published events to every subscriber. Publish never blocks:
// a subscriber whose queue is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber with the default buffer.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	return h.SubscribeBuffer(DefaultBuffer)
}

// SubscribeBuffer registers a new subscriber whose queue holds size events.
// The returned function unsubscribes and closes the channel; it is safe to
// call more than once.
func (h *Hub) SubscribeBuffer(size int) (<-chan Event, func()) {
	ch := make(chan Event, size)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish sends e to every subscriber with room in its queue.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel and later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
