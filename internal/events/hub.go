// Package events fans quota threshold notifications out to in-process
// subscribers, keeping a short replay buffer per workspace so a late
// subscriber still sees recent crossings.
package events

import (
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	TypeWarning = "quota_warning"
	TypeBlock   = "quota_block"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

// ThresholdEvent is emitted at most once per counter crossing: warning at
// 80% of the limit, block at the limit itself.
type ThresholdEvent struct {
	Type        string    `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	FeatureID   string    `json:"feature_id"`
	CycleID     string    `json:"cycle_id"`
	Total       int64     `json:"total"`
	Limit       int64     `json:"limit"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []ThresholdEvent
	subs   map[uint64]chan ThresholdEvent
	nextID uint64
}

type Subscription struct {
	hub         *Hub
	workspaceID string
	id          uint64
	ch          chan ThresholdEvent
	once        sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(event ThresholdEvent) {
	if h == nil {
		return
	}
	workspaceID := strings.TrimSpace(event.WorkspaceID)
	if workspaceID == "" {
		return
	}
	h.mu.RLock()
	stream := h.streams[workspaceID]
	h.mu.RUnlock()
	if stream == nil {
		h.mu.Lock()
		stream = h.ensureStreamLocked(workspaceID)
		h.mu.Unlock()
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan ThresholdEvent, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) Subscribe(workspaceID string) (*Subscription, []ThresholdEvent, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, nil, errors.New("invalid_workspace")
	}

	h.mu.Lock()
	stream := h.ensureStreamLocked(workspaceID)
	h.mu.Unlock()

	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan ThresholdEvent)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan ThresholdEvent, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]ThresholdEvent(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:         h,
		workspaceID: workspaceID,
		id:          id,
		ch:          ch,
	}, buffer, nil
}

func (h *Hub) ensureStreamLocked(workspaceID string) *stream {
	if h.streams == nil {
		h.streams = make(map[string]*stream)
	}
	s, ok := h.streams[workspaceID]
	if !ok {
		s = &stream{}
		h.streams[workspaceID] = s
	}
	return s
}

// Events returns the subscriber's channel.
func (s *Subscription) Events() <-chan ThresholdEvent {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close detaches the subscriber; safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.hub.mu.RLock()
		stream := s.hub.streams[s.workspaceID]
		s.hub.mu.RUnlock()
		if stream != nil {
			stream.mu.Lock()
			delete(stream.subs, s.id)
			stream.mu.Unlock()
		}
		close(s.ch)
	})
}
