package conversation

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"chat-widget/internal/kv"
	"chat-widget/internal/message"
)

// Observer is notified after every mutation. Render receives the full sequence;
// StatusChanged is the targeted update for a single user message.
type Observer interface {
	Render(messages []message.Message)
	StatusChanged(id string, status message.Status)
}

// Store is the ordered, append-only conversation persisted to a single key-value slot.
// Mutations are expected from a single writer; the mutex only makes snapshots safe to read
// from other goroutines.
type Store struct {
	mu        sync.RWMutex
	slots     kv.Store
	key       string
	messages  []message.Message
	index     map[string]int
	observers []Observer
}

func New(slots kv.Store, key string) *Store {
	return &Store{
		slots: slots,
		key:   key,
		index: make(map[string]int),
	}
}

func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Load replaces the in-memory sequence with the persisted one. Absent or malformed data
// yields an empty conversation.
func (s *Store) Load() {
	msgs := s.read()
	s.mu.Lock()
	s.messages = msgs
	s.index = make(map[string]int, len(msgs))
	for i, m := range msgs {
		s.index[m.ID] = i
	}
	s.mu.Unlock()
	s.render()
}

func (s *Store) read() []message.Message {
	if s.slots == nil {
		return nil
	}
	raw, err := s.slots.Get(s.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("conversation: failed to read %s: %v", s.key, err)
		}
		return nil
	}
	var msgs []message.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		log.Printf("conversation: discarding malformed %s: %v", s.key, err)
		return nil
	}
	seen := make(map[string]bool, len(msgs))
	out := msgs[:0]
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

// Append adds m at the end of the conversation. Duplicate ids are ignored.
func (s *Store) Append(m message.Message) bool {
	if !m.IsUser() {
		m.Status = message.StatusNone
	}
	s.mu.Lock()
	if _, dup := s.index[m.ID]; dup || m.ID == "" {
		s.mu.Unlock()
		log.Printf("conversation: refusing message with duplicate or empty id %q", m.ID)
		return false
	}
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
	s.mu.Unlock()

	s.Persist()
	s.render()
	return true
}

// AdvanceStatus sets the status of the user message with the given id.
// Bot messages, unknown ids and backward moves are ignored.
func (s *Store) AdvanceStatus(id string, status message.Status) bool {
	if !status.Valid() {
		return false
	}
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok || !s.messages[i].IsUser() {
		s.mu.Unlock()
		return false
	}
	cur := s.messages[i].Status
	if status.Rank() < cur.Rank() {
		s.mu.Unlock()
		log.Printf("conversation: ignoring status %s for %s, already %s", status, id, cur)
		return false
	}
	s.messages[i].Status = status
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	s.Persist()
	for _, o := range observers {
		o.StatusChanged(id, status)
	}
	return true
}

// Clear drops every message.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.index = make(map[string]int)
	s.mu.Unlock()
	s.Persist()
	s.render()
}

// Persist writes the full sequence to the slot. Failures are logged only.
func (s *Store) Persist() {
	if s.slots == nil {
		return
	}
	msgs := s.Messages()
	if msgs == nil {
		msgs = []message.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		log.Printf("conversation: failed to encode %s: %v", s.key, err)
		return
	}
	if err := s.slots.Set(s.key, string(data)); err != nil {
		log.Printf("conversation: failed to persist %s: %v", s.key, err)
	}
}

// Messages returns a copy of the conversation in creation order.
func (s *Store) Messages() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	out := make([]message.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) render() {
	s.mu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	if len(observers) == 0 {
		return
	}
	msgs := s.Messages()
	for _, o := range observers {
		o.Render(msgs)
	}
}
