package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Author string

const (
	AuthorUser Author = "user"
	AuthorBot  Author = "bot"
)

type Status string

const (
	StatusNone      Status = ""
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses along sending → sent → delivered → read.
// Unknown values rank 0, below sending.
func (s Status) Rank() int {
	switch s {
	case StatusSending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	default:
		return 0
	}
}

func (s Status) Valid() bool { return s.Rank() > 0 }

// Message is one entry of the conversation. Status is only set for user messages.
type Message struct {
	ID        string
	Author    Author
	Text      string
	Timestamp time.Time
	Status    Status
}

// NewUser creates a user message in the sending state.
func NewUser(text string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Author:    AuthorUser,
		Text:      text,
		Timestamp: normalize(now),
		Status:    StatusSending,
	}
}

func NewBot(text string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Author:    AuthorBot,
		Text:      text,
		Timestamp: normalize(now),
	}
}

func (m Message) IsUser() bool { return m.Author == AuthorUser }

// timestamps are stored as unix milliseconds
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

type wireMessage struct {
	ID     string `json:"id"`
	Author Author `json:"author"`
	Text   string `json:"text"`
	TS     int64  `json:"ts"`
	Status Status `json:"status,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:     m.ID,
		Author: m.Author,
		Text:   m.Text,
		TS:     m.Timestamp.UnixMilli(),
	}
	if m.IsUser() {
		w.Status = m.Status
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == "" {
		return fmt.Errorf("message without id")
	}
	if w.Author != AuthorUser && w.Author != AuthorBot {
		return fmt.Errorf("message %s: unknown author %q", w.ID, w.Author)
	}
	if w.Status != StatusNone && !w.Status.Valid() {
		return fmt.Errorf("message %s: unknown status %q", w.ID, w.Status)
	}
	*m = Message{
		ID:        w.ID,
		Author:    w.Author,
		Text:      w.Text,
		Timestamp: time.UnixMilli(w.TS).UTC(),
		Status:    w.Status,
	}
	if m.Author == AuthorBot {
		m.Status = StatusNone
	}
	return nil
}
