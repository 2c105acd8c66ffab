package transcript

import "time"

type Kind string

const (
	KindMessage    Kind = "message"
	KindAttachment Kind = "attachment"
	KindReply      Kind = "reply"
)

// Event is one appended conversation message as seen by the audit trail.
// Events are expected to be appended in chronological order.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"message_id"`
	Author    string    `json:"author"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
}

// Recorder abstracts persistence of transcript events.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Append(event Event) error
	Range(from, to time.Time) ([]Event, error)
}

// Day returns the bounds of the calendar day containing t, in t's location.
func Day(t time.Time) (from, to time.Time) {
	from = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return from, from.AddDate(0, 0, 1)
}
