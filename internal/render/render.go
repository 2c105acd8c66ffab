package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"chat-widget/internal/message"
)

const logTemplate = `{{range .}}
<article class="msg{{if .Mine}} msg--me{{end}}" aria-label="{{.Who}} at {{.Clock}}" title="{{.Full}}" data-id="{{.ID}}">
  <div class="msg__text">{{.Text}}</div>
  <div class="msg__meta">
    <span>{{.Clock}}</span>
    {{- if .Status}}
    <span class="msg__status">{{.Status}}</span>
    {{- end}}
  </div>
</article>
{{end}}`

var logTmpl = template.Must(template.New("log").Parse(logTemplate))

type entry struct {
	ID     string
	Mine   bool
	Who    string
	Clock  string
	Full   string
	Text   string
	Status string
}

// Renderer formats timestamps in a fixed location.
type Renderer struct {
	Loc *time.Location
}

func New(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{Loc: loc}
}

// Clock is the short HH:MM form shown next to a message.
func (r *Renderer) Clock(ts time.Time) string { return ts.In(r.Loc).Format("15:04") }

func (r *Renderer) full(ts time.Time) string { return ts.In(r.Loc).Format("2006-01-02 15:04:05") }

func Who(m message.Message) string {
	if m.IsUser() {
		return "You"
	}
	return "Assistant"
}

// HTML renders the message log markup. Message text is escaped.
func (r *Renderer) HTML(msgs []message.Message) (string, error) {
	entries := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		e := entry{
			ID:    m.ID,
			Mine:  m.IsUser(),
			Who:   Who(m),
			Clock: r.Clock(m.Timestamp),
			Full:  r.full(m.Timestamp),
			Text:  m.Text,
		}
		if m.IsUser() {
			e.Status = string(m.Status)
		}
		entries = append(entries, e)
	}
	var buf bytes.Buffer
	if err := logTmpl.Execute(&buf, entries); err != nil {
		return "", fmt.Errorf("render log: %w", err)
	}
	return buf.String(), nil
}

// Line renders one message for a terminal log, e.g. "10:04 You: hello · read".
func (r *Renderer) Line(m message.Message) string {
	var b strings.Builder
	b.WriteString(r.Clock(m.Timestamp))
	b.WriteString(" ")
	b.WriteString(Who(m))
	b.WriteString(": ")
	b.WriteString(m.Text)
	if m.IsUser() && m.Status != message.StatusNone {
		b.WriteString(" · ")
		b.WriteString(string(m.Status))
	}
	return b.String()
}

func (r *Renderer) Text(msgs []message.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, r.Line(m))
	}
	return strings.Join(lines, "\n")
}
