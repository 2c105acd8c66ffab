package render

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chat-widget/internal/message"
)

const statusOpen = `<span class="msg__status">`

// anchorTmpl renders data-id exactly as the log template does.
var anchorTmpl = template.Must(template.New("anchor").Parse(`data-id="{{.}}"`))

// Snapshot keeps an HTML rendition of the log in a file. A full render rewrites the document;
// a status change only patches that message's status span.
type Snapshot struct {
	path     string
	renderer *Renderer

	mu  sync.Mutex
	doc string
}

func NewSnapshot(path string, r *Renderer) (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure snapshot dir: %w", err)
	}
	if r == nil {
		r = New(nil)
	}
	return &Snapshot{path: path, renderer: r}, nil
}

func (s *Snapshot) Render(msgs []message.Message) {
	doc, err := s.renderer.HTML(msgs)
	if err != nil {
		log.Printf("render: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.writeUnlocked()
}

func (s *Snapshot) StatusChanged(id string, status message.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := patchStatus(s.doc, id, status)
	if !ok {
		log.Printf("render: no status element for message %s", id)
		return
	}
	s.doc = doc
	s.writeUnlocked()
}

// HTML returns the current document.
func (s *Snapshot) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Snapshot) writeUnlocked() {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(s.doc), 0o644); err != nil {
		log.Printf("render: failed to write snapshot: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("render: failed to replace %s: %v", s.path, err)
	}
}

// patchStatus replaces the status text inside the article carrying id.
func patchStatus(doc, id string, status message.Status) (string, bool) {
	var anchor bytes.Buffer
	if err := anchorTmpl.Execute(&anchor, id); err != nil {
		return doc, false
	}
	start := strings.Index(doc, anchor.String())
	if start < 0 {
		return doc, false
	}
	end := strings.Index(doc[start:], "</article>")
	if end < 0 {
		return doc, false
	}
	article := doc[start : start+end]

	i := strings.Index(article, statusOpen)
	if i < 0 {
		return doc, false
	}
	i += len(statusOpen)
	j := strings.Index(article[i:], "</span>")
	if j < 0 {
		return doc, false
	}
	from, to := start+i, start+i+j
	return doc[:from] + template.HTMLEscapeString(string(status)) + doc[to:], true
}
