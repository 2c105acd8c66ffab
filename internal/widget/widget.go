package widget

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chat-widget/internal/conversation"
	"chat-widget/internal/eventloop"
	"chat-widget/internal/kv"
	"chat-widget/internal/message"
	"chat-widget/internal/metrics"
	"chat-widget/internal/reply"
	"chat-widget/internal/theme"
	"chat-widget/internal/transcript"
)

// StatusStep is one scheduled delivery-receipt update, relative to submission.
type StatusStep struct {
	After  time.Duration
	Status message.Status
}

// StatusSchedule advances every user message through its receipts.
var StatusSchedule = []StatusStep{
	{After: 150 * time.Millisecond, Status: message.StatusSent},
	{After: 600 * time.Millisecond, Status: message.StatusDelivered},
	{After: 900 * time.Millisecond, Status: message.StatusRead},
}

const attachedPrefix = "Attached: "

type Options struct {
	Loop       *eventloop.Loop
	Slots      kv.Store
	ChatKey    string
	ThemeKey   string
	Preference theme.Preference
	Replies    *reply.Generator
	Recorder   transcript.Recorder
	Metrics    *metrics.Metrics
	// Context bounds remote reply generation.
	Context context.Context
}

// State is the view-facing snapshot of the widget flags.
type State struct {
	Open   bool
	Typing bool
	Theme  theme.Theme
}

// App is the widget root: it owns the conversation and the flags, and is the only writer.
// Every mutation and every listener call runs on the event loop. The exported methods block
// until their loop task is done and must not be called from a listener.
type App struct {
	ctx      context.Context
	loop     *eventloop.Loop
	store    *conversation.Store
	slots    kv.Store
	themeKey string
	pref     theme.Preference
	replies  *reply.Generator
	recorder transcript.Recorder
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	open      bool
	pending   int
	theme     theme.Theme
	listeners []func()
}

func New(opts Options) *App {
	if opts.Loop == nil {
		opts.Loop = eventloop.New(nil)
	}
	if opts.Replies == nil {
		opts.Replies = reply.NewGenerator(nil, "")
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.ChatKey == "" {
		opts.ChatKey = "pidima-chat"
	}
	if opts.ThemeKey == "" {
		opts.ThemeKey = "pidima-theme"
	}
	a := &App{
		ctx:      opts.Context,
		loop:     opts.Loop,
		store:    conversation.New(opts.Slots, opts.ChatKey),
		slots:    opts.Slots,
		themeKey: opts.ThemeKey,
		pref:     opts.Preference,
		replies:  opts.Replies,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		theme:    theme.Light,
	}
	a.store.Subscribe(changeObserver{a})
	return a
}

// Boot restores the conversation and theme from storage and renders once.
func (a *App) Boot() {
	a.loop.Do(func() {
		t := theme.Load(a.slots, a.themeKey, a.pref)
		a.mu.Lock()
		a.theme = t
		a.mu.Unlock()
		a.store.Load()
	})
}

// OnChange registers f to run after every change. Listeners run on the loop goroutine and
// must not block.
func (a *App) OnChange(f func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, f)
}

// Subscribe attaches a renderer to the conversation. Observers are called on the loop.
func (a *App) Subscribe(o conversation.Observer) { a.store.Subscribe(o) }

func (a *App) Messages() []message.Message { return a.store.Messages() }

func (a *App) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return State{Open: a.open, Typing: a.pending > 0, Theme: a.theme}
}

// Submit sends text as a user message. Surrounding whitespace is trimmed; empty input is
// ignored and reported as false. It must not be called from a loop task.
func (a *App) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	a.loop.Do(func() {
		a.pushUser(text, transcript.KindMessage)
		a.scheduleReply(text)
	})
	return true
}

// Attach posts the names of the selected files as a user message. File contents are never
// read. Attachments get delivery receipts but no bot reply.
func (a *App) Attach(paths []string) bool {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		names = append(names, filepath.Base(p))
	}
	if len(names) == 0 {
		return false
	}
	a.loop.Do(func() {
		a.pushUser(attachedPrefix+strings.Join(names, ", "), transcript.KindAttachment)
		if a.metrics != nil {
			a.metrics.Attachments.Add(float64(len(names)))
		}
	})
	return true
}

// Clear empties the conversation. Replies and receipts already scheduled still fire.
func (a *App) Clear() {
	a.loop.Do(a.store.Clear)
}

// SetOpen shows or hides the panel. Pending work is not cancelled when the panel closes.
func (a *App) SetOpen(open bool) {
	a.loop.Do(func() {
		a.mu.Lock()
		a.open = open
		a.mu.Unlock()
		a.notify()
	})
}

// ToggleTheme flips and persists the theme.
func (a *App) ToggleTheme() theme.Theme {
	var t theme.Theme
	a.loop.Do(func() {
		a.mu.Lock()
		a.theme = a.theme.Toggle()
		t = a.theme
		a.mu.Unlock()
		theme.Save(a.slots, a.themeKey, t)
		a.notify()
	})
	return t
}

func (a *App) pushUser(text string, kind transcript.Kind) message.Message {
	m := message.NewUser(text, a.loop.Now())
	if !a.store.Append(m) {
		return m
	}
	a.record(m, kind)
	a.countAppend(m)

	id := m.ID
	for _, step := range StatusSchedule {
		st := step.Status
		a.loop.After(step.After, func() {
			if a.store.AdvanceStatus(id, st) && a.metrics != nil {
				a.metrics.StatusTransitions.WithLabelValues(string(st)).Inc()
			}
		})
	}
	return m
}

func (a *App) scheduleReply(text string) {
	delay := reply.Delay(text)
	a.mu.Lock()
	a.pending++
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.RepliesScheduled.Inc()
	}

	if !a.replies.HasRemote() {
		r := a.replies.Scripted(text)
		a.loop.After(delay, func() { a.deliverReply(r) })
		a.notify()
		return
	}

	history := a.store.Messages()
	start := a.loop.Now()
	go func() {
		r, err := a.replies.Generate(a.ctx, history, text)
		if err != nil {
			log.Printf("widget: %v; using scripted reply", err)
			if a.metrics != nil {
				a.metrics.ReplyFallbacks.Inc()
			}
		}
		remaining := delay - a.loop.Now().Sub(start)
		if remaining < 0 {
			remaining = 0
		}
		a.loop.After(remaining, func() { a.deliverReply(r) })
	}()
	a.notify()
}

func (a *App) deliverReply(text string) {
	a.mu.Lock()
	if a.pending > 0 {
		a.pending--
	}
	a.mu.Unlock()

	m := message.NewBot(text, a.loop.Now())
	if a.store.Append(m) {
		a.record(m, transcript.KindReply)
		a.countAppend(m)
	}
}

func (a *App) record(m message.Message, kind transcript.Kind) {
	if a.recorder == nil {
		return
	}
	err := a.recorder.Append(transcript.Event{
		Timestamp: m.Timestamp,
		MessageID: m.ID,
		Author:    string(m.Author),
		Kind:      kind,
		Text:      m.Text,
	})
	if err != nil {
		log.Printf("widget: failed to record transcript: %v", err)
	}
}

func (a *App) countAppend(m message.Message) {
	if a.metrics != nil {
		a.metrics.MessagesAppended.WithLabelValues(string(m.Author)).Inc()
	}
}

func (a *App) notify() {
	a.mu.RLock()
	listeners := append([]func(){}, a.listeners...)
	a.mu.RUnlock()
	for _, f := range listeners {
		f()
	}
}

type changeObserver struct{ a *App }

func (o changeObserver) Render([]message.Message)             { o.a.notify() }
func (o changeObserver) StatusChanged(string, message.Status) { o.a.notify() }
