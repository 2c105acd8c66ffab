package widget_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"chat-widget/internal/eventloop"
	"chat-widget/internal/kv"
	"chat-widget/internal/llm"
	"chat-widget/internal/message"
	"chat-widget/internal/metrics"
	"chat-widget/internal/render"
	"chat-widget/internal/reply"
	"chat-widget/internal/theme"
	"chat-widget/internal/transcript"
	"chat-widget/internal/widget"
)

type memRecorder struct {
	mu     sync.Mutex
	events []transcript.Event
}

func (m *memRecorder) Append(ev transcript.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) Range(from, to time.Time) ([]transcript.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []transcript.Event
	for _, ev := range m.events {
		if !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeLLM struct {
	content string
	err     error
}

func (f fakeLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	return llm.Response{Content: f.content, Model: "fake"}, f.err
}

var start = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

var _ = Describe("App", func() {
	var (
		clk     *eventloop.FakeClock
		loop    *eventloop.Loop
		slots   *kv.MemoryStore
		rec     *memRecorder
		met     *metrics.Metrics
		app     *widget.App
		elapsed time.Duration
	)

	newApp := func(replies *reply.Generator) *widget.App {
		a := widget.New(widget.Options{
			Loop:       loop,
			Slots:      slots,
			Preference: theme.PreferenceFunc(func() bool { return false }),
			Replies:    replies,
			Recorder:   rec,
			Metrics:    met,
		})
		a.Boot()
		return a
	}

	// advanceTo moves the clock to start+t and waits for the loop to run what fired.
	advanceTo := func(t time.Duration) {
		clk.Advance(t - elapsed)
		elapsed = t
		loop.Flush()
	}

	only := func() message.Message {
		msgs := app.Messages()
		ExpectWithOffset(1, msgs).NotTo(BeEmpty())
		return msgs[0]
	}

	BeforeEach(func() {
		clk = eventloop.NewFakeClock(start)
		loop = eventloop.New(clk)
		ctx, cancel := context.WithCancel(context.Background())
		loop.Start(ctx)
		DeferCleanup(func() {
			cancel()
			<-loop.Done()
		})
		slots = kv.NewMemoryStore()
		rec = &memRecorder{}
		met = metrics.New()
		elapsed = 0
		app = newApp(nil)
	})

	Describe("submitting text", func() {
		It("walks a message through its receipts and answers a greeting", func() {
			Expect(app.Submit("Hello")).To(BeTrue())

			msgs := app.Messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Author).To(Equal(message.AuthorUser))
			Expect(msgs[0].Text).To(Equal("Hello"))
			Expect(msgs[0].Status).To(Equal(message.StatusSending))
			Expect(clk.Pending()).To(Equal(4))
			Expect(app.State().Typing).To(BeTrue())

			advanceTo(149 * time.Millisecond)
			Expect(only().Status).To(Equal(message.StatusSending))
			advanceTo(150 * time.Millisecond)
			Expect(only().Status).To(Equal(message.StatusSent))
			advanceTo(600 * time.Millisecond)
			Expect(only().Status).To(Equal(message.StatusDelivered))
			advanceTo(900 * time.Millisecond)
			Expect(only().Status).To(Equal(message.StatusRead))

			advanceTo(1099 * time.Millisecond)
			Expect(app.Messages()).To(HaveLen(1))
			advanceTo(1100 * time.Millisecond)
			msgs = app.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Author).To(Equal(message.AuthorBot))
			Expect(msgs[1].Text).To(Equal(reply.GreetingReply))
			Expect(msgs[1].Status).To(Equal(message.StatusNone))
			Expect(msgs[1].Timestamp).To(BeTemporally("==", start.Add(1100*time.Millisecond)))
			Expect(app.State().Typing).To(BeFalse())
			Expect(clk.Pending()).To(Equal(0))
		})

		It("trims surrounding whitespace", func() {
			Expect(app.Submit("  search docs \n")).To(BeTrue())
			Expect(only().Text).To(Equal("search docs"))
		})

		DescribeTable("ignores empty input without scheduling anything",
			func(input string) {
				Expect(app.Submit(input)).To(BeFalse())
				Expect(app.Messages()).To(BeEmpty())
				Expect(clk.Pending()).To(Equal(0))
				Expect(app.State().Typing).To(BeFalse())
			},
			Entry("empty", ""),
			Entry("spaces", "    "),
			Entry("newlines and tabs", "\n\t \n"),
		)

		It("caps the reply delay for long text and gives the docs tip", func() {
			text := "please search " + strings.Repeat("z", 86)
			Expect(text).To(HaveLen(100))
			app.Submit(text)

			advanceTo(2199 * time.Millisecond)
			Expect(app.Messages()).To(HaveLen(1))
			advanceTo(2200 * time.Millisecond)
			msgs := app.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Text).To(Equal(reply.DocsTipReply))
		})

		It("never moves a status backwards", func() {
			app.Submit("status check")
			id := only().ID
			prev := message.StatusSending
			for t := 50 * time.Millisecond; t <= 1500*time.Millisecond; t += 50 * time.Millisecond {
				advanceTo(t)
				m := app.Messages()[0]
				Expect(m.ID).To(Equal(id))
				Expect(m.Status.Rank()).To(BeNumerically(">=", prev.Rank()))
				prev = m.Status
			}
			Expect(prev).To(Equal(message.StatusRead))
		})

		It("keeps typing while any reply is pending", func() {
			app.Submit("hi")
			advanceTo(500 * time.Millisecond)
			app.Submit("a longer question about things")
			advanceTo(1040 * time.Millisecond)
			Expect(app.Messages()).To(HaveLen(3))
			Expect(app.State().Typing).To(BeTrue())
			advanceTo(500*time.Millisecond + reply.Delay("a longer question about things"))
			Expect(app.Messages()).To(HaveLen(4))
			Expect(app.State().Typing).To(BeFalse())
		})
	})

	Describe("closing the panel", func() {
		It("does not cancel pending replies or receipts", func() {
			app.SetOpen(true)
			app.Submit("what is new?")
			app.SetOpen(false)
			Expect(app.State().Open).To(BeFalse())

			advanceTo(3 * time.Second)
			msgs := app.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Status).To(Equal(message.StatusRead))
			Expect(msgs[1].Text).To(Equal(reply.Echo("what is new?")))
		})
	})

	Describe("attachments", func() {
		It("posts base names only, with receipts and no reply", func() {
			Expect(app.Attach([]string{"/home/me/report.pdf", " notes.txt ", ""})).To(BeTrue())
			m := only()
			Expect(m.Text).To(Equal("Attached: report.pdf, notes.txt"))
			Expect(m.Status).To(Equal(message.StatusSending))
			Expect(clk.Pending()).To(Equal(3))

			advanceTo(5 * time.Second)
			Expect(app.Messages()).To(HaveLen(1))
			Expect(only().Status).To(Equal(message.StatusRead))
			Expect(testutil.ToFloat64(met.Attachments)).To(Equal(2.0))
			Expect(rec.events).To(HaveLen(1))
			Expect(rec.events[0].Kind).To(Equal(transcript.KindAttachment))
		})

		It("ignores an empty selection", func() {
			Expect(app.Attach(nil)).To(BeFalse())
			Expect(app.Attach([]string{" "})).To(BeFalse())
			Expect(app.Messages()).To(BeEmpty())
		})
	})

	Describe("persistence", func() {
		It("restores the same conversation on boot", func() {
			app.Submit("Hello")
			app.Attach([]string{"a.png"})
			advanceTo(3 * time.Second)
			before := app.Messages()
			Expect(before).To(HaveLen(3))

			restored := newApp(nil)
			Expect(restored.Messages()).To(Equal(before))
		})

		It("starts empty when the stored conversation is malformed", func() {
			Expect(slots.Set("pidima-chat", "not json")).To(Succeed())
			restored := newApp(nil)
			Expect(restored.Messages()).To(BeEmpty())
		})

		It("clears the conversation but lets scheduled replies land", func() {
			app.Submit("hello there")
			app.Clear()
			Expect(app.Messages()).To(BeEmpty())
			advanceTo(3 * time.Second)
			msgs := app.Messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Author).To(Equal(message.AuthorBot))
		})
	})

	Describe("theme", func() {
		It("toggles and persists the selection", func() {
			Expect(app.State().Theme).To(Equal(theme.Light))
			Expect(app.ToggleTheme()).To(Equal(theme.Dark))
			v, err := slots.Get("pidima-theme")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("dark"))
			Expect(newApp(nil).State().Theme).To(Equal(theme.Dark))
		})
	})

	Describe("observability", func() {
		It("records the transcript and counts activity", func() {
			app.Submit("hello")
			advanceTo(2 * time.Second)

			Expect(rec.events).To(HaveLen(2))
			Expect(rec.events[0].Kind).To(Equal(transcript.KindMessage))
			Expect(rec.events[1].Kind).To(Equal(transcript.KindReply))
			Expect(testutil.ToFloat64(met.MessagesAppended.WithLabelValues("user"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(met.MessagesAppended.WithLabelValues("bot"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(met.StatusTransitions.WithLabelValues("read"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(met.RepliesScheduled)).To(Equal(1.0))
		})

		It("notifies listeners on changes", func() {
			var mu sync.Mutex
			calls := 0
			app.OnChange(func() {
				mu.Lock()
				calls++
				mu.Unlock()
			})
			app.Submit("hello")
			advanceTo(2 * time.Second)
			mu.Lock()
			defer mu.Unlock()
			// append, typing, three receipts, reply
			Expect(calls).To(BeNumerically(">=", 6))
		})
	})

	Describe("html log", func() {
		It("renders appends and patches receipts in place", func() {
			path := filepath.Join(GinkgoT().TempDir(), "chat.html")
			snap, err := render.NewSnapshot(path, render.New(time.UTC))
			Expect(err).NotTo(HaveOccurred())
			app.Subscribe(snap)

			read := func() string {
				data, err := os.ReadFile(path)
				ExpectWithOffset(1, err).NotTo(HaveOccurred())
				return string(data)
			}

			app.Submit("Hello")
			id := only().ID
			Expect(read()).To(ContainSubstring(`data-id="` + id + `"`))
			Expect(read()).To(ContainSubstring(`<span class="msg__status">sending</span>`))

			advanceTo(150 * time.Millisecond)
			Expect(read()).To(ContainSubstring(`<span class="msg__status">sent</span>`))
			advanceTo(900 * time.Millisecond)
			Expect(read()).To(ContainSubstring(`<span class="msg__status">read</span>`))
			Expect(read()).NotTo(ContainSubstring(`<span class="msg__status">sent</span>`))

			advanceTo(1100 * time.Millisecond)
			doc := read()
			Expect(doc).To(ContainSubstring(`aria-label="Assistant at 10:00"`))
			Expect(strings.Count(doc, "<article")).To(Equal(2))
		})
	})

	Describe("flag changes", func() {
		It("are applied on the loop", func() {
			gate := make(chan struct{})
			var once sync.Once
			release := func() { once.Do(func() { close(gate) }) }
			defer release()
			loop.Post(func() { <-gate })

			done := make(chan struct{})
			go func() {
				defer close(done)
				app.SetOpen(true)
				app.ToggleTheme()
			}()
			Consistently(func() bool { return app.State().Open }, 50*time.Millisecond).Should(BeFalse())
			Expect(app.State().Theme).To(Equal(theme.Light))

			release()
			Eventually(done).Should(BeClosed())
			Expect(app.State().Open).To(BeTrue())
			Expect(app.State().Theme).To(Equal(theme.Dark))
		})
	})

	Describe("remote replies", func() {
		It("uses the model's answer no earlier than the scripted delay", func() {
			app = newApp(reply.NewGenerator(fakeLLM{content: "model says hi"}, "prompt"))
			app.Submit("Hello")
			Eventually(clk.Pending).Should(Equal(4))

			advanceTo(1099 * time.Millisecond)
			Expect(app.Messages()).To(HaveLen(1))
			advanceTo(1100 * time.Millisecond)
			msgs := app.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Text).To(Equal("model says hi"))
		})

		It("falls back to the rule table when the model fails", func() {
			app = newApp(reply.NewGenerator(fakeLLM{err: errors.New("offline")}, ""))
			app.Submit("search the docs")
			Eventually(clk.Pending).Should(Equal(4))

			advanceTo(3 * time.Second)
			msgs := app.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Text).To(Equal(reply.DocsTipReply))
			Expect(testutil.ToFloat64(met.ReplyFallbacks)).To(Equal(1.0))
		})
	})
})
