package reply_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"chat-widget/internal/llm"
	"chat-widget/internal/message"
	"chat-widget/internal/reply"
)

type fakeLLM struct {
	resp llm.Response
	err  error
	seen []llm.Message
}

func (f *fakeLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	f.seen = msgs
	return f.resp, f.err
}

var _ = Describe("Scripted", func() {
	DescribeTable("evaluates rules in order, first match wins",
		func(input, expected string) {
			Expect(reply.Scripted(input)).To(Equal(expected))
		},
		Entry("greeting", "Hello", reply.GreetingReply),
		Entry("greeting is case-insensitive", "HI!", reply.GreetingReply),
		Entry("greeting matches substrings", "this is it", reply.GreetingReply),
		Entry("greeting precedes docs", "hi there, can you search docs", reply.GreetingReply),
		Entry("docs keyword", "where are the DOCS", reply.DocsTipReply),
		Entry("search keyword", "search pagination limits", reply.DocsTipReply),
		Entry("echo fallback", "pagination?", `You said: "pagination?". (In a real app, this calls Pidima’s API.)`),
	)

	It("names the matching rule", func() {
		r, ok := reply.Match(reply.DefaultRules, "hi there, can you search docs")
		Expect(ok).To(BeTrue())
		Expect(r.Name).To(Equal("greeting"))
	})
})

var _ = Describe("Delay", func() {
	DescribeTable("is 1000ms plus 20ms per character, capped at 2200ms",
		func(input string, expected time.Duration) {
			Expect(reply.Delay(input)).To(Equal(expected))
		},
		Entry("empty", "", 1000*time.Millisecond),
		Entry("Hello", "Hello", 1100*time.Millisecond),
		Entry("60 chars reaches the cap", strings.Repeat("a", 60), 2200*time.Millisecond),
		Entry("100 chars is capped", strings.Repeat("a", 100), 2200*time.Millisecond),
		Entry("non-BMP runes count twice", "😀", 1040*time.Millisecond),
		Entry("accented runes count once", "héllo", 1100*time.Millisecond),
	)

	It("caps a 100-character search request and still gives the docs tip", func() {
		text := "search " + strings.Repeat("x", 93)
		Expect(text).To(HaveLen(100))
		Expect(reply.Delay(text)).To(Equal(2200 * time.Millisecond))
		Expect(reply.Scripted(text)).To(Equal(reply.DocsTipReply))
	})
})

var _ = Describe("Generator", func() {
	history := []message.Message{
		message.NewUser("first", time.Unix(0, 0)),
		message.NewBot("answer", time.Unix(1, 0)),
		message.NewUser("what now?", time.Unix(2, 0)),
	}

	It("uses the rule table without a remote client", func() {
		g := reply.NewGenerator(nil, "")
		Expect(g.HasRemote()).To(BeFalse())
		text, err := g.Generate(context.Background(), history, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal(reply.GreetingReply))
	})

	It("sends system prompt and history to the remote model", func() {
		remote := &fakeLLM{resp: llm.Response{Content: "from model", Model: "m"}}
		g := reply.NewGenerator(remote, "be brief")
		text, err := g.Generate(context.Background(), history, "what now?")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("from model"))
		Expect(remote.seen).To(Equal([]llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "first"},
			{Role: llm.RoleAssistant, Content: "answer"},
			{Role: llm.RoleUser, Content: "what now?"},
		}))
	})

	It("falls back to the rule table when the remote model fails", func() {
		g := reply.NewGenerator(&fakeLLM{err: errors.New("down")}, "")
		text, err := g.Generate(context.Background(), history, "search docs")
		Expect(err).To(HaveOccurred())
		Expect(text).To(Equal(reply.DocsTipReply))
	})

	It("falls back when the remote model answers with nothing", func() {
		g := reply.NewGenerator(&fakeLLM{resp: llm.Response{Content: "  "}}, "")
		text, err := g.Generate(context.Background(), history, "ok")
		Expect(err).To(HaveOccurred())
		Expect(text).To(Equal(reply.Echo("ok")))
	})
})
