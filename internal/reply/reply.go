package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-widget/internal/llm"
	"chat-widget/internal/message"
)

const (
	GreetingReply = "Hello! I can help you explore documentation. Try “search pagination limits”."
	DocsTipReply  = "Docs tip: use the sidebar filters or type “/search <term>”."
	echoTemplate  = "You said: \"%s\". (In a real app, this calls Pidima’s API.)"

	baseDelay    = 1000 * time.Millisecond
	perUnitDelay = 20 * time.Millisecond
	maxExtra     = 1200 * time.Millisecond
)

// Rule pairs a predicate over the lower-cased text with the reply it produces.
type Rule struct {
	Name  string
	Match func(lower string) bool
	Reply func(text string) string
}

func containsAny(words ...string) func(string) bool {
	return func(lower string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
}

func fixed(s string) func(string) string { return func(string) string { return s } }

// Echo is the fallback reply quoting the user's text.
func Echo(text string) string { return fmt.Sprintf(echoTemplate, text) }

// DefaultRules are evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{Name: "greeting", Match: containsAny("hello", "hi"), Reply: fixed(GreetingReply)},
	{Name: "docs", Match: containsAny("doc", "search"), Reply: fixed(DocsTipReply)},
	{Name: "echo", Match: func(string) bool { return true }, Reply: Echo},
}

// Match returns the first rule matching text.
func Match(rules []Rule, text string) (Rule, bool) {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.Match(lower) {
			return r, true
		}
	}
	return Rule{}, false
}

// Scripted produces the canned reply for text using DefaultRules.
func Scripted(text string) string {
	r, ok := Match(DefaultRules, text)
	if !ok {
		return Echo(text)
	}
	return r.Reply(text)
}

// Delay is the simulated latency before the reply to text appears:
// 1s plus 20ms per UTF-16 code unit, the extra part capped at 1.2s.
func Delay(text string) time.Duration {
	extra := time.Duration(utf16Len(text)) * perUnitDelay
	if extra > maxExtra {
		extra = maxExtra
	}
	return baseDelay + extra
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Generator produces bot replies. With a remote client configured the reply comes from the
// model, using the conversation as context; otherwise from the rule table.
type Generator struct {
	Rules        []Rule
	Remote       llm.Client
	SystemPrompt string
	Timeout      time.Duration
}

func NewGenerator(remote llm.Client, systemPrompt string) *Generator {
	return &Generator{
		Rules:        DefaultRules,
		Remote:       remote,
		SystemPrompt: systemPrompt,
		Timeout:      30 * time.Second,
	}
}

func (g *Generator) HasRemote() bool { return g != nil && g.Remote != nil }

func (g *Generator) Scripted(text string) string {
	if g == nil || len(g.Rules) == 0 {
		return Scripted(text)
	}
	r, ok := Match(g.Rules, text)
	if !ok {
		return Echo(text)
	}
	return r.Reply(text)
}

// Generate asks the remote model for a reply. history should already contain the user's
// latest message. Any failure falls back to the scripted reply, so the result is always usable;
// the error is returned for logging.
func (g *Generator) Generate(ctx context.Context, history []message.Message, text string) (string, error) {
	if !g.HasRemote() {
		return g.Scripted(text), nil
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	resp, err := g.Remote.Generate(ctx, BuildContext(g.SystemPrompt, history))
	if err != nil {
		return g.Scripted(text), fmt.Errorf("remote reply: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return g.Scripted(text), fmt.Errorf("remote reply: empty content from %s", resp.Model)
	}
	return resp.Content, nil
}

// BuildContext maps the conversation to model messages: system prompt first, then history.
func BuildContext(systemPrompt string, history []message.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		role := llm.RoleUser
		if m.Author == message.AuthorBot {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Text})
	}
	return out
}
