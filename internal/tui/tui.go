package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"chat-widget/internal/render"
	"chat-widget/internal/widget"
)

const (
	headerHeight = 2
	footerHeight = 4
	maxInputLen  = 2000
)

// refreshMsg asks the view to re-read the widget state.
type refreshMsg struct{}

// Model is the terminal host: a launcher line when closed, the chat panel when open.
type Model struct {
	app      *widget.App
	renderer *render.Renderer

	composer  textinput.Model
	picker    textinput.Model
	attaching bool

	viewport viewport.Model
	spinner  spinner.Model
	ready    bool
}

func New(app *widget.App, r *render.Renderer) Model {
	composer := textinput.New()
	composer.Placeholder = "Ask about the docs…"
	composer.CharLimit = maxInputLen

	picker := textinput.New()
	picker.Placeholder = "file paths, comma separated"

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		app:      app,
		renderer: r,
		composer: composer,
		picker:   picker,
		spinner:  sp,
		viewport: viewport.New(80, 12),
	}
}

// Listen forwards widget changes to the running program.
func Listen(app *widget.App, p *tea.Program) {
	app.OnChange(func() {
		// the loop must never wait on the UI
		go p.Send(refreshMsg{})
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			m.refresh()
			return m, cmd
		}
		// plain keys belong to the focused input, never to the log
		var cmd tea.Cmd
		if m.attaching {
			m.picker, cmd = m.picker.Update(msg)
		} else {
			m.composer, cmd = m.composer.Update(msg)
		}
		return m, cmd

	case tea.WindowSizeMsg:
		h := msg.Height - headerHeight - footerHeight
		if h < 3 {
			h = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		m.composer.Width = msg.Width - 4
		m.picker.Width = msg.Width - 4
		m.refresh()

	case refreshMsg:
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	if m.attaching {
		m.picker, cmd = m.picker.Update(msg)
	} else {
		m.composer, cmd = m.composer.Update(msg)
	}
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	state := m.app.State()
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit, true
	case tea.KeyEsc:
		if m.attaching {
			m.attaching = false
			m.picker.Reset()
			m.picker.Blur()
			return m.composer.Focus(), true
		}
		m.app.SetOpen(false)
		m.composer.Blur()
		return nil, true
	case tea.KeyEnter:
		if !state.Open {
			m.app.SetOpen(true)
			return m.composer.Focus(), true
		}
		if m.attaching {
			m.app.Attach(strings.Split(m.picker.Value(), ","))
			m.attaching = false
			m.picker.Reset()
			m.picker.Blur()
			return m.composer.Focus(), true
		}
		if m.app.Submit(m.composer.Value()) {
			m.composer.Reset()
		}
		return nil, true
	}

	if !state.Open {
		return nil, true
	}
	switch msg.Type {
	case tea.KeyCtrlT:
		m.app.ToggleTheme()
		return nil, true
	case tea.KeyCtrlO:
		m.attaching = true
		m.composer.Blur()
		return m.picker.Focus(), true
	case tea.KeyCtrlL:
		m.app.Clear()
		return nil, true
	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return nil, true
	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return nil, true
	}
	return nil, false
}

// refresh reloads the log, following new messages unless the user scrolled up.
func (m *Model) refresh() {
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderer.Text(m.app.Messages()))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	state := m.app.State()
	if !state.Open {
		return fmt.Sprintf("\n  [ Chat ]  Enter to open · Ctrl+C to quit  (theme: %s)\n", state.Theme)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Chat · theme: %s · Esc to close\n\n", state.Theme)
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if state.Typing {
		b.WriteString(m.spinner.View() + " Assistant is typing…")
	}
	b.WriteString("\n")
	if m.attaching {
		b.WriteString("Attach: " + m.picker.View())
	} else {
		b.WriteString(m.composer.View())
	}
	b.WriteString("\nEnter send · Ctrl+O attach · Ctrl+T theme · Ctrl+L clear · Ctrl+C quit")
	return b.String()
}
