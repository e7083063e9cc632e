// Package tui is the terminal monitor for a running gateway: queue depth,
// limits, allow-list and installed models, with keys to change limits and
// clear the queue.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/v2/spinner"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/glamour/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"github.com/billie-coop/ollamagate/internal/app"
	"github.com/billie-coop/ollamagate/internal/llm"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
)

const (
	refreshInterval = 2 * time.Second
	requestTimeout  = 5 * time.Second
)

type (
	snapshotMsg queue.Snapshot
	statusMsg   Status
	settingsMsg app.Settings
	modelsMsg   []llm.Model
	noticeMsg   string
	errMsg      struct{ err error }
	watchEndMsg struct{ err error }
	refreshMsg  time.Time
)

// Model is the monitor's bubbletea model.
type Model struct {
	ctx    context.Context
	client *Client

	// Snapshots from the status socket, latest wins
	updates chan queue.Snapshot

	spinner spinner.Model
	styles  styles

	snapshot  queue.Snapshot
	status    Status
	settings  app.Settings
	models    []llm.Model
	connected bool

	showModels bool
	notice     string
	noticeErr  bool

	width  int
	height int
}

// New creates a monitor for the gateway behind client. The status socket is
// closed when ctx ends.
func New(ctx context.Context, client *Client) *Model {
	return &Model{
		ctx:     ctx,
		client:  client,
		updates: make(chan queue.Snapshot, 1),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		styles:  newStyles(),
	}
}

// Init starts the status watch, the first fetches and the refresh ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.watch(),
		m.listen(),
		m.fetchSettings(),
		m.fetchStatus(),
		tick(),
	)
}

// Update handles all TUI updates
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		return m, m.handleKey(msg.String())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.connected = true
		m.snapshot = queue.Snapshot(msg)
		m.status.Snapshot = m.snapshot
		return m, m.listen()

	case statusMsg:
		m.status = Status(msg)
		m.snapshot = m.status.Snapshot
		return m, nil

	case settingsMsg:
		m.settings = app.Settings(msg)
		return m, nil

	case modelsMsg:
		m.models = msg
		return m, nil

	case noticeMsg:
		m.notice, m.noticeErr = string(msg), false
		return m, tea.Batch(m.fetchStatus(), m.fetchSettings())

	case errMsg:
		m.notice, m.noticeErr = msg.err.Error(), true
		return m, nil

	case watchEndMsg:
		m.connected = false
		if msg.err != nil && m.ctx.Err() == nil {
			m.notice, m.noticeErr = "status stream lost: "+msg.err.Error(), true
			// reconnect on the next refresh tick
		}
		return m, nil

	case refreshMsg:
		cmds := []tea.Cmd{m.fetchStatus(), tick()}
		if !m.connected {
			cmds = append(cmds, m.watch())
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

// handleKey maps a key press to a command.
func (m *Model) handleKey(key string) tea.Cmd {
	limits := m.settings.Limits
	switch key {
	case "q", "ctrl+c", "esc":
		return tea.Quit
	case "+", "=":
		limits.Heavy++
		return m.setLimits(limits)
	case "-", "_":
		limits.Heavy--
		return m.setLimits(limits)
	case "]":
		limits.Light++
		return m.setLimits(limits)
	case "[":
		limits.Light--
		return m.setLimits(limits)
	case "c":
		return m.run(func(ctx context.Context) (string, error) {
			n, err := m.client.Clear(ctx)
			return fmt.Sprintf("Cleared %d queued request(s)", n), err
		})
	case "a":
		return m.run(func(ctx context.Context) (string, error) {
			return "All origins allowed", m.client.AllowAll(ctx)
		})
	case "m":
		m.showModels = !m.showModels
		if m.showModels {
			return m.fetchModels()
		}
	case "r":
		return tea.Batch(m.fetchStatus(), m.fetchSettings())
	}
	return nil
}

func (m *Model) setLimits(limits queue.Limits) tea.Cmd {
	limits = limits.Clamp()
	m.settings.Limits = limits
	return m.run(func(ctx context.Context) (string, error) {
		applied, err := m.client.SetLimits(ctx, limits)
		return fmt.Sprintf("Limits set: heavy %d, light %d", applied.Heavy, applied.Light), err
	})
}

// run performs an admin call and reports its outcome as a notice.
func (m *Model) run(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		notice, err := fn(ctx)
		if err != nil {
			return errMsg{err}
		}
		return noticeMsg(notice)
	}
}

// watch feeds status snapshots into the updates mailbox until the socket drops.
func (m *Model) watch() tea.Cmd {
	return func() tea.Msg {
		err := m.client.WatchStatus(m.ctx, func(s queue.Snapshot) {
			for {
				select {
				case m.updates <- s:
					return
				default:
				}
				select {
				case <-m.updates:
				default:
				}
			}
		})
		return watchEndMsg{err}
	}
}

// listen waits for the next snapshot.
func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-m.updates:
			return snapshotMsg(s)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		s, err := m.client.Status(ctx)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg(s)
	}
}

func (m *Model) fetchSettings() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		s, err := m.client.Settings(ctx)
		if err != nil {
			return errMsg{err}
		}
		return settingsMsg(s)
	}
}

func (m *Model) fetchModels() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		models, err := m.client.Models(ctx)
		if err != nil {
			return errMsg{err}
		}
		return modelsMsg(models)
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// View renders the monitor.
func (m *Model) View() tea.View {
	return tea.NewView(m.render())
}

func (m *Model) render() string {
	s := m.styles
	var b strings.Builder

	title := s.title.Render("ollamagate")
	if m.busy() {
		title += " " + m.spinner.View()
	}
	b.WriteString(title + "\n")

	limits := m.status.Limits
	if limits == (queue.Limits{}) {
		limits = m.settings.Limits
	}
	queuePanel := lipgloss.JoinVertical(lipgloss.Left,
		m.laneLine(s.heavy.Render("heavy"), m.snapshot.HeavyPending, m.status.HeavyRunning, limits.Heavy),
		m.laneLine(s.light.Render("light"), m.snapshot.LightPending, m.status.LightRunning, limits.Light),
		s.label.Render("streams")+s.value.Render(fmt.Sprint(m.status.Streams))+s.muted.Render(" open"),
	)
	b.WriteString(s.panel.Render(queuePanel) + "\n")

	connection := s.err.Render("disconnected")
	if m.connected {
		connection = s.success.Render("live")
	}
	origins := strings.Join(m.settings.AllowedOrigins, ", ")
	if origins == "" {
		origins = s.muted.Render("(none, every caller is rejected)")
	}
	settingsPanel := lipgloss.JoinVertical(lipgloss.Left,
		s.label.Render("ollama")+s.value.Render(m.settings.Endpoint),
		s.label.Render("origins")+origins,
		s.label.Render("status")+connection,
	)
	b.WriteString(s.panel.Render(settingsPanel) + "\n")

	if m.showModels {
		b.WriteString(renderModels(m.models, m.contentWidth()))
	}

	if m.notice != "" {
		if m.noticeErr {
			b.WriteString(s.err.Render(m.notice) + "\n")
		} else {
			b.WriteString(s.success.Render(m.notice) + "\n")
		}
	}

	b.WriteString(s.help.Render("+/- heavy limit  ]/[ light limit  c clear  a allow all  m models  r refresh  q quit"))
	return b.String()
}

func (m *Model) laneLine(name string, pending, running, limit int) string {
	s := m.styles
	return fmt.Sprintf("%s %s pending  %s/%s running",
		s.label.Render(name),
		s.value.Render(fmt.Sprint(pending)),
		s.value.Render(fmt.Sprint(running)),
		s.value.Render(fmt.Sprint(limit)))
}

func (m *Model) busy() bool {
	return m.snapshot.Total() > 0 || m.status.HeavyRunning > 0 || m.status.LightRunning > 0
}

func (m *Model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

// modelsMarkdown renders models as a markdown table.
func modelsMarkdown(models []llm.Model) string {
	if len(models) == 0 {
		return "_No models installed._\n"
	}
	var b strings.Builder
	b.WriteString("| Model | Size | Parameters | Family |\n|---|---|---|---|\n")
	for _, model := range models {
		params := model.Details.ParameterSize
		if params == "" {
			params = "?"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", model.Name, model.SizeClass(), params, model.Details.Family)
	}
	return b.String()
}

func renderModels(models []llm.Model, width int) string {
	md := modelsMarkdown(models)
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dracula"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
