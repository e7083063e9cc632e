package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billie-coop/ollamagate/internal/app"
	"github.com/billie-coop/ollamagate/internal/llm"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
)

// apply feeds msg through Update and returns the model.
func apply(t *testing.T, m *Model, msg tea.Msg) (*Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(*Model)
	require.True(t, ok)
	return model, cmd
}

func TestModelLimitKeys(t *testing.T) {
	c, a := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(ctx, c)
	m, _ = apply(t, m, settingsMsg(app.Settings{Limits: queue.Limits{Heavy: 1, Light: 4}}))

	cmd := m.handleKey("+")
	require.NotNil(t, cmd)
	assert.Equal(t, noticeMsg("Limits set: heavy 2, light 4"), cmd())
	assert.Equal(t, queue.Limits{Heavy: 2, Light: 4}, a.Queue.Limits())

	cmd = m.handleKey("[")
	assert.Equal(t, noticeMsg("Limits set: heavy 2, light 3"), cmd())

	m.settings.Limits = queue.Limits{Heavy: 1, Light: 1}
	cmd = m.handleKey("-")
	assert.Equal(t, noticeMsg("Limits set: heavy 1, light 1"), cmd())
	assert.Equal(t, queue.Limits{Heavy: 1, Light: 1}, a.Queue.Limits())
}

func TestModelAdminKeys(t *testing.T) {
	c, a := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(ctx, c)

	assert.Equal(t, noticeMsg("Cleared 0 queued request(s)"), m.handleKey("c")())
	assert.Equal(t, noticeMsg("All origins allowed"), m.handleKey("a")())
	assert.True(t, a.Origins.Authorize(ctx, "https://anything.example"))

	cmd := m.handleKey("m")
	require.True(t, m.showModels)
	msg := cmd()
	require.IsType(t, modelsMsg{}, msg)
	assert.Len(t, msg.(modelsMsg), 2)

	assert.Nil(t, m.handleKey("m"))
	assert.False(t, m.showModels)

	assert.Nil(t, m.handleKey("x"))
	assert.IsType(t, tea.QuitMsg{}, m.handleKey("q")())
}

func TestModelStatusFlow(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := New(ctx, c)

	assert.Contains(t, m.render(), "disconnected")

	go m.watch()()
	msg := m.listen()()
	require.Equal(t, snapshotMsg(queue.Snapshot{}), msg)

	m, cmd := apply(t, m, msg)
	assert.NotNil(t, cmd)
	assert.True(t, m.connected)
	assert.Contains(t, m.render(), "live")

	m, _ = apply(t, m, statusMsg(Status{Status: queue.Status{
		Snapshot:     queue.Snapshot{HeavyPending: 2},
		HeavyRunning: 1,
		Limits:       queue.Limits{Heavy: 1, Light: 4},
	}}))
	assert.Equal(t, 2, m.snapshot.HeavyPending)
	assert.True(t, m.busy())

	m, _ = apply(t, m, watchEndMsg{err: assert.AnError})
	assert.False(t, m.connected)
	assert.True(t, m.noticeErr)
	assert.Contains(t, m.render(), "status stream lost")
}

func TestModelListenStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New(ctx, NewClient("http://127.0.0.1:1", nil))
	cancel()

	done := make(chan tea.Msg, 1)
	go func() { done <- m.listen()() }()
	select {
	case msg := <-done:
		assert.Nil(t, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("listen did not return")
	}
}

func TestModelView(t *testing.T) {
	m := New(context.Background(), NewClient("http://127.0.0.1:1", nil))
	m, _ = apply(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = apply(t, m, settingsMsg(app.Settings{
		Endpoint:       "http://127.0.0.1:11434",
		AllowedOrigins: []string{"https://notes.example.com/*"},
		Limits:         queue.Limits{Heavy: 1, Light: 4},
	}))
	m, _ = apply(t, m, noticeMsg("Limits set: heavy 1, light 4"))

	view := m.render()
	assert.Contains(t, view, "ollamagate")
	assert.Contains(t, view, "http://127.0.0.1:11434")
	assert.Contains(t, view, "https://notes.example.com/*")
	assert.Contains(t, view, "Limits set")
	assert.Contains(t, view, "q quit")
	assert.Equal(t, 100, m.contentWidth())
}

func TestModelsMarkdown(t *testing.T) {
	assert.Equal(t, "_No models installed._\n", modelsMarkdown(nil))

	md := modelsMarkdown([]llm.Model{
		{Name: "qwen2.5:0.5b", Details: llm.ModelDetails{ParameterSize: "494M", Family: "qwen2"}},
		{Name: "mystery"},
	})
	assert.Contains(t, md, "| qwen2.5:0.5b | XS | 494M | qwen2 |")
	assert.Contains(t, md, "| mystery | M | ? |  |")
}
