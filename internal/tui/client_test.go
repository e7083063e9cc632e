package tui

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/billie-coop/ollamagate/internal/app"
	"github.com/billie-coop/ollamagate/internal/config"
	"github.com/billie-coop/ollamagate/internal/gateway"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
	"github.com/billie-coop/ollamagate/internal/origin"
)

const tagsBody = `{"models":[
	{"name":"llama3.1:70b","details":{"parameter_size":"70.6B","family":"llama"}},
	{"name":"qwen2.5:0.5b","details":{"parameter_size":"494M","family":"qwen2"}}
]}`

func newTestClient(t *testing.T) (*Client, *app.App) {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, tagsBody)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(upstream.Close)

	logger := zaptest.NewLogger(t)
	store, err := config.Open(filepath.Join(t.TempDir(), "config.yaml"), logger)
	require.NoError(t, err)
	require.NoError(t, store.SetBaseURL(context.Background(), upstream.URL))

	a := app.New(context.Background(), store, logger)
	srv := httptest.NewServer(gateway.New(a, gateway.Config{}, logger).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return NewClient(srv.URL+"/", srv.Client()), a
}

func TestClientAdmin(t *testing.T) {
	c, a := newTestClient(t)
	ctx := context.Background()

	settings, err := c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.Config.BaseURL(ctx), settings.Endpoint)
	assert.Empty(t, settings.AllowedOrigins)
	assert.Equal(t, queue.DefaultLimits(), settings.Limits)

	applied, err := c.SetLimits(ctx, queue.Limits{Heavy: 3, Light: 0})
	require.NoError(t, err)
	assert.Equal(t, queue.Limits{Heavy: 3, Light: 1}, applied)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, applied, status.Limits)
	assert.Zero(t, status.Total())

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.AllowAll(ctx))
	settings, err = c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, origin.AllowList{origin.AllowAll}, settings.AllowedOrigins)
}

func TestClientModels(t *testing.T) {
	c, _ := newTestClient(t)

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "qwen2.5:0.5b", models[0].Name)
	assert.Equal(t, "llama3.1:70b", models[1].Name)
}

func TestClientErrorBody(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.do(context.Background(), http.MethodPut, "/admin/endpoint", map[string]string{"endpoint": "ftp://nope"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUT /admin/endpoint")
}

func TestClientWatchStatus(t *testing.T) {
	c, a := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan queue.Snapshot, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.WatchStatus(ctx, func(s queue.Snapshot) { got <- s })
	}()

	select {
	case s := <-got:
		assert.Equal(t, queue.Snapshot{}, s)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}
	require.Eventually(t, func() bool { return a.Status.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
