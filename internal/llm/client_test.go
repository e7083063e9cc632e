package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(WithBaseURL(srv.URL), WithLogger(zaptest.NewLogger(t)))
}

func TestClientDo(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		handler http.HandlerFunc
		want    Result
	}{
		{
			name: "plain text root",
			req:  TestConnection{},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/", r.URL.Path)
				fmt.Fprint(w, "Ollama is running")
			},
			want: Result{Success: true, Data: "Ollama is running", Status: http.StatusOK},
		},
		{
			name: "json payload",
			req:  ListModels{},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/tags", r.URL.Path)
				fmt.Fprint(w, `{"models":[]}`)
			},
			want: Result{Success: true, Data: json.RawMessage(`{"models":[]}`), Status: http.StatusOK},
		},
		{
			name: "upstream error",
			req:  ShowModel{Name: "missing"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
			},
			want: Result{Error: "Ollama API Error: 404 - {\"error\":\"model not found\"}\n", Status: http.StatusNotFound},
		},
		{
			name: "delete with empty body",
			req:  DeleteModel{Name: "llama3.2:1b"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{"name":"llama3.2:1b"}`, string(body))
				w.WriteHeader(http.StatusOK)
			},
			want: Result{Success: true, Status: http.StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			assert.Equal(t, tt.want, c.Do(context.Background(), tt.req))
		})
	}
}

func TestClientSendsParamsAndHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"model":"llama3.1","prompt":"hi","stream":false}`, string(body))
		fmt.Fprint(w, `{"response":"hello","done":true}`)
	})

	req := WithStream(Generate{Params: Params{"model": "llama3.1", "prompt": "hi"}}, false)
	result := c.Do(context.Background(), req)
	require.True(t, result.Success, result.Error)
	assert.JSONEq(t, `{"response":"hello","done":true}`, string(result.Data.(json.RawMessage)))
}

func TestClientUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := NewOllamaClient(WithBaseURL("http://"+addr), WithLogger(zaptest.NewLogger(t)))
	result := c.Do(context.Background(), ListModels{})
	assert.False(t, result.Success)
	assert.Equal(t, UnreachableMessage, result.Error)
}

func TestClientRejectsForeignHost(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	result := c.Exchange(context.Background(), "http://example.com/api/tags", http.MethodGet, nil, nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "is not a path")
}

func TestClientSendsClassifiedPath(t *testing.T) {
	for _, endpoint := range []string{"/api/./generate", "/api/x/../chat", "/api/%70ull", "/api//tags"} {
		t.Run(endpoint, func(t *testing.T) {
			seen := make(chan string, 1)
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				seen <- r.URL.Path
				fmt.Fprint(w, "{}")
			})

			req := Raw{Path: endpoint}
			result := c.Do(context.Background(), req)
			require.True(t, result.Success, result.Error)

			path := <-seen
			cleaned, err := CleanEndpoint(endpoint)
			require.NoError(t, err)
			assert.Equal(t, cleaned, path)
			assert.Equal(t, ClassifyEndpoint(path), req.Class())
		})
	}
}

func TestClientResolvesBaseURLPerRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "Ollama is running")
	}))
	defer srv.Close()

	base := "http://127.0.0.1:1"
	c := NewOllamaClient(WithBaseURLFunc(func(context.Context) string { return base }))
	assert.Equal(t, UnreachableMessage, c.Do(context.Background(), TestConnection{}).Error)

	base = srv.URL
	assert.True(t, c.Do(context.Background(), TestConnection{}).Success)
	assert.Equal(t, int32(1), hits.Load())

	base = ""
	assert.Equal(t, DefaultBaseURL, c.BaseURL(context.Background()))
}

func TestIsUnreachable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("boom")}, true},
		{"dns", fmt.Errorf("get: %w", &net.DNSError{Err: "no such host", Name: "ollama"}), true},
		{"refused text", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), true},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), false},
		{"upstream", &UpstreamError{Status: 500, Body: "boom"}, false},
		{"other", errors.New("unexpected EOF"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnreachable(tt.err))
		})
	}
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[
			{"name":"llama3.1:8b","size":4920753328,"details":{"family":"llama","parameter_size":"8.0B"}},
			{"name":"qwen2.5:0.5b","details":{"parameter_size":"494.03M"}}
		]}`)
	})

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3.1:8b", models[0].Name)
	assert.Equal(t, "llama", models[0].Details.Family)
	assert.Equal(t, SizeM, models[0].SizeClass())
	assert.Equal(t, SizeXS, models[1].SizeClass())

	SortModels(models)
	assert.Equal(t, "qwen2.5:0.5b", models[0].Name)
}

func TestListModelsUpstreamFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.ListModels(context.Background())
	assert.ErrorContains(t, err, "Ollama API Error: 500")
	assert.ErrorContains(t, c.HealthCheck(context.Background()), "500")
}
