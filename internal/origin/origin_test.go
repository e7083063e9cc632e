package origin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		list   AllowList
		want   bool
	}{
		{"wildcard allows anything", "https://evil.example", AllowList{AllowAll}, true},
		{"wildcard after other patterns", "http://x.test", AllowList{"https://a.example/*", AllowAll}, true},
		{"empty list allows nothing", "https://a.example", AllowList{}, false},
		{"nil list allows nothing", "https://a.example", nil, false},
		{"prefix pattern matches origin", "https://a.example", AllowList{"https://a.example/*"}, true},
		{"prefix pattern rejects other host", "https://b.example", AllowList{"https://a.example/*"}, false},
		{"pattern without suffix", "http://localhost:3000", AllowList{"http://localhost:3000"}, true},
		{"scheme wildcard subdomain", "https://app.example.org", AllowList{"*://*.example.org/*"}, true},
		{"bare host", "https://formstr.app", AllowList{"formstr.app"}, true},
		{"empty origin", "", AllowList{"https://a.example/*"}, false},
		{"pattern empty after strip", "https://a.example", AllowList{"/*", "*://*"}, false},
		{"empty pattern", "https://a.example", AllowList{""}, false},
		{"malformed pattern is ignored", "https://a.example", AllowList{"::::", "https://a.example/*"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.origin, tt.list))
		})
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("https://App.Example:8443/path/page?q=1#x")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example:8443", got)

	_, err = Normalize("not a url")
	assert.Error(t, err)

	assert.Equal(t, "https://a.example/*", PatternFor("https://a.example/"))
}

func TestValidPattern(t *testing.T) {
	valid := []string{AllowAll, "https://a.example/*", "http://localhost:3000", "*://*.example.org/*", "example.org"}
	invalid := []string{"", "/*", "https://a.example/path", "javascript:alert(1)", "http://"}

	for _, p := range valid {
		assert.True(t, ValidPattern(p), p)
	}
	for _, p := range invalid {
		assert.False(t, ValidPattern(p), p)
	}
}

type memoryStore struct {
	origins []string
	err     error
}

func (s *memoryStore) AllowedOrigins(context.Context) ([]string, error) {
	return append([]string(nil), s.origins...), s.err
}

func (s *memoryStore) SetAllowedOrigins(_ context.Context, origins []string) error {
	if s.err != nil {
		return s.err
	}
	s.origins = append([]string(nil), origins...)
	return nil
}

func TestManagerMaintainsList(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	m := NewManager(store, zaptest.NewLogger(t))

	require.NoError(t, m.Add(ctx, "https://a.example/*"))
	require.NoError(t, m.Add(ctx, "https://a.example/*"))
	pattern, err := m.AddOrigin(ctx, "http://localhost:5173/editor/42")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173/*", pattern)
	assert.Equal(t, []string{"https://a.example/*", "http://localhost:5173/*"}, store.origins)

	assert.True(t, m.Authorize(ctx, "http://localhost:5173"))
	assert.False(t, m.Authorize(ctx, "https://b.example"))

	require.NoError(t, m.Remove(ctx, "https://a.example/*"))
	require.NoError(t, m.Remove(ctx, "https://missing.example/*"))
	assert.Equal(t, []string{"http://localhost:5173/*"}, store.origins)

	require.NoError(t, m.AllowAllOrigins(ctx))
	assert.Equal(t, []string{AllowAll}, store.origins)
	assert.True(t, m.Authorize(ctx, "https://b.example"))
}

func TestManagerRejectsInvalidPattern(t *testing.T) {
	m := NewManager(&memoryStore{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, m.Add(context.Background(), "https://a.example/path"), ErrInvalidPattern)

	_, err := m.AddOrigin(context.Background(), "nonsense")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestManagerDeniesWhenStoreFails(t *testing.T) {
	m := NewManager(&memoryStore{origins: []string{AllowAll}, err: errors.New("io")}, zaptest.NewLogger(t))
	assert.False(t, m.Authorize(context.Background(), "https://a.example"))
}
