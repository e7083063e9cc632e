package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/billie-coop/ollamagate/internal/llm"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Keys accepted by Get and Set.
const (
	KeyEndpoint       = "ollama_endpoint"
	KeyAllowedOrigins = "allowed_origins"
	KeyHeavyLimit     = "limits.heavy"
	KeyLightLimit     = "limits.light"
)

// ErrInvalidEndpoint is returned for endpoints that are not http(s)://host[:port].
var ErrInvalidEndpoint = errors.New("invalid endpoint format (e.g., http://localhost:11434)")

var endpointPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9.-]+(:[0-9]+)?$`)

// Config represents the persisted gateway state
type Config struct {
	OllamaEndpoint string        `yaml:"ollama_endpoint,omitempty"`
	AllowedOrigins []string      `yaml:"allowed_origins,omitempty"`
	Limits         *queue.Limits `yaml:"limits,omitempty"`
}

// Store handles loading and saving the config file
type Store struct {
	path   string
	config Config
	mu     sync.RWMutex
	logger *zap.Logger
}

// DefaultPath returns ~/.ollamagate/config.yaml, or a path in the working
// directory when there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ollamagate", "config.yaml")
	}
	return filepath.Join(home, ".ollamagate", "config.yaml")
}

// Open creates a store for path and loads it. A missing file is not an error.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file from disk, replacing the in-memory copy.
func (s *Store) Load() error {
	cfg, err := s.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	return nil
}

func (s *Store) read() (Config, error) {
	var cfg Config
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.clone()
}

// BaseURL returns the Ollama base URL, falling back to llm.DefaultBaseURL.
func (s *Store) BaseURL(context.Context) string {
	s.mu.RLock()
	endpoint := s.config.OllamaEndpoint
	s.mu.RUnlock()

	endpoint = expandString(endpoint)
	if endpoint == "" {
		return llm.DefaultBaseURL
	}
	return endpoint
}

// SetBaseURL validates and stores the Ollama base URL.
func (s *Store) SetBaseURL(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if !endpointPattern.MatchString(endpoint) && !strings.HasPrefix(endpoint, "$") {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	return s.update(func(c *Config) { c.OllamaEndpoint = endpoint })
}

// AllowedOrigins returns the allow-list in order.
func (s *Store) AllowedOrigins(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.config.AllowedOrigins...), nil
}

// SetAllowedOrigins replaces the allow-list.
func (s *Store) SetAllowedOrigins(_ context.Context, origins []string) error {
	origins = append([]string(nil), origins...)
	return s.update(func(c *Config) { c.AllowedOrigins = origins })
}

// Limits returns the persisted concurrency limits or queue.DefaultLimits.
func (s *Store) Limits(context.Context) (queue.Limits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config.Limits == nil {
		return queue.DefaultLimits(), nil
	}
	return *s.config.Limits, nil
}

// SetLimits stores the concurrency limits, clamped to at least 1.
func (s *Store) SetLimits(_ context.Context, limits queue.Limits) error {
	limits = limits.Clamp()
	return s.update(func(c *Config) { c.Limits = &limits })
}

// Get returns a single value by key, formatted as text.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	switch key {
	case KeyEndpoint:
		return s.BaseURL(ctx), nil
	case KeyAllowedOrigins:
		origins, _ := s.AllowedOrigins(ctx)
		return strings.Join(origins, ","), nil
	case KeyHeavyLimit, KeyLightLimit:
		limits, _ := s.Limits(ctx)
		if key == KeyHeavyLimit {
			return strconv.Itoa(limits.Heavy), nil
		}
		return strconv.Itoa(limits.Light), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// Set updates a configuration value by key and saves
func (s *Store) Set(ctx context.Context, key, value string) error {
	switch key {
	case KeyEndpoint:
		return s.SetBaseURL(ctx, value)
	case KeyAllowedOrigins:
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return s.SetAllowedOrigins(ctx, origins)
	case KeyHeavyLimit, KeyLightLimit:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid limit %q: %w", value, err)
		}
		limits, _ := s.Limits(ctx)
		if key == KeyHeavyLimit {
			limits.Heavy = n
		} else {
			limits.Light = n
		}
		return s.SetLimits(ctx, limits)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}

// update applies fn to a copy of the config, writes it, then swaps it in.
func (s *Store) update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.config.clone()
	fn(&next)
	if err := s.save(next); err != nil {
		return err
	}
	s.config = next
	return nil
}

// save writes cfg to disk atomically. Caller holds the write lock.
func (s *Store) save(cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ollamagate-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	if c.Limits != nil {
		l := *c.Limits
		out.Limits = &l
	}
	return out
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandString expands environment variables in a string
// Supports $VAR and ${VAR} syntax
func expandString(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Return original if env var not found
		return match
	})
}
