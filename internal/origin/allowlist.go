package origin

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Store persists the allow-list. Implemented by config.Store.
type Store interface {
	AllowedOrigins(ctx context.Context) ([]string, error)
	SetAllowedOrigins(ctx context.Context, origins []string) error
}

// Manager is the management surface of the allow-list: the commands the popup used
// to send. Reads go straight to the store so external edits are always honoured.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager creates an allow-list manager backed by store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}
}

// List returns the current patterns in order.
func (m *Manager) List(ctx context.Context) (AllowList, error) {
	origins, err := m.store.AllowedOrigins(ctx)
	if err != nil {
		return nil, fmt.Errorf("load allow-list: %w", err)
	}
	return AllowList(origins), nil
}

// Authorize loads the allow-list and checks callerOrigin against it.
// A failing store denies the caller.
func (m *Manager) Authorize(ctx context.Context, callerOrigin string) bool {
	list, err := m.List(ctx)
	if err != nil {
		m.logger.Warn("Denying caller, allow-list unavailable",
			zap.String("origin", callerOrigin),
			zap.Error(err))
		return false
	}
	return Authorize(callerOrigin, list)
}

// Add appends pattern unless already present.
func (m *Manager) Add(ctx context.Context, pattern string) error {
	if !ValidPattern(pattern) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	list, err := m.List(ctx)
	if err != nil {
		return err
	}
	if list.Contains(pattern) {
		return nil
	}
	if err := m.save(ctx, append(list, pattern)); err != nil {
		return err
	}
	m.logger.Info("Origin allowed", zap.String("pattern", pattern))
	return nil
}

// AddOrigin allows every page of the origin of rawURL, e.g. the page the user
// is currently looking at.
func (m *Manager) AddOrigin(ctx context.Context, rawURL string) (string, error) {
	o, err := Normalize(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	pattern := PatternFor(o)
	return pattern, m.Add(ctx, pattern)
}

// AllowAllOrigins replaces the list with the wildcard pattern.
func (m *Manager) AllowAllOrigins(ctx context.Context) error {
	if err := m.save(ctx, AllowList{AllowAll}); err != nil {
		return err
	}
	m.logger.Warn("All origins allowed")
	return nil
}

// Remove deletes every occurrence of pattern. Removing an absent pattern is a no-op.
func (m *Manager) Remove(ctx context.Context, pattern string) error {
	list, err := m.List(ctx)
	if err != nil {
		return err
	}
	kept := make(AllowList, 0, len(list))
	for _, p := range list {
		if p != pattern {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	if err := m.save(ctx, kept); err != nil {
		return err
	}
	m.logger.Info("Origin removed", zap.String("pattern", pattern))
	return nil
}

func (m *Manager) save(ctx context.Context, list AllowList) error {
	if err := m.store.SetAllowedOrigins(ctx, []string(list)); err != nil {
		return fmt.Errorf("save allow-list: %w", err)
	}
	return nil
}
