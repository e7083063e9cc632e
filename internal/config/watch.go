package config

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/billie-coop/ollamagate/internal/watcher"
)

// reloadDelay coalesces the events of one atomic write.
const reloadDelay = 50 * time.Millisecond

// Watch reloads the store whenever the config file changes on disk and calls
// onChange with the new contents. It blocks until ctx ends.
func (s *Store) Watch(ctx context.Context, onChange func(Config)) error {
	w := watcher.NewWatcher(reloadDelay, func([]string) {
		if err := s.Load(); err != nil {
			s.logger.Warn("Ignoring unreadable config change", zap.Error(err))
			return
		}
		s.logger.Debug("Config reloaded", zap.String("path", s.path))
		if onChange != nil {
			onChange(s.Snapshot())
		}
	}, s.logger)
	defer w.Stop()

	return w.Watch(ctx, s.path)
}
