// Package watcher reports file changes with debouncing.
//
// Editors and atomic writers touch a file several times per save (write,
// chmod, rename of a temp file over it). The watcher collects those events
// and calls back once things settle, with every path that changed.
//
// Parent directories are watched rather than the files themselves, so a file
// replaced through a rename keeps being watched.
//
// Example:
//
//	w := watcher.NewWatcher(50*time.Millisecond, func(paths []string) {
//		reload()
//	}, logger)
//	defer w.Stop()
//	err := w.Watch(ctx, "/home/me/.ollamagate/config.yaml")
package watcher
