// Package config is the persistent key-value store behind the gateway.
//
// It holds the few settings the gateway must remember between runs:
//
//	~/.ollamagate/
//	└── config.yaml        # endpoint, allow-list, concurrency limits
//
// The file is small YAML:
//
//	ollama_endpoint: http://127.0.0.1:11434
//	allowed_origins:
//	  - https://formstr.app/*
//	  - http://localhost:5173/*
//	limits:
//	  heavy: 1
//	  light: 4
//
// Absent keys mean built-in defaults, so a missing file is a valid, empty store.
// Every write replaces the file atomically. Watch picks up edits made by other
// processes (the CLI, a text editor) while the gateway is running.
//
// Environment Variable Support:
//
// The endpoint may reference environment variables using $VAR or ${VAR} syntax:
//
//	ollama_endpoint: ${OLLAMA_HOST}
//
// Example usage:
//
//	store, err := config.Open(config.DefaultPath(), logger)
//	if err != nil {
//		return err
//	}
//
//	base := store.BaseURL(ctx)
//	_ = store.SetLimits(ctx, queue.Limits{Heavy: 2, Light: 4})
package config
