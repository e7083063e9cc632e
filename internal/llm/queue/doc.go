// Package queue schedules upstream requests to the local Ollama server.
//
// # Overview
//
// Ollama can only serve a handful of generation jobs at once, while listing and
// metadata calls are cheap. The queue keeps two independent lanes:
//   - Heavy: inference and model download (generate, chat, pull)
//   - Light: everything else (tags, show, delete, connectivity checks)
//
// Each lane is a strict FIFO with its own concurrency limit. Limits can be changed
// while the gateway is running; raising a limit releases waiting work right away,
// lowering it never interrupts work that is already running.
//
// # Architecture
//
//   - Item: a single unit of work with its class and Future
//   - fifo: the pending list of one lane
//   - lane: pending list plus running count and limit
//   - Manager: owns both lanes, dispatches, persists limits, publishes snapshots
//
// All lane state is guarded by one mutex, so dispatch decisions never interleave.
// Work itself runs on its own goroutine outside the lock.
//
// # Example
//
//	manager := queue.NewManager(ctx, store, broker, logger)
//
//	fut := manager.Submit(ctx, queue.Heavy, func(ctx context.Context) error {
//	    result = client.Do(ctx, req)
//	    return nil
//	}, queue.WithType("generate"))
//
//	if err := fut.Wait(ctx); errors.Is(err, queue.ErrQueueCleared) {
//	    // dropped by Clear before it started
//	}
package queue
