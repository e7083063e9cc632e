// Package csync provides thread-safe concurrent data structures.
//
// Example usage:
//
//	streams := csync.NewMap[string, *Stream]()
//	streams.Set(id, stream)
//	defer streams.Delete(id)
//	if s, ok := streams.Get(id); ok {
//		s.Cancel()
//	}
package csync
