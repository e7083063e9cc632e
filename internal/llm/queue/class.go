package queue

import "fmt"

// Class selects the lane a request is scheduled in.
type Class int

const (
	// Light covers listing, metadata, deletion and connectivity checks.
	Light Class = iota
	// Heavy covers model inference and model download.
	Heavy
)

// classes lists every lane in dispatch order.
var classes = [...]Class{Heavy, Light}

func (c Class) String() string {
	switch c {
	case Heavy:
		return "heavy"
	case Light:
		return "light"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Limits holds the concurrency limit of each lane.
type Limits struct {
	Heavy int `json:"heavy" yaml:"heavy"`
	Light int `json:"light" yaml:"light"`
}

// DefaultLimits returns the limits used when nothing is persisted.
func DefaultLimits() Limits {
	return Limits{Heavy: 1, Light: 4}
}

// Clamp raises non-positive limits to 1.
func (l Limits) Clamp() Limits {
	if l.Heavy < 1 {
		l.Heavy = 1
	}
	if l.Light < 1 {
		l.Light = 1
	}
	return l
}

// For returns the limit of the given lane.
func (l Limits) For(c Class) int {
	if c == Heavy {
		return l.Heavy
	}
	return l.Light
}

// Snapshot reports how many items are waiting in each lane.
// Running items are not counted.
type Snapshot struct {
	HeavyPending int `json:"heavyPending"`
	LightPending int `json:"lightPending"`
}

// Total returns the number of waiting items across both lanes.
func (s Snapshot) Total() int {
	return s.HeavyPending + s.LightPending
}
