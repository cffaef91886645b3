package llmprovider

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces unique string ids on demand.
// It must be safe for concurrent use; it is the only state shared between
// concurrent generations besides the Clock.
type IDGenerator func() string

// NewIDGenerator returns a uuid-based generator. A non-empty prefix is
// joined with a dash ("msg-<uuid>").
func NewIDGenerator(prefix string) IDGenerator {
	return func() string {
		if prefix == "" {
			return uuid.New().String()
		}
		return prefix + "-" + uuid.New().String()
	}
}

// SequentialIDs returns a deterministic generator yielding prefix-0, prefix-1, ...
// Intended for tests.
func SequentialIDs(prefix string) IDGenerator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1)-1)
	}
}

// Clock is the time source used for message timestamps and stream pacing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After waits for d to elapse and then sends the current time on the
	// returned channel.
	After(d time.Duration) <-chan time.Time
}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FixedClock is a Clock that always reports the same instant and never waits.
// Intended for tests.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }

// After fires immediately with the fixed instant.
func (c FixedClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.T
	return ch
}
