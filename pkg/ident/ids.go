package ident

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDSource mints unique opaque string identifiers.
type IDSource interface {
	// NewID returns a new unique identifier. Implementations must be safe
	// for concurrent use.
	NewID() string
}

// Clock supplies wall-clock time. Components read time exclusively through
// a Clock so tests can control it.
type Clock interface {
	Now() time.Time
}

// UUIDSource is the production IDSource backed by random UUIDs.
type UUIDSource struct{}

// NewUUIDSource creates a UUID-backed ID source.
func NewUUIDSource() *UUIDSource {
	return &UUIDSource{}
}

// NewID returns a new random UUID string.
func (s *UUIDSource) NewID() string {
	return uuid.New().String()
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// NewSystemClock creates a Clock backed by time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current wall-clock time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// SequenceSource mints predictable identifiers with a fixed prefix and an
// incrementing counter. Intended for tests.
type SequenceSource struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequenceSource creates a SequenceSource. IDs take the form
// "<prefix>-1", "<prefix>-2", and so on.
func NewSequenceSource(prefix string) *SequenceSource {
	return &SequenceSource{prefix: prefix}
}

// NewID returns the next identifier in the sequence.
func (s *SequenceSource) NewID() string {
	n := s.counter.Add(1)
	return fmt.Sprintf("%s-%d", s.prefix, n)
}

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	now atomic.Pointer[time.Time]
}

// NewFakeClock creates a FakeClock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	c := &FakeClock{}
	c.now.Store(&start)
	return c
}

// Now returns the clock's current instant.
func (c *FakeClock) Now() time.Time {
	return *c.now.Load()
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	next := c.Now().Add(d)
	c.now.Store(&next)
}

// Set moves the clock to the given instant.
func (c *FakeClock) Set(t time.Time) {
	c.now.Store(&t)
}
