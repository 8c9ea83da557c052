// Package annotations provides a low-overhead event system for tracking
// join phase timings and cardinalities.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Run lifecycle
	RunBegin    = "run/begin"
	RunComplete = "run/completed"

	// Workload
	WorkloadGenerated = "workload/generated"
	WorkloadLoaded    = "workload/loaded"
	WorkloadArchived  = "workload/archived"

	// Join phases
	PhaseComplete = "phase/complete"
	JoinComplete  = "join/completed"

	// Errors
	ErrorConfiguration = "error/configuration"
	ErrorAllocation    = "error/allocation"
	ErrorInvariant     = "error/invariant"
)

// Event represents a single annotation event during a run.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during a run. A nil *Collector is valid and
// drops everything.
type Collector struct {
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector. Events are retained even
// without a handler so that callers can inspect them afterwards.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		handler: handler,
		events:  make([]Event, 0, 16),
	}
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	if c.handler != nil {
		c.handler(event)
	}
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if c == nil {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Named returns the collected events with the given name, in order.
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
