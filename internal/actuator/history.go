// internal/actuator/history.go
package actuator

import (
	"sync"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// History is a bounded, concurrency-safe record of recent action results.
// When full, the oldest entries fall off.
type History struct {
	mu      sync.Mutex
	max     int
	results []schemas.ActionResult
}

// NewHistory builds a history bounded at max entries.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 1000
	}
	return &History{max: max}
}

// Append records one result.
func (h *History) Append(r schemas.ActionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	if len(h.results) > h.max {
		h.results = h.results[len(h.results)-h.max:]
	}
}

// All returns a copy of the recorded results, oldest first.
func (h *History) All() []schemas.ActionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]schemas.ActionResult, len(h.results))
	copy(out, h.results)
	return out
}

// Len reports the number of recorded results.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

// Clear drops all recorded results.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = nil
}

// Last returns the most recent result, if any.
func (h *History) Last() (schemas.ActionResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) == 0 {
		return schemas.ActionResult{}, false
	}
	return h.results[len(h.results)-1], true
}
