package license

import (
	"regexp"
	"strconv"
	"sync"
	"time"
)

// DefaultAuditPeriod is used for unrecognised period strings
const DefaultAuditPeriod = 24 * time.Hour

var periodPattern = regexp.MustCompile(`^(\d+)([hdm])$`)

// ParsePeriod turns "<n>h", "<n>d" or "<n>m" (30-day months) into a duration.
// Anything else, including zero amounts, yields 24h.
func ParsePeriod(period string) time.Duration {
	m := periodPattern.FindStringSubmatch(period)
	if m == nil {
		return DefaultAuditPeriod
	}
	amount, err := strconv.Atoi(m[1])
	if err != nil || amount <= 0 {
		return DefaultAuditPeriod
	}

	var unit time.Duration
	switch m[2] {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "m":
		unit = 30 * 24 * time.Hour
	}
	return time.Duration(amount) * unit
}

// ValidPeriod reports whether period is well formed with a positive amount. Callers that
// must reject bad input, rather than fall back to 24h, check this first.
func ValidPeriod(period string) bool {
	m := periodPattern.FindStringSubmatch(period)
	if m == nil {
		return false
	}
	amount, err := strconv.Atoi(m[1])
	return err == nil && amount > 0
}

// AuditLog is a fixed-capacity ring of audit events. The oldest event is dropped first.
type AuditLog struct {
	mu       sync.RWMutex
	events   []AuditEvent
	start    int
	size     int
	capacity int
	now      func() time.Time
}

// NewAuditLog creates a log holding at most capacity events
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &AuditLog{
		events:   make([]AuditEvent, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Append adds an event, overwriting the oldest once full
func (a *AuditLog) Append(event AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.size < a.capacity {
		a.events[(a.start+a.size)%a.capacity] = event
		a.size++
		return
	}
	a.events[a.start] = event
	a.start = (a.start + 1) % a.capacity
}

// Len returns the number of retained events
func (a *AuditLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// Capacity returns the ring size
func (a *AuditLog) Capacity() int {
	return a.capacity
}

// Events returns all retained events, oldest first
func (a *AuditLog) Events() []AuditEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]AuditEvent, 0, a.size)
	for i := 0; i < a.size; i++ {
		out = append(out, a.events[(a.start+i)%a.capacity])
	}
	return out
}

// Query returns events with a timestamp at or after now minus the period, oldest first
func (a *AuditLog) Query(period string) []AuditEvent {
	cutoff := a.now().Add(-ParsePeriod(period))

	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []AuditEvent
	for i := 0; i < a.size; i++ {
		e := a.events[(a.start+i)%a.capacity]
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
