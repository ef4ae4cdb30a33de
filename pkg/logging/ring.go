package logging

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRingCapacity bounds the in-memory log ring.
const DefaultRingCapacity = 1000

// Entry is one captured log line, as served by the dashboard log API.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// RingHook is a logrus hook that mirrors every entry into a bounded
// in-memory ring. Reads are safe while the pipeline is writing.
type RingHook struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

// NewRingHook creates a ring holding up to capacity entries. A
// non-positive capacity uses DefaultRingCapacity.
func NewRingHook(capacity int) *RingHook {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &RingHook{capacity: capacity}
}

// Levels implements logrus.Hook.
func (h *RingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *RingHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Entry{
		Timestamp: entry.Time,
		Level:     levelName(entry.Level),
		Message:   entry.Message,
	})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
	return nil
}

// Recent returns up to limit of the newest entries in chronological order,
// optionally restricted to one level. An empty level or "ALL" matches
// every level; a non-positive limit returns everything retained.
func (h *RingHook) Recent(limit int, level string) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	var matched []Entry
	if level == "" || strings.EqualFold(level, "ALL") {
		matched = append(matched, h.entries...)
	} else {
		for _, e := range h.entries {
			if strings.EqualFold(e.Level, level) {
				matched = append(matched, e)
			}
		}
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// levelName maps logrus levels onto the pipeline's level taxonomy.
func levelName(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARNING"
	}
	return strings.ToUpper(level.String())
}
