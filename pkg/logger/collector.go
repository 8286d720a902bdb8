package logger

import (
	"sync"
	"time"
)

// Entry is one retained warn/error log record.
type Entry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Caller  string                 `json:"caller"`
	Count   int                    `json:"count"`
	First   time.Time              `json:"first_seen"`
	Last    time.Time              `json:"last_seen"`
}

// Collector is a fixed-size ring of recent warn/error entries. Identical
// consecutive messages from the same caller collapse into one entry with a
// count, so a flapping component does not flush out everything else.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	head    int
	filled  bool
	cap     int
}

// NewCollector creates a ring retaining up to capacity entries.
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = 100
	}
	return &Collector{entries: make([]Entry, capacity), cap: capacity}
}

// Add records one log entry.
func (c *Collector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// collapse a repeat of the most recent entry
	lastIdx := (c.head - 1 + c.cap) % c.cap
	if (c.filled || c.head > 0) && c.entries[lastIdx].Message == message && c.entries[lastIdx].Caller == caller {
		c.entries[lastIdx].Count++
		c.entries[lastIdx].Last = now
		return
	}

	c.entries[c.head] = Entry{
		Level:   level,
		Message: message,
		Fields:  fields,
		Caller:  caller,
		Count:   1,
		First:   now,
		Last:    now,
	}
	c.head = (c.head + 1) % c.cap
	if c.head == 0 {
		c.filled = true
	}
}

// Snapshot returns retained entries, oldest first.
func (c *Collector) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Entry
	if c.filled {
		out = append(out, c.entries[c.head:]...)
	}
	out = append(out, c.entries[:c.head]...)

	// drop zero-valued slots from a partially filled ring
	res := make([]Entry, 0, len(out))
	for _, e := range out {
		if e.Count > 0 {
			res = append(res, e)
		}
	}
	return res
}
