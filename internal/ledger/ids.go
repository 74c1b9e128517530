package ledger

import (
	"sync"
	"time"
)

// IDSource hands out record ids. Ids must be unique within a ledger and
// strictly increasing in creation order.
type IDSource interface {
	Next() int64
	// Observe tells the source about an id that already exists so Next
	// never returns it again.
	Observe(id int64)
}

// ClockIDs issues millisecond timestamps, bumped by one whenever two ids
// would otherwise collide or go backwards (same millisecond, clock skew).
// Ids stay compatible with ledgers saved by the browser widget, which used
// Date.now().
type ClockIDs struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewClockIDs() *ClockIDs {
	return &ClockIDs{now: time.Now}
}

func (c *ClockIDs) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.now().UnixMilli()
	if id <= c.last {
		id = c.last + 1
	}
	c.last = id
	return id
}

func (c *ClockIDs) Observe(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id > c.last {
		c.last = id
	}
}

// SequenceIDs is a plain counter starting at 1.
type SequenceIDs struct {
	mu   sync.Mutex
	last int64
}

func (s *SequenceIDs) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

func (s *SequenceIDs) Observe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.last {
		s.last = id
	}
}
