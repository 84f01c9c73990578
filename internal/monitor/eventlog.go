package monitor

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

const DefaultMaxRecentEvents = 50

// EventLog keeps the most recent file events, oldest first.
type EventLog struct {
	mu     sync.RWMutex
	events deque.Deque[FileEvent]
	limit  int
	now    func() time.Time
}

func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = DefaultMaxRecentEvents
	}
	return &EventLog{
		events: deque.Deque[FileEvent]{},
		limit:  limit,
		now:    time.Now,
	}
}

// Append validates ev, stamps the server receive time and evicts the oldest
// entry once the log is full.
func (l *EventLog) Append(ev FileEvent) (FileEvent, error) {
	if err := ev.Validate(); err != nil {
		return FileEvent{}, err
	}
	ev.ServerTime = l.now().UTC().Format(time.RFC3339)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events.PushBack(ev)
	for l.events.Len() > l.limit {
		l.events.PopFront()
	}
	return ev, nil
}

func (l *EventLog) Recent() []FileEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]FileEvent, l.events.Len())
	for i := range out {
		out[i] = l.events.At(i)
	}
	return out
}

func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events.Len()
}
