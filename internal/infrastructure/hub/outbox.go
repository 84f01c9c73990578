package hub

import (
	"sync"

	"github.com/gammazero/deque"
)

// outboxLimit bounds the backlog of one connection. Topics carry snapshots, so
// when a connection falls this far behind the oldest queued ones are dropped.
const outboxLimit = 64

// outbox delivers messages to one connection in the order they were queued.
type outbox struct {
	conn    Connection
	deliver func(Connection, *Message) error

	mu    sync.Mutex
	queue deque.Deque[*Message]

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newOutbox(conn Connection, deliver func(Connection, *Message) error) *outbox {
	o := &outbox{
		conn:    conn,
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

// push queues msg and reports how many older messages were dropped to make room.
func (o *outbox) push(msg *Message) int {
	o.mu.Lock()
	o.queue.PushBack(msg)
	dropped := 0
	for o.queue.Len() > outboxLimit {
		o.queue.PopFront()
		dropped++
	}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return dropped
}

func (o *outbox) stop() {
	o.stopOnce.Do(func() { close(o.done) })
}

func (o *outbox) next() (*Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.queue.Len() == 0 {
		return nil, false
	}
	return o.queue.PopFront(), true
}

func (o *outbox) run() {
	for {
		select {
		case <-o.done:
			return
		case <-o.conn.Context().Done():
			return
		case <-o.wake:
		}

		for {
			msg, ok := o.next()
			if !ok {
				break
			}
			if err := o.deliver(o.conn, msg); err != nil {
				return
			}
		}
	}
}
