package session

import "sync"

// Locker serializes work per key in the order turns were reserved. Keys are
// forgotten once their queue drains.
type Locker struct {
	mu     sync.Mutex
	queues map[string][]*Ticket
}

// Ticket is one reserved turn on a key.
type Ticket struct {
	locker *Locker
	key    string
	ready  chan struct{}
	once   sync.Once
}

func NewLocker() *Locker {
	return &Locker{queues: make(map[string][]*Ticket)}
}

// Enqueue reserves the next turn on key without blocking.
func (l *Locker) Enqueue(key string) *Ticket {
	t := &Ticket{locker: l, key: key, ready: make(chan struct{})}
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queues[key]
	if len(q) == 0 {
		close(t.ready)
	}
	l.queues[key] = append(q, t)
	return t
}

// Wait blocks until every earlier ticket on the key has been released.
func (t *Ticket) Wait() { <-t.ready }

// Release ends the turn, or gives it up if it has not started, and hands
// the key to the next ticket. Extra calls are no-ops.
func (t *Ticket) Release() {
	t.once.Do(func() {
		l := t.locker
		l.mu.Lock()
		defer l.mu.Unlock()

		q := l.queues[t.key]
		for i, other := range q {
			if other != t {
				continue
			}
			q = append(q[:i], q[i+1:]...)
			if len(q) == 0 {
				delete(l.queues, t.key)
				return
			}
			l.queues[t.key] = q
			if i == 0 {
				close(q[0].ready)
			}
			return
		}
	})
}

// Lock blocks until key is free and returns the matching unlock func.
func (l *Locker) Lock(key string) (unlock func()) {
	t := l.Enqueue(key)
	t.Wait()
	return t.Release
}

// Held reports how many keys currently have holders or waiters.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}
