package relay

import (
	"sync"

	"Tunehub/logger"
)

const maxPendingNotifications = 1024

// notifier runs observer calls one at a time in the order they were posted.
// A drain goroutine exists only while work is queued.
type notifier struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	idle    chan struct{} // closed whenever the queue empties
}

func newNotifier() *notifier {
	idle := make(chan struct{})
	close(idle)
	return &notifier{idle: idle}
}

// post queues fn without blocking. When observers fall too far behind the
// call is dropped.
func (n *notifier) post(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.queue) >= maxPendingNotifications {
		logger.Warn("relay observers lagging, dropping notification",
			logger.Int("pending", len(n.queue)))
		return
	}
	n.queue = append(n.queue, fn)
	if !n.running {
		n.running = true
		n.idle = make(chan struct{})
		go n.drain()
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.running = false
			close(n.idle)
			n.mu.Unlock()
			return
		}
		fn := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()

		n.run(fn)
	}
}

func (n *notifier) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("relay observer panic", logger.Any("panic", r))
		}
	}()
	fn()
}

// wait returns a channel closed once everything posted so far has run.
func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.idle
}
