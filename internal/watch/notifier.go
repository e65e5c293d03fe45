// Package watch signals changes to the files a run writes.
package watch

import "sync"

// Notifier broadcasts update signals to all subscribed listeners.
// Listeners receive an empty struct when the watched files changed and
// should re-read them.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan struct{}]struct{}
}

// NewNotifier creates a new Notifier instance.
func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[chan struct{}]struct{}),
	}
}

// Subscribe returns a channel that receives pings when updates are available.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Broadcast sends a ping to all listeners.
// Non-blocking: if a listener's channel is full, the ping is skipped.
func (n *Notifier) Broadcast() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- struct{}{}:
		default:
			// Channel full, the listener still has an unread ping
		}
	}
}

// Listeners returns the number of subscribed listeners.
func (n *Notifier) Listeners() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
