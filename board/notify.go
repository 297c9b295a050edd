package board

import "sync"

// changeBroker fans out "board changed" signals to renderers. Signals are
// coalesced: a subscriber that has not drained its channel gets no extra
// signal.
type changeBroker struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

func newChangeBroker() *changeBroker {
	return &changeBroker{subs: make(map[chan struct{}]struct{})}
}

func (b *changeBroker) subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

func (b *changeBroker) unsubscribe(ch <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub == ch {
			delete(b.subs, sub)
			close(sub)
			return
		}
	}
}

func (b *changeBroker) notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *changeBroker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
