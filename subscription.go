package keyfold

import (
	"sync"
	"sync/atomic"
)

// Subscription represents an active callback registration that can be
// cancelled.
type Subscription interface {
	// Unsubscribe cancels the registration. Safe to call multiple times.
	Unsubscribe()
}

// lockSubscribers manages lock-notification callbacks with safe lifecycle:
// a callback is never invoked after its unsubscribe completes.
type lockSubscribers struct {
	mu     sync.Mutex
	subs   map[uint64]*lockSubscription
	nextID atomic.Uint64
	fired  bool
}

type lockSubscription struct {
	owner    *lockSubscribers
	id       uint64
	callback func()
	active   atomic.Bool
}

func (s *lockSubscription) Unsubscribe() {
	s.active.Store(false)
	s.owner.mu.Lock()
	delete(s.owner.subs, s.id)
	s.owner.mu.Unlock()
}

func newLockSubscribers() *lockSubscribers {
	return &lockSubscribers{subs: make(map[uint64]*lockSubscription)}
}

func (l *lockSubscribers) add(callback func()) Subscription {
	sub := &lockSubscription{
		owner:    l,
		id:       l.nextID.Add(1),
		callback: callback,
	}
	sub.active.Store(true)

	l.mu.Lock()
	alreadyFired := l.fired
	if !alreadyFired {
		l.subs[sub.id] = sub
	}
	l.mu.Unlock()

	// Subscribing to an already-locked session fires immediately so the
	// caller cannot miss the transition.
	if alreadyFired {
		callback()
	}
	return sub
}

func (l *lockSubscribers) notify() {
	l.mu.Lock()
	if l.fired {
		l.mu.Unlock()
		return
	}
	l.fired = true
	subs := make([]*lockSubscription, 0, len(l.subs))
	for _, sub := range l.subs {
		subs = append(subs, sub)
	}
	l.mu.Unlock()

	// Callbacks run without the lock held; the active flag keeps
	// unsubscribed callbacks from firing.
	for _, sub := range subs {
		if sub.active.Load() {
			sub.callback()
		}
	}
}
