// Package observe is a small callback registry used by the stores to tell
// consumers that their state changed.
package observe

import "sync"

// List holds subscribed callbacks.  The zero value is ready to use.
type List[T any] struct {
	lock   sync.Mutex
	nextID int
	subs   []subscription[T]
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn.  The returned function removes it again; calling
// it more than once is harmless.
func (l *List[T]) Subscribe(fn func(T)) (cancel func()) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscription[T]{id: id, fn: fn})

	return func() {
		l.lock.Lock()
		defer l.lock.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Notify calls every subscriber with v, synchronously and in subscription
// order.  Callers must not hold locks that subscribers might take.
func (l *List[T]) Notify(v T) {
	l.lock.Lock()
	subs := make([]subscription[T], len(l.subs))
	copy(subs, l.subs)
	l.lock.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}
