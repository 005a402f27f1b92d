// Package contentstore keeps the in-memory collections of posts, thoughts and
// gallery images, and reconciles them with the content API.
//
// Mutations are never applied optimistically: the collection changes only
// after the gateway call succeeds, and then from the server's response.
package contentstore

import (
	"context"
	"sync"

	"folio/observe"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// Record is anything with a server-assigned identity.
type Record interface {
	RecordID() string
}

// Snapshot is what observers receive: the items at one moment, and whether a
// refresh is in flight.
type Snapshot[T Record] struct {
	Items   []T
	Loading bool
}

// Lister fetches the full current collection.
type Lister[T any] interface {
	List(ctx context.Context) ([]T, error)
}

// Collection is the read side shared by every store.
type Collection[T Record] struct {
	name string
	list Lister[T]

	lock  sync.Mutex
	items []T

	// inFlight counts refreshes that have started but not finished.
	inFlight int

	// refreshed is set by the first successful refresh.
	refreshed bool

	// version numbers snapshots in the order they were taken.
	version uint64

	// notifyLock orders delivery; delivered is the newest version observers
	// have seen, and older snapshots are dropped.
	notifyLock sync.Mutex
	delivered  uint64

	observers observe.List[Snapshot[T]]
}

func newCollection[T Record](name string, list Lister[T]) *Collection[T] {
	return &Collection[T]{
		name: name,
		list: list,
	}
}

// Name identifies the collection in logs.
func (c *Collection[T]) Name() string {
	return c.name
}

// Items returns a copy of the current items.
func (c *Collection[T]) Items() []T {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.copyItemsLocked()
}

// IsLoading reports whether any refresh is in flight.
func (c *Collection[T]) IsLoading() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.inFlight > 0
}

// Refreshed reports whether any refresh has succeeded yet.
func (c *Collection[T]) Refreshed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.refreshed
}

// GetByID looks id up in the current items.  It does not contact the server.
func (c *Collection[T]) GetByID(id string) (T, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, it := range c.items {
		if it.RecordID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Subscribe registers fn to be called after every change.  Calls are
// serialized and never go backwards: a snapshot older than one already
// delivered is skipped.  fn may read the collection but must not mutate it.
func (c *Collection[T]) Subscribe(fn func(Snapshot[T])) (cancel func()) {
	return c.observers.Subscribe(fn)
}

// Refresh replaces the items with the server's list.  A failure is logged and
// leaves the items as they were.
//
// Overlapping refreshes are not merged or de-duplicated: each one that
// succeeds replaces the items when it resolves, so the last to resolve wins.
func (c *Collection[T]) Refresh(ctx context.Context) {
	c.lock.Lock()
	c.inFlight++
	snap, version := c.snapshotLocked()
	c.lock.Unlock()
	c.deliver(snap, version)

	got, err := c.list.List(ctx)

	c.lock.Lock()
	if err == nil {
		c.items = append([]T(nil), got...)
		c.refreshed = true
	}
	c.inFlight--
	snap, version = c.snapshotLocked()
	c.lock.Unlock()

	if err != nil {
		glog.Errorf("Error while refreshing %s: %v", c.name, err)
	}
	c.deliver(snap, version)
}

func (c *Collection[T]) copyItemsLocked() []T {
	return append([]T{}, c.items...)
}

func (c *Collection[T]) snapshotLocked() (Snapshot[T], uint64) {
	c.version++
	return Snapshot[T]{
		Items:   c.copyItemsLocked(),
		Loading: c.inFlight > 0,
	}, c.version
}

func (c *Collection[T]) deliver(snap Snapshot[T], version uint64) {
	c.notifyLock.Lock()
	defer c.notifyLock.Unlock()
	if version <= c.delivered {
		return
	}
	c.delivered = version
	c.observers.Notify(snap)
}

// apply runs mutate against the items under the lock, then notifies.
func (c *Collection[T]) apply(mutate func(items []T) []T) {
	c.lock.Lock()
	c.items = mutate(c.items)
	snap, version := c.snapshotLocked()
	c.lock.Unlock()
	c.deliver(snap, version)
}

func (c *Collection[T]) prepend(rec T) {
	c.apply(func(items []T) []T {
		return append([]T{rec}, items...)
	})
}

func (c *Collection[T]) replace(rec T) {
	c.apply(func(items []T) []T {
		out := make([]T, len(items))
		for i, it := range items {
			if it.RecordID() == rec.RecordID() {
				out[i] = rec
			} else {
				out[i] = it
			}
		}
		return out
	})
}

func (c *Collection[T]) remove(id string) {
	c.apply(func(items []T) []T {
		out := make([]T, 0, len(items))
		for _, it := range items {
			if it.RecordID() != id {
				out = append(out, it)
			}
		}
		return out
	})
}

// Refresher is satisfied by every store.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context)
}

// RefreshAll refreshes the given stores concurrently and returns once all of
// them have finished.
func RefreshAll(ctx context.Context, stores ...Refresher) {
	eg := errgroup.Group{}
	for _, s := range stores {
		eg.Go(func() error {
			s.Refresh(ctx)
			return nil
		})
	}
	eg.Wait()
}
