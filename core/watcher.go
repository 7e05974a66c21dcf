// Package core implements commonly used tools.
//
// Documentation Last Review: 28.05.2026
//
package core

import "sync"

// Observer is the interface to implement to watch events.
type Observer[E any] interface {
	NotifyCallback(event E)
}

// ObserverFunc is a function that implements the observer interface. As
// functions are not comparable, it can only be removed through the handle
// returned when adding it.
type ObserverFunc[E any] func(event E)

// Observable provides primitives to add and remove observers and to notify
// them of new events.
type Observable[E any] interface {
	// Add adds the observer to the list of observers that will be notified of
	// new events.
	Add(observer Observer[E])

	// Remove removes the observer from the list thus stopping it from receiving
	// new events.
	Remove(observer Observer[E])

	// Notify notifies the observers of a new event.
	Notify(event E)
}

// Watcher is an implementation of the Observable interface.
//
// - implements core.Observable
type Watcher[E any] struct {
	sync.Mutex

	observers map[Observer[E]]struct{}
}

// NewWatcher creates a new empty watcher.
func NewWatcher[E any]() *Watcher[E] {
	return &Watcher[E]{
		observers: make(map[Observer[E]]struct{}),
	}
}

// Add implements core.Observable. It adds the observer to the list of observers
// that will be notified of new events.
func (w *Watcher[E]) Add(observer Observer[E]) {
	w.Lock()
	w.observers[observer] = struct{}{}
	w.Unlock()
}

// AddFunc adds the function as an observer and returns the handle to remove
// it.
func (w *Watcher[E]) AddFunc(fn ObserverFunc[E]) Observer[E] {
	obs := &funcObserver[E]{fn: fn}
	w.Add(obs)

	return obs
}

// Remove implements core.Observable. It removes the observer from the list thus
// stopping it from receiving new events.
func (w *Watcher[E]) Remove(observer Observer[E]) {
	w.Lock()
	delete(w.observers, observer)
	w.Unlock()
}

// Len returns the number of observers.
func (w *Watcher[E]) Len() int {
	w.Lock()
	defer w.Unlock()

	return len(w.observers)
}

// Notify implements core.Observable. It notifies the observers one after each
// other, outside of the lock so that an observer can remove itself.
func (w *Watcher[E]) Notify(event E) {
	w.Lock()
	observers := make([]Observer[E], 0, len(w.observers))
	for obs := range w.observers {
		observers = append(observers, obs)
	}
	w.Unlock()

	for _, obs := range observers {
		obs.NotifyCallback(event)
	}
}

type funcObserver[E any] struct {
	fn ObserverFunc[E]
}

func (o *funcObserver[E]) NotifyCallback(event E) {
	o.fn(event)
}
