package contract

import "sync"

// Observer is the interface to implement to watch contract events.
type Observer interface {
	NotifyCallback(event Event)
}

// Watcher fans emitted contract events out to registered observers. The
// manager notifies it after each committed execution.
type Watcher struct {
	sync.RWMutex

	observers map[Observer]struct{}
}

// NewWatcher creates a new empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{
		observers: make(map[Observer]struct{}),
	}
}

// Add adds the observer to the list of observers that will be notified of
// new events.
func (w *Watcher) Add(observer Observer) {
	w.Lock()
	w.observers[observer] = struct{}{}
	w.Unlock()
}

// Remove removes the observer from the list thus stopping it from receiving
// new events.
func (w *Watcher) Remove(observer Observer) {
	w.Lock()
	delete(w.observers, observer)
	w.Unlock()
}

// Notify notifies the whole list of observers one after the other.
func (w *Watcher) Notify(event Event) {
	w.RLock()
	defer w.RUnlock()

	for obs := range w.observers {
		obs.NotifyCallback(event)
	}
}
