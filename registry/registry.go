package registry

import (
	stderrors "errors"
	"sync"
	"time"

	"github.com/wippyai/resguard"
	"github.com/wippyai/resguard/errors"
)

// ErrClosed is returned by Track after the registry has been closed.
var ErrClosed = errors.Closed("registry closed")

// Handle is an opaque reference to a tracked resource.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Event types for guard lifecycle notifications.
type EventType uint8

const (
	EventTracked EventType = iota
	EventReleased
	EventLeaked
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventTracked:
		return "tracked"
	case EventReleased:
		return "released"
	case EventLeaked:
		return "leaked"
	default:
		return "unknown"
	}
}

// Event represents a guard lifecycle event.
type Event struct {
	Name   string
	Handle Handle
	Type   EventType
}

// Observer receives notifications about guard lifecycle events.
// A leaked guard notifies from the runtime's cleanup goroutine, so
// implementations must be safe for concurrent use.
type Observer interface {
	OnGuardEvent(Event)
}

// Entry describes one tracked resource.
type Entry struct {
	Resource  resguard.Releasable
	TrackedAt time.Time
	Name      string
}

type slot struct {
	entry Entry
	valid bool
}

// Registry tracks live guards with observer support.
type Registry struct {
	entries   []slot
	freeList  []Handle
	mu        sync.RWMutex
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries:  make([]slot, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Track adds a resource and returns its handle.
func (r *Registry) Track(name string, res resguard.Releasable) (Handle, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}

	s := slot{
		entry: Entry{
			Name:      name,
			Resource:  res,
			TrackedAt: time.Now(),
		},
		valid: true,
	}

	var handle Handle
	if len(r.freeList) > 0 {
		handle = r.freeList[len(r.freeList)-1]
		r.freeList = r.freeList[:len(r.freeList)-1]
		r.entries[handle-1] = s
	} else {
		r.entries = append(r.entries, s)
		handle = Handle(len(r.entries))
	}
	r.mu.Unlock()

	r.notify(Event{
		Type:   EventTracked,
		Handle: handle,
		Name:   name,
	})

	return handle, nil
}

// Get retrieves a tracked entry by handle.
func (r *Registry) Get(handle Handle) (Entry, bool) {
	if handle == 0 {
		return Entry{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := handle - 1
	if int(idx) >= len(r.entries) {
		return Entry{}, false
	}

	s := r.entries[idx]
	if !s.valid {
		return Entry{}, false
	}
	return s.entry, true
}

// Untrack removes a resource after an explicit release.
// It does not run the release action; the guard already has.
func (r *Registry) Untrack(handle Handle) bool {
	return r.remove(handle, EventReleased)
}

// MarkLeaked removes a resource whose fallback release path fired.
func (r *Registry) MarkLeaked(handle Handle) bool {
	return r.remove(handle, EventLeaked)
}

func (r *Registry) remove(handle Handle, event EventType) bool {
	if handle == 0 {
		return false
	}

	r.mu.Lock()

	idx := handle - 1
	if int(idx) >= len(r.entries) {
		r.mu.Unlock()
		return false
	}

	s := &r.entries[idx]
	if !s.valid {
		r.mu.Unlock()
		return false
	}

	name := s.entry.Name
	s.valid = false
	s.entry = Entry{}
	r.freeList = append(r.freeList, handle)
	r.mu.Unlock()

	r.notify(Event{
		Type:   event,
		Handle: handle,
		Name:   name,
	})

	return true
}

// Len returns the number of tracked resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.entries {
		if s.valid {
			count++
		}
	}
	return count
}

// Each iterates over all tracked resources.
func (r *Registry) Each(fn func(Handle, Entry) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, s := range r.entries {
		if s.valid {
			if !fn(Handle(i+1), s.entry) {
				break
			}
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Close releases every tracked resource in reverse tracking order and
// stops accepting new resources. Release errors are joined and the
// surviving entries are still removed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	type pending struct {
		entry  Entry
		handle Handle
	}
	var remaining []pending
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].valid {
			remaining = append(remaining, pending{
				handle: Handle(i + 1),
				entry:  r.entries[i].entry,
			})
			r.entries[i].valid = false
			r.entries[i].entry = Entry{}
		}
	}
	r.entries = nil
	r.freeList = nil
	r.mu.Unlock()

	var errs []error
	for _, p := range remaining {
		if p.entry.Resource != nil {
			if err := p.entry.Resource.Release(); err != nil {
				errs = append(errs, errors.ReleaseFailed(p.entry.Name, err))
			}
		}
		r.notify(Event{
			Type:   EventReleased,
			Handle: p.handle,
			Name:   p.entry.Name,
		})
	}

	return stderrors.Join(errs...)
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnGuardEvent(e)
	}
}
