// Package loading tracks which operations are in flight.
//
// A Registry maps task ids to a busy flag and keeps one extra flag for
// operations that carry no task id. There is no reference counting: the last
// StartLoading/StopLoading for an id wins, so two concurrent calls sharing an
// id are reported idle as soon as the first one finishes.
package loading

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the registry state.
type Snapshot struct {
	// Busy is the flag for untagged operations.
	Busy bool
	// Tasks holds every known task id. A false value is a finished task that
	// has not been cleared by StopAllLoading.
	Tasks map[string]bool
}

// Listener is called with the new state after every mutation.
type Listener func(Snapshot)

type subscription struct {
	id int
	fn Listener
}

// Registry holds loading state. The zero value is not usable; use New.
type Registry struct {
	mu     sync.Mutex
	busy   bool
	tasks  map[string]bool
	subs   []subscription
	nextID int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tasks: make(map[string]bool),
	}
}

// StartLoading marks task busy. An empty task marks the global flag instead.
func (r *Registry) StartLoading(task string) {
	r.set(task, true)
}

// StopLoading marks task idle. It is safe to call without a matching
// StartLoading.
func (r *Registry) StopLoading(task string) {
	r.set(task, false)
}

func (r *Registry) set(task string, busy bool) {
	r.mu.Lock()
	if task == "" {
		r.busy = busy
	} else {
		r.tasks[task] = busy
	}
	snap, subs := r.snapshotLocked(), r.listenersLocked()
	r.mu.Unlock()

	notify(subs, snap)
}

// IsTaskLoading reports whether task is busy. Unknown ids are idle and are
// not added to the registry.
func (r *Registry) IsTaskLoading(task string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[task]
}

// IsLoading reports the global flag used by untagged operations.
func (r *Registry) IsLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// StopAllLoading clears the global flag and removes every task entry.
func (r *Registry) StopAllLoading() {
	r.mu.Lock()
	r.busy = false
	r.tasks = make(map[string]bool)
	snap, subs := r.snapshotLocked(), r.listenersLocked()
	r.mu.Unlock()

	notify(subs, snap)
}

// Snapshot returns a copy of the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Subscribe registers fn to be called after every mutation. Listeners run on
// the mutating goroutine, outside the registry lock, in subscription order.
// The returned function removes the listener.
func (r *Registry) Subscribe(fn Listener) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, s := range r.subs {
				if s.id == id {
					r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Track starts task and returns a function that stops it. If timeout is
// positive and elapses first, the task is force-cleared; a later call to the
// returned function is then a no-op.
func (r *Registry) Track(task string, timeout time.Duration) (done func()) {
	r.StartLoading(task)

	var once sync.Once
	stop := func() {
		once.Do(func() { r.StopLoading(task) })
	}
	if timeout <= 0 {
		return stop
	}

	timer := time.AfterFunc(timeout, stop)
	return func() {
		timer.Stop()
		stop()
	}
}

func (r *Registry) snapshotLocked() Snapshot {
	tasks := make(map[string]bool, len(r.tasks))
	for k, v := range r.tasks {
		tasks[k] = v
	}
	return Snapshot{Busy: r.busy, Tasks: tasks}
}

func (r *Registry) listenersLocked() []Listener {
	if len(r.subs) == 0 {
		return nil
	}
	out := make([]Listener, len(r.subs))
	for i, s := range r.subs {
		out[i] = s.fn
	}
	return out
}

func notify(subs []Listener, snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
