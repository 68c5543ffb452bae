package events

import "sync"

// dayLocks serializes rollup updates per calendar day within the process.
// Entries are reference counted so the map only holds days with active writers.
type dayLocks struct {
	mu    sync.Mutex
	locks map[string]*dayLock
}

type dayLock struct {
	mu   sync.Mutex
	refs int
}

func newDayLocks() *dayLocks {
	return &dayLocks{locks: make(map[string]*dayLock)}
}

// Lock blocks until the caller owns the day and returns the matching unlock function.
func (d *dayLocks) Lock(day string) func() {
	d.mu.Lock()
	l, ok := d.locks[day]
	if !ok {
		l = &dayLock{}
		d.locks[day] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, day)
		}
		d.mu.Unlock()
	}
}

func (d *dayLocks) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}
