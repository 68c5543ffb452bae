package events

// ActiveDayLocks exposes the number of days with a live writer lock.
func ActiveDayLocks(r *Recorder) int {
	return r.locks.size()
}
