package service

import "sync"

// courseLock serializes admission-critical sections per course. Locks are
// created lazily and never removed; the set of courses is small and bounded.
type courseLock struct {
	locks sync.Map
}

// Lock acquires the mutex for the course and returns its release func.
func (l *courseLock) Lock(courseID string) func() {
	v, _ := l.locks.LoadOrStore(courseID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
