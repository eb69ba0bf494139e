// Package bg provides runners for background work.
package bg

import "sync"

// Async runs each function on its own goroutine.
type Async struct {
	wg sync.WaitGroup
}

// NewAsync creates an Async runner.
func NewAsync() *Async {
	return &Async{}
}

// Do starts fn on a new goroutine and returns immediately.
func (a *Async) Do(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Wait blocks until every started function has returned.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Sync runs functions inline on the caller's goroutine.
type Sync struct{}

// Do runs fn before returning.
func (Sync) Do(fn func()) {
	fn()
}
