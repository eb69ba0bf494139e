// Package host provides the reference single-threaded host context.
package host

import (
	"context"
	"sync"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

// SignalHandler receives emitted signals on the host goroutine.
type SignalHandler func(sig domain.Signal)

// Record is one emitted signal with its emission time.
type Record struct {
	Signal    domain.Signal
	Timestamp time.Time
}

// Loop is a host context backed by an unbounded FIFO of posted functions.
// Functions run one at a time, either on the goroutine calling Run or on
// the goroutine calling Drain. Drain must not be called while Run is active.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running bool

	handlers   []SignalHandler
	history    []Record
	maxHistory int
	logger     ports.Logger
}

// NewLoop creates a loop keeping at most historySize emitted signals.
func NewLoop(historySize int, logger ports.Logger) *Loop {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Loop{
		wake:       make(chan struct{}, 1),
		history:    make([]Record, 0),
		maxHistory: historySize,
		logger:     logger,
	}
}

// Post schedules fn. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers a handler for every emitted signal.
func (l *Loop) Subscribe(handler SignalHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

// Emit records sig and calls the handlers in subscription order.
// It must only be called from a function running on the loop.
func (l *Loop) Emit(sig domain.Signal) {
	l.mu.Lock()
	handlers := make([]SignalHandler, len(l.handlers))
	copy(handlers, l.handlers)
	l.history = append(l.history, Record{Signal: sig, Timestamp: time.Now()})
	if len(l.history) > l.maxHistory {
		l.history = l.history[len(l.history)-l.maxHistory:]
	}
	l.mu.Unlock()

	l.logger.Debug("Signal emitted", "signal", sig.Name, "handlers", len(handlers))
	for _, h := range handlers {
		h(sig)
	}
}

// History returns recent signals, newest first, optionally filtered by name.
func (l *Loop) History(name domain.SignalName, limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	var result []Record
	for i := len(l.history) - 1; i >= 0 && len(result) < limit; i-- {
		r := l.history[i]
		if name == "" || r.Signal.Name == name {
			result = append(result, r)
		}
	}
	return result
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Drain runs queued functions until the queue is empty, including any
// posted while draining. It returns the number of functions run.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn, ok := l.next()
		if !ok {
			return n
		}
		l.run(fn)
		n++
	}
}

// Run processes posted functions until ctx is cancelled, then drains
// whatever is left.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	l.logger.Debug("Host loop started")
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			l.Drain()
			l.logger.Debug("Host loop stopped")
			return nil
		case <-l.wake:
		}
	}
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// run executes fn, keeping a panicking host callback from taking the loop down.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Host callback panicked", "panic", r)
		}
	}()
	fn()
}

var _ ports.Host = (*Loop)(nil)
