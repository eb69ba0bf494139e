// Package services implements the firebridge call-in surface.
package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

// Events names the signals a completion resolves to.
type Events struct {
	Success domain.SignalName
	Failure domain.SignalName

	// FailurePayload shapes a failure message into the signal payload.
	// When nil the payload is the message alone.
	FailurePayload func(msg string) []any
}

func (e Events) failure(msg string) domain.Signal {
	if e.FailurePayload != nil {
		return domain.NewSignal(e.Failure, e.FailurePayload(msg)...)
	}
	return domain.NewSignal(e.Failure, msg)
}

// Operation performs one asynchronous call and resolves c when it finishes.
type Operation func(ctx context.Context, c *Completion)

// Bridge runs asynchronous operations in the background and delivers their
// outcome to the host as exactly one signal.
type Bridge struct {
	host        ports.Host
	runner      ports.Runner
	logger      ports.Logger
	outstanding atomic.Int64
}

// NewBridge creates a completion bridge.
func NewBridge(host ports.Host, runner ports.Runner, logger ports.Logger) *Bridge {
	return &Bridge{
		host:   host,
		runner: runner,
		logger: logger,
	}
}

// Begin creates a completion without starting any work. Used for failures
// detected before an operation is issued.
func (b *Bridge) Begin(name string, events Events) *Completion {
	b.outstanding.Add(1)
	return &Completion{
		bridge: b,
		name:   name,
		events: events,
		done:   make(chan struct{}),
	}
}

// Go starts op on the background runner and returns immediately.
// A panic in op resolves the completion as a failure.
func (b *Bridge) Go(ctx context.Context, name string, events Events, op Operation) *Completion {
	c := b.Begin(name, events)
	// Operations outlive the host call that started them.
	ctx = context.WithoutCancel(ctx)
	b.runner.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Operation panicked", "operation", name, "panic", r)
				c.Fail(fmt.Sprint(r))
			}
		}()
		op(ctx, c)
	})
	return c
}

// Outstanding returns the number of completions not yet delivered to the host.
func (b *Bridge) Outstanding() int {
	return int(b.outstanding.Load())
}

// Completion is the single outcome of one operation.
type Completion struct {
	bridge *Bridge
	name   string
	events Events

	once sync.Once
	done chan struct{}

	mu       sync.Mutex
	sig      domain.Signal
	resolved bool
}

// Succeed resolves with the success signal.
func (c *Completion) Succeed(args ...any) bool {
	return c.Resolve(domain.NewSignal(c.events.Success, args...))
}

// Fail resolves with the failure signal carrying msg.
func (c *Completion) Fail(msg string) bool {
	return c.Resolve(c.events.failure(msg))
}

// Resolve delivers sig unless the completion was already resolved.
// It reports whether this call won. Safe from any goroutine.
func (c *Completion) Resolve(sig domain.Signal) bool {
	won := false
	c.once.Do(func() {
		won = true
		c.mu.Lock()
		c.sig = sig
		c.resolved = true
		c.mu.Unlock()

		c.bridge.host.Post(func() {
			// A panicking subscriber must not leave the completion outstanding.
			defer func() {
				c.bridge.outstanding.Add(-1)
				close(c.done)
			}()
			c.bridge.host.Emit(sig)
		})
	})
	if !won {
		c.bridge.logger.Warn("Duplicate completion ignored", "operation", c.name, "signal", sig.Name)
	}
	return won
}

// Done is closed once the signal has been handed to the host, even if a
// subscriber panicked.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Signal returns the resolved signal, if any.
func (c *Completion) Signal() (domain.Signal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sig, c.resolved
}

// Name returns the operation name.
func (c *Completion) Name() string {
	return c.name
}
