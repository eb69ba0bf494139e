package services

import (
	"context"
	"sync"
	"testing"

	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEvents = Events{Success: domain.SignalIDTokenLoaded, Failure: domain.SignalIDTokenFailed}

func TestCompletionDeliversOnHost(t *testing.T) {
	bridge, host := newTestBridge()

	c := bridge.Begin("op", testEvents)
	require.True(t, c.Succeed("tok"))

	assert.Empty(t, host.emitted(), "signal must wait for the host context")
	select {
	case <-c.Done():
		t.Fatal("done before emission")
	default:
	}

	host.drain()
	require.Len(t, host.emitted(), 1)
	assert.Equal(t, domain.NewSignal(domain.SignalIDTokenLoaded, "tok"), host.emitted()[0])
	<-c.Done()
}

func TestCompletionExactlyOnce(t *testing.T) {
	bridge, host := newTestBridge()

	c := bridge.Go(context.Background(), "double", testEvents, func(ctx context.Context, c *Completion) {
		c.Succeed("first")
		c.Succeed("second")
		c.Fail("late failure")
	})
	host.drain()

	signals := host.emitted()
	require.Len(t, signals, 1)
	assert.Equal(t, "first", signals[0].Arg(0))

	sig, ok := c.Signal()
	assert.True(t, ok)
	assert.Equal(t, domain.SignalIDTokenLoaded, sig.Name)
	assert.Equal(t, 0, bridge.Outstanding())
}

func TestCompletionConcurrentResolvers(t *testing.T) {
	host := &fakeHost{}
	runner := bg.NewAsync()
	bridge := NewBridge(host, runner, &NopLogger{})

	c := bridge.Begin("race", testEvents)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var won bool
			if i%2 == 0 {
				won = c.Succeed("ok")
			} else {
				won = c.Fail("err")
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	host.drain()

	assert.Equal(t, 1, wins)
	assert.Len(t, host.emitted(), 1)
}

func TestCompletionRecoversPanic(t *testing.T) {
	bridge, host := newTestBridge()

	bridge.Go(context.Background(), "boom", testEvents, func(ctx context.Context, c *Completion) {
		panic("sdk exploded")
	})
	host.drain()

	require.Len(t, host.emitted(), 1)
	assert.Equal(t, domain.NewSignal(domain.SignalIDTokenFailed, "sdk exploded"), host.emitted()[0])
}

func TestCompletionPanicAfterResolve(t *testing.T) {
	bridge, host := newTestBridge()

	bridge.Go(context.Background(), "late", testEvents, func(ctx context.Context, c *Completion) {
		c.Succeed("tok")
		panic("after the fact")
	})
	host.drain()

	require.Len(t, host.emitted(), 1)
	assert.Equal(t, domain.SignalIDTokenLoaded, host.emitted()[0].Name)
}

func TestCompletionFailurePayload(t *testing.T) {
	bridge, host := newTestBridge()

	bridge.Begin("http_request", requestEvents).Fail("connection refused")
	host.drain()

	require.Len(t, host.emitted(), 1)
	assert.Equal(t, domain.NewSignal(domain.SignalRequestCompleted, 0, "connection refused"), host.emitted()[0])
}

func TestBridgeOutstanding(t *testing.T) {
	bridge, host := newTestBridge()

	a := bridge.Begin("a", testEvents)
	bridge.Begin("b", testEvents)
	assert.Equal(t, 2, bridge.Outstanding())

	a.Succeed("x")
	assert.Equal(t, 2, bridge.Outstanding(), "outstanding until emitted")
	host.drain()
	assert.Equal(t, 1, bridge.Outstanding())
}

func TestBridgeGoDoesNotBlock(t *testing.T) {
	host := &fakeHost{}
	runner := bg.NewAsync()
	bridge := NewBridge(host, runner, &NopLogger{})

	release := make(chan struct{})
	c := bridge.Go(context.Background(), "slow", testEvents, func(ctx context.Context, c *Completion) {
		<-release
		c.Succeed("done")
	})

	_, resolved := c.Signal()
	assert.False(t, resolved)

	close(release)
	runner.Wait()
	host.drain()
	<-c.Done()
	assert.Len(t, host.emitted(), 1)
}

func TestBridgeIgnoresCallerCancellation(t *testing.T) {
	bridge, host := newTestBridge()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bridge.Go(ctx, "detached", testEvents, func(ctx context.Context, c *Completion) {
		if ctx.Err() != nil {
			c.Fail(ctx.Err().Error())
			return
		}
		c.Succeed("ok")
	})
	host.drain()

	require.Len(t, host.emitted(), 1)
	assert.Equal(t, domain.SignalIDTokenLoaded, host.emitted()[0].Name)
}
