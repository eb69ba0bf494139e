// Package wasm hosts a WebAssembly guest script on wazero and exposes the
// firebridge call-in surface to it through the "firebase" host module.
package wasm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/forge-platform/firebridge/internal/core/services"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// HostModule is the import module name guests link against.
const HostModule = "firebase"

// Result codes returned by firebase_call.
const (
	CallOK            int32 = 0
	CallBadMemory     int32 = -1
	CallBadJSON       int32 = -2
	CallUnknownMethod int32 = -3
	CallFailed        int32 = -4
)

// Guest exports the runtime looks for.
const (
	exportMain     = "firebase_main"
	exportStart    = "_start"
	exportOnSignal = "firebase_on_signal"
	exportMalloc   = "malloc"
)

// Invoker dispatches a named call-in method.
type Invoker interface {
	Invoke(ctx context.Context, name string, args services.Args) (any, error)
}

// RuntimeOptions configures the guest runtime.
type RuntimeOptions struct {
	Stdout io.Writer // default os.Stdout
	Stderr io.Writer // default os.Stderr
	Args   []string  // guest argv after the program name
}

// Runtime runs a single guest module. Every guest call must happen on the
// host context; the runtime does not lock around the module.
type Runtime struct {
	runtime wazero.Runtime
	invoker Invoker
	logger  ports.Logger
	opts    RuntimeOptions

	mu     sync.RWMutex
	module api.Module
	name   string
}

// NewRuntime creates a runtime with WASI and the firebase host module.
func NewRuntime(ctx context.Context, invoker Invoker, logger ports.Logger, opts RuntimeOptions) (*Runtime, error) {
	r := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	rt := &Runtime{
		runtime: r,
		invoker: invoker,
		logger:  logger.With("component", "wasm"),
		opts:    opts,
	}
	if err := rt.registerHostFunctions(ctx); err != nil {
		r.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) registerHostFunctions(ctx context.Context) error {
	_, err := r.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithFunc(r.hostCall).
		Export("firebase_call").
		NewFunctionBuilder().
		WithFunc(r.hostLog).
		Export("firebase_log").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("failed to register host module: %w", err)
	}
	return nil
}

// Host function: firebase_log(level i32, ptr i32, len i32)
func (r *Runtime) hostLog(_ context.Context, m api.Module, level, ptr, length uint32) {
	data, ok := m.Memory().Read(ptr, length)
	if !ok {
		return
	}

	msg := string(data)
	switch level {
	case 0:
		r.logger.Debug(msg, "source", "guest")
	case 1:
		r.logger.Info(msg, "source", "guest")
	case 2:
		r.logger.Warn(msg, "source", "guest")
	default:
		r.logger.Error(msg, "source", "guest")
	}
}

// Host function: firebase_call(name_ptr, name_len, args_ptr, args_len i32)
//
//	-> (res_ptr i32, res_len i32, err i32)
//
// Arguments are a JSON array and the result is JSON. On failure the result
// holds the error message as a JSON string.
func (r *Runtime) hostCall(ctx context.Context, m api.Module,
	namePtr, nameLen, argsPtr, argsLen uint32) (uint32, uint32, int32) {

	nameData, ok := m.Memory().Read(namePtr, nameLen)
	if !ok {
		return 0, 0, CallBadMemory
	}
	name := string(nameData)

	var args services.Args
	if argsLen > 0 {
		raw, ok := m.Memory().Read(argsPtr, argsLen)
		if !ok {
			return 0, 0, CallBadMemory
		}
		var err error
		if args, err = decodeArgs(raw); err != nil {
			ptr, n := r.writeJSON(ctx, m, err.Error())
			return ptr, n, CallBadJSON
		}
	}

	result, err := r.invoker.Invoke(ctx, name, args)
	if err != nil {
		code := CallFailed
		if errors.Is(err, services.ErrUnknownMethod) {
			code = CallUnknownMethod
		}
		ptr, n := r.writeJSON(ctx, m, err.Error())
		return ptr, n, code
	}

	ptr, n := r.writeJSON(ctx, m, result)
	return ptr, n, CallOK
}

// decodeArgs parses a JSON array, keeping numbers exact.
func decodeArgs(raw []byte) (services.Args, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON array: %w", err)
	}
	return services.Args(args), nil
}

func (r *Runtime) writeJSON(ctx context.Context, m api.Module, v any) (uint32, uint32) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("Failed to encode guest result", "error", err)
		return 0, 0
	}
	return r.writeToGuest(ctx, m, data)
}

// writeToGuest copies data into memory obtained from the guest's malloc.
// The guest owns the returned buffer.
func (r *Runtime) writeToGuest(ctx context.Context, m api.Module, data []byte) (uint32, uint32) {
	if len(data) == 0 {
		return 0, 0
	}

	malloc := m.ExportedFunction(exportMalloc)
	if malloc == nil {
		r.logger.Debug("Guest does not export malloc, dropping result")
		return 0, 0
	}

	results, err := malloc.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		r.logger.Error("Failed to allocate guest memory", "error", err)
		return 0, 0
	}

	ptr := uint32(results[0])
	if !m.Memory().Write(ptr, data) {
		r.logger.Error("Failed to write to guest memory")
		return 0, 0
	}
	return ptr, uint32(len(data))
}

// Load compiles and instantiates the guest without running it.
func (r *Runtime) Load(ctx context.Context, name string, wasmBytes []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.module != nil {
		return fmt.Errorf("guest already loaded: %s", r.name)
	}

	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("failed to compile guest: %w", err)
	}

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithArgs(append([]string{name}, r.opts.Args...)...).
		WithStdout(r.opts.Stdout).
		WithStderr(r.opts.Stderr).
		WithSysWalltime().
		WithSysNanotime().
		// Reactor guests initialise here; _start is left to Start.
		WithStartFunctions("_initialize")

	module, err := r.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return fmt.Errorf("failed to instantiate guest: %w", err)
	}

	r.module = module
	r.name = name
	r.logger.Info("Guest loaded", "name", name)
	return nil
}

// LoadFile reads and loads a guest from disk.
func (r *Runtime) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read guest: %w", err)
	}
	return r.Load(ctx, filepath.Base(path), data)
}

// Start runs the guest entry point: firebase_main when exported, else _start.
// A clean WASI exit counts as success.
func (r *Runtime) Start(ctx context.Context) error {
	m := r.current()
	if m == nil {
		return fmt.Errorf("no guest loaded")
	}

	entry := exportMain
	fn := m.ExportedFunction(exportMain)
	if fn == nil {
		entry = exportStart
		fn = m.ExportedFunction(exportStart)
	}
	if fn == nil {
		return fmt.Errorf("guest exports neither %s nor %s", exportMain, exportStart)
	}

	r.logger.Debug("Starting guest", "entry", entry)
	if _, err := fn.Call(ctx); err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			return nil
		}
		return fmt.Errorf("guest %s failed: %w", entry, err)
	}
	return nil
}

// Deliver hands a signal to the guest's firebase_on_signal export as
// {"name": ..., "args": [...]}. Guests without the export ignore signals.
func (r *Runtime) Deliver(ctx context.Context, sig domain.Signal) error {
	m := r.current()
	if m == nil || m.IsClosed() {
		return nil
	}
	fn := m.ExportedFunction(exportOnSignal)
	if fn == nil {
		return nil
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}
	ptr, n := r.writeToGuest(ctx, m, data)
	if n == 0 {
		return fmt.Errorf("failed to pass signal %s to guest", sig.Name)
	}
	if _, err := fn.Call(ctx, uint64(ptr), uint64(n)); err != nil {
		return fmt.Errorf("guest signal handler failed: %w", err)
	}
	return nil
}

// SignalHandler adapts Deliver for subscription on the host loop.
func (r *Runtime) SignalHandler(ctx context.Context) func(sig domain.Signal) {
	return func(sig domain.Signal) {
		if err := r.Deliver(ctx, sig); err != nil {
			r.logger.Warn("Signal delivery failed", "signal", sig.Name, "error", err)
		}
	}
}

// Loaded returns the loaded guest name.
func (r *Runtime) Loaded() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name, r.module != nil
}

func (r *Runtime) current() api.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.module
}

// Close shuts down the guest and the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.module != nil {
		_ = r.module.Close(ctx)
		r.module = nil
	}
	r.mu.Unlock()
	return r.runtime.Close(ctx)
}
