//go:build tinygo.wasm

package sdk

import "unsafe"

// ========================================
// Host Function Imports
// ========================================

// firebaseCall invokes a host method with JSON arguments.
//
//go:wasmimport firebase firebase_call
func firebaseCall(namePtr, nameLen, argsPtr, argsLen uint32) (resPtr, resLen uint32, code int32)

// firebaseLog writes a log message through the host logger.
//
//go:wasmimport firebase firebase_log
func firebaseLog(level int32, ptr, length uint32)

func hostCall(method string, args []byte) ([]byte, int32) {
	namePtr, nameLen := stringToPtr(method)
	argsPtr, argsLen := bytesToPtr(args)
	resPtr, resLen, code := firebaseCall(namePtr, nameLen, argsPtr, argsLen)
	return ptrToBytes(resPtr, resLen), code
}

func hostLog(level int32, message string) {
	ptr, length := stringToPtr(message)
	firebaseLog(level, ptr, length)
}

// firebaseOnSignal receives {"name": ..., "args": [...]} from the host.
//
//export firebase_on_signal
func firebaseOnSignal(ptr, length uint32) {
	if err := dispatchSignal(ptrToBytes(ptr, length)); err != nil {
		Error("bad signal payload: " + err.Error())
	}
}

// ========================================
// Memory Helpers (TinyGo WASM)
// ========================================

func stringToPtr(s string) (uint32, uint32) {
	if len(s) == 0 {
		return 0, 0
	}
	ptr := unsafe.Pointer(unsafe.StringData(s))
	return uint32(uintptr(ptr)), uint32(len(s))
}

func bytesToPtr(b []byte) (uint32, uint32) {
	if len(b) == 0 {
		return 0, 0
	}
	ptr := unsafe.Pointer(&b[0])
	return uint32(uintptr(ptr)), uint32(len(b))
}

// ptrToBytes copies a host-written buffer out of linear memory.
func ptrToBytes(ptr, length uint32) []byte {
	if ptr == 0 || length == 0 {
		return nil
	}
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), length)
	result := make([]byte, length)
	copy(result, bytes)
	return result
}
