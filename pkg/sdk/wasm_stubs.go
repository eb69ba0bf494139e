//go:build !tinygo.wasm

package sdk

// Outside WebAssembly there is no host. Calls go to TestHost when set and
// fail with CallFailed otherwise; log messages go to TestLog.

// TestHost answers host calls in non-WASM builds.
var TestHost func(method string, args []byte) ([]byte, int32)

// TestLog receives log messages in non-WASM builds.
var TestLog func(level int32, message string)

func hostCall(method string, args []byte) ([]byte, int32) {
	if TestHost == nil {
		return []byte(`"no host outside WebAssembly"`), CallFailed
	}
	return TestHost(method, args)
}

func hostLog(level int32, message string) {
	if TestLog != nil {
		TestLog(level, message)
	}
}

// DeliverSignal hands a JSON signal to the registered handlers, as the host
// does through firebase_on_signal.
func DeliverSignal(data []byte) error {
	return dispatchSignal(data)
}
