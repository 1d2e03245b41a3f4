//go:build js && wasm
// +build js,wasm

package obslog

import "syscall/js"

// redirectLogToBridge redirects readygate logs to the browser's JS console.
// The host contract only requires a visibility signal and a
// frame callback from the browser; this build tag is what lets the same
// logger compile into a WASM bundle running inside that host without any
// change to call sites.
func (l *Logger) redirectLogToBridge(level LogLevel, logLine string) {
	console := js.Global().Get("console")
	if !isValueNil(console) {
		method := "log"
		switch level {
		case DEBUG:
			method = "debug"
		case INFO:
			method = "info"
		case WARN:
			method = "warn"
		case ERROR, FATAL:
			method = "error"
		}
		console.Call(method, logLine)
	}
}

// isValueNil helper for js.Value
func isValueNil(v js.Value) bool {
	return v.Type() == js.TypeNull || v.Type() == js.TypeUndefined
}
