//go:build !js || !wasm
// +build !js !wasm

package obslog

// redirectLogToBridge is a no-op on native platforms; l.output already
// received the line.
func (l *Logger) redirectLogToBridge(level LogLevel, logLine string) {}
