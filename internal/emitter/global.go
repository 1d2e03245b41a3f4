package emitter

import "sync"

// globalMu guards access to the optional process-wide Emitter below. It is
// a convenience for single-scene embedders that don't want to thread an
// *Emitter through every call site; protocol.Run never reads or writes it,
// each Run call still constructs and owns its own Emitter.
var (
	globalMu sync.Mutex
	global   *Emitter
)

// InitGlobal constructs the process-wide Emitter and returns it. Calling it
// again before DisposeGlobal replaces the previous instance; subscribers on
// the old one are not migrated.
func InitGlobal(cfg Config) *Emitter {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = New(cfg, nil)
	return global
}

// Global returns the process-wide Emitter, or nil if InitGlobal has not
// been called (or DisposeGlobal has since been called).
func Global() *Emitter {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// DisposeGlobal clears the process-wide Emitter. Safe to call when none is
// set.
func DisposeGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}
