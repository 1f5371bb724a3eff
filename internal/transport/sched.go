package transport

import "runtime"

// runtimeGosched cooperatively yields the scheduler. Named as a thin
// wrapper so the Strict/Relaxed backpressure paths read as intentional
// policy rather than a stray runtime call.
func runtimeGosched() {
	runtime.Gosched()
}
