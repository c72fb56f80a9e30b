// Package readiness drives the runtime from "unknown" to "ready".
//
// A Machine inspects the installed runtime, reports what it found to the
// host, performs the remedial action the host asks for (download and
// install, store listing, or decompressing a bundled archive), initializes
// the runtime, and finally replays the operations that were deferred while
// the runtime was not ready.
//
// The Machine is owned by a single control goroutine. Background tasks never
// touch its state; they Post closures that the control goroutine executes in
// Run. Host callbacks run on the control goroutine too and may call Machine
// methods directly.
package readiness
