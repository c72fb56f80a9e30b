// Package deferred buffers capability requests and method invocations made
// before the runtime is ready and replays them once, in order, when it is.
//
// A Queue is not safe for concurrent use. It is owned by the readiness
// machine's control goroutine.
package deferred
