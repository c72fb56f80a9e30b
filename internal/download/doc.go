// Package download acquires the runtime package from a URL.
//
// A Manager performs transfers and exposes their state as snapshots. The
// Coordinator polls a Manager at a fixed interval, reports progress, and
// resolves each transfer to one terminal Outcome, including timeouts for
// transfers stuck paused or running for too long.
package download
