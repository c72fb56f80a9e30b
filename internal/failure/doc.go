// Package failure defines the error taxonomy shared by the acquisition and
// readiness packages.
//
// Every error carries a Kind. Recoverable kinds (ConfigurationMissing,
// TransferFailed, TransferTimedOut) reach the host as outcomes it can offer a
// retry for; Integrity and RuntimeInit are reported and final. An
// InternalConsistency error indicates a logic defect and is raised with
// Fatal, which panics.
//
// Errors match by kind through errors.Is against the Err* sentinels:
//
//	if errors.Is(err, failure.ErrTransferTimedOut) { ... }
package failure
