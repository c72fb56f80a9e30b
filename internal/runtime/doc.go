// Package runtime inspects, initializes and executes the shared runtime.
//
// DirProbe reports what is installed (missing, tampered, older, newer,
// still compressed or matching). DirInitializer performs the one-time
// initialization that yields a Handle, and Holder owns that handle for the
// lifetime of the readiness machine. Runner executes the runtime entrypoint.
package runtime
