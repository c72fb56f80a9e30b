// Package cli defines the Cobra command tree for the xwalk CLI. Each file in
// this package registers one top-level command (check, run, watch, etc.)
// with the root command. Commands wire the readiness machine from the loaded
// settings and only handle flag parsing, prompts and output.
package cli
