// Package manifest handles parsing and validation of the runtime package
// manifest (runtime.yaml) shipped at the root of every runtime package. It
// validates manifests against an embedded JSON Schema and verifies the file
// digests and signer they declare.
package manifest
