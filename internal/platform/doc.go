// Package platform wraps the filesystem calls whose behavior differs on
// Windows: permission bits and symlinks created while unpacking a runtime
// archive.
package platform
