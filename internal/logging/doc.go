// Package logging builds the zap logger used by the xwalk command and handed
// to the library packages through their options. Packages that receive no
// logger fall back to a no-op one via OrNop.
package logging
