// Package extract decompresses a runtime archive into a directory.
//
// Archives are unpacked into a staging directory next to the destination and
// moved into place only after every entry was written, so a failed or
// cancelled extraction leaves the previous contents untouched.
package extract
