// Package binio provides little-endian cursor readers and writers over
// random-access byte regions.
//
// Both sides support scoped jumps: Jump moves the cursor to an absolute
// offset, runs a function, and restores the previous cursor on every exit
// path, including errors. This is how the container reads its name table
// and payloads, and how the writer backpatches sizes and offsets.
package binio
