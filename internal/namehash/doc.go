// Package namehash computes the container's 32-bit name hashes.
//
// Every lookup goes through the same two steps used when the archive was
// written: a full path is reduced to its canonical file id by FileID, and
// the id is hashed by Hash. The hash is weak on purpose; distinct paths may
// collide and the container disambiguates them by explicit name.
package namehash
