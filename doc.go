// Package databin reads and writes the hash-indexed asset container used by
// the game's data.bin file.
//
// A container packs many sub-files behind a table of 32-bit name hashes.
// Each entry may be deflate-compressed. Entries whose hashes collided when
// the container was written carry their full path so lookups can
// disambiguate them, and a trailing name table lists known paths.
//
// Loading is eager: every payload is inflated, classified by its leading
// bytes, and parsed into a typed [Record]. After every entry exists, a
// two-phase resolution pass lets records name each other (phase 1) and then
// link to each other (phase 2).
//
// Entries are addressed three ways:
//   - by id, their position in load order ([Archive.FindByID])
//   - by path, hashed and disambiguated ([Archive.FindByPath])
//   - by hash ([Archive.FindByHash])
//
// An Archive is not safe for concurrent use. Separate archives may be
// loaded and saved concurrently.
package databin
