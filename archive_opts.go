package databin

import "log/slog"

// DefaultMaxEntrySize is the default limit on an entry's inflated size (256MB).
const DefaultMaxEntrySize = 256 << 20

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for load, save, and lookup diagnostics.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithSeedNames adds paths to the seed table used to name hash-only records
// on load. The built-in names are always present.
func WithSeedNames(names ...string) Option {
	return func(a *Archive) {
		a.seedNames = append(a.seedNames, names...)
	}
}

// WithCompressionLevel sets the zlib level used when saving compressed entries.
// Out-of-range levels use the default level.
func WithCompressionLevel(level int) Option {
	return func(a *Archive) {
		a.compressionLevel = level
		a.compressionLevelSet = true
	}
}

// WithDegradeOnParseError controls what happens when a typed record fails
// to parse during load. By default the load fails with an *EntryError.
// When enabled, the entry is kept as an opaque record and a warning is logged.
func WithDegradeOnParseError(enabled bool) Option {
	return func(a *Archive) {
		a.degradeOnParseError = enabled
	}
}

// WithMaxEntrySize limits the declared size of any single entry.
// Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint32) Option {
	return func(a *Archive) {
		a.maxEntrySize = limit
	}
}
