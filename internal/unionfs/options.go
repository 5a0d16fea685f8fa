package unionfs

// Options holds the mount-time switches.
type Options struct {
	// COW enables copy-on-write promotion and whiteout-based deletion.
	// With COW disabled, any mutation of an RO-resolved entity fails
	// immediately (EACCES for unlink/rmdir, EROFS for everything else)
	// instead of promoting.
	COW bool

	// Stats exposes the synthetic "stats" file at the mount root.
	Stats bool

	// RelaxedPermissions makes Access consult file mode bits only,
	// ignoring the requesting uid/gid.
	RelaxedPermissions bool

	// PreserveBranch changes the cross-branch rename policy: keep a
	// renamed entity on its existing RW branch rather than returning
	// EXDEV, materializing whatever destination path is needed on that
	// branch.
	PreserveBranch bool

	// DebugFile is where debug output is written. The unionfs command
	// turns debug logging on at mount when DebugFile is set; the control
	// channel can toggle it afterwards.
	DebugFile string

	// AutoUnmount marks the mount so the kernel releases it when the
	// owning process exits.
	AutoUnmount bool

	// StatsDBPath, if non-empty, makes the stats endpoint's counters
	// durable across remounts (see internal/statsdb). Empty means
	// in-memory-only counters.
	StatsDBPath string

	// ResolutionCacheSize bounds the Path Resolver's LRU cache (see
	// internal/resolve). Zero disables caching.
	ResolutionCacheSize int
}

// DefaultOptions returns the zero-value-safe defaults used when a field
// is not set by the CLI.
func DefaultOptions() Options {
	return Options{ResolutionCacheSize: 4096}
}
