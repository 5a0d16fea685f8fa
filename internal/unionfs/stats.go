package unionfs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"unionfs/internal/statsdb"
)

// StatsFileName is the synthetic read-only file exposed at the mount
// root when the "stats" option is enabled.
const StatsFileName = "stats"

// counters tracks per-operation call counts with atomic increments,
// optionally mirrored to a durable statsdb.Store.
type counters struct {
	mu     sync.Mutex
	counts map[string]*atomic.Uint64
	store  *statsdb.Store
}

func newCounters(store *statsdb.Store) *counters {
	return &counters{counts: make(map[string]*atomic.Uint64), store: store}
}

func (c *counters) incr(op string) {
	c.mu.Lock()
	ctr, ok := c.counts[op]
	if !ok {
		ctr = &atomic.Uint64{}
		c.counts[op] = ctr
	}
	c.mu.Unlock()
	ctr.Add(1)

	if c.store != nil {
		_ = c.store.Add(context.Background(), op, 1)
	}
}

func (c *counters) snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.counts))
	for op, ctr := range c.counts {
		out[op] = ctr.Load()
	}
	return out
}

// StatsPath returns the union path of the synthetic stats file.
func StatsPath() string { return "/" + StatsFileName }

// StatsEnabled reports whether the stats endpoint is active for this
// mount (exported wrapper around statsEnabled for internal/fusefs).
func (fs *FS) StatsEnabled() bool { return fs.statsEnabled() }

// ReadStats returns the current rendering of the stats file.
func (fs *FS) ReadStats() []byte { return fs.renderStats() }

// renderStats formats the counters (and, when available, branch sizes)
// as the synthetic stats file's content.
func (fs *FS) renderStats() []byte {
	snap := fs.counters.snapshot()
	ops := make([]string, 0, len(snap))
	for op := range snap {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	out := "unionfs-fuse statistics\n"
	out += "=======================\n"
	for _, op := range ops {
		out += fmt.Sprintf("%-20s %d\n", op, snap[op])
	}

	out += "\nbranches\n"
	out += "--------\n"
	for _, b := range fs.BranchStats() {
		out += fmt.Sprintf("%d: %-6s %-40s %s\n", b.Index, b.Mode, b.Root, humanize.Bytes(b.Bytes))
	}

	return []byte(out)
}

// BranchStat summarizes one branch for user-facing output (the CLI's
// mount banner and the stats file's branch listing).
type BranchStat struct {
	Index int
	Root  string
	Mode  string
	Bytes uint64
}

// BranchStats reports each branch's root, mode, and the total size of
// the host filesystem holding it (statfs blocks times block size).
func (fs *FS) BranchStats() []BranchStat {
	branches := fs.table.All()
	out := make([]BranchStat, 0, len(branches))
	for _, b := range branches {
		var size uint64
		if st, err := fs.statfsBranch(b); err == nil {
			size = st.Blocks * uint64(st.Bsize)
		}
		out = append(out, BranchStat{Index: b.Index, Root: b.Root, Mode: b.Mode.String(), Bytes: size})
	}
	return out
}
