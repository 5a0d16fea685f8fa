package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"unionfs/internal/branch"
	"unionfs/internal/unionfs"
)

// parseBranchSpec parses the `dir1=MODE:dir2=MODE:...` branch grammar
// (colon-separated, topmost-first) into an ordered Branch Table input.
func parseBranchSpec(spec string) ([]*branch.Branch, error) {
	if spec == "" {
		return nil, fmt.Errorf("unionfs: empty branch_spec")
	}

	parts := strings.Split(spec, ":")
	branches := make([]*branch.Branch, 0, len(parts))
	for i, p := range parts {
		eq := strings.LastIndex(p, "=")
		if eq < 0 {
			return nil, fmt.Errorf("unionfs: branch %q missing \"=MODE\"", p)
		}
		dir, modeStr := p[:eq], p[eq+1:]
		if dir == "" {
			return nil, fmt.Errorf("unionfs: branch %q missing directory", p)
		}
		mode, err := branch.ParseMode(modeStr)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("unionfs: resolving %q: %w", dir, err)
		}
		branches = append(branches, &branch.Branch{Index: i, Root: abs, Mode: mode})
	}
	return branches, nil
}

// parseMountOptions turns the repeated `-o name[,name=value,...]` tokens
// into unionfs.Options, starting from unionfs.DefaultOptions().
func parseMountOptions(raw []string) (unionfs.Options, error) {
	opts := unionfs.DefaultOptions()

	for _, group := range raw {
		for _, tok := range strings.Split(group, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			name, value, hasValue := strings.Cut(tok, "=")
			switch name {
			case "cow":
				opts.COW = true
			case "stats":
				opts.Stats = true
			case "relaxed_permissions":
				opts.RelaxedPermissions = true
			case "preserve_branch":
				opts.PreserveBranch = true
			case "auto_unmount":
				opts.AutoUnmount = true
			case "debug_file":
				if !hasValue || value == "" {
					return opts, fmt.Errorf("unionfs: debug_file requires a path (debug_file=PATH)")
				}
				opts.DebugFile = value
			case "stats_db":
				if !hasValue || value == "" {
					return opts, fmt.Errorf("unionfs: stats_db requires a path (stats_db=PATH)")
				}
				opts.StatsDBPath = value
			case "cache_size":
				if !hasValue {
					return opts, fmt.Errorf("unionfs: cache_size requires a value (cache_size=N)")
				}
				n, err := strconv.Atoi(value)
				if err != nil {
					return opts, fmt.Errorf("unionfs: invalid cache_size %q: %w", value, err)
				}
				opts.ResolutionCacheSize = n
			default:
				return opts, fmt.Errorf("unionfs: unknown option %q", name)
			}
		}
	}
	return opts, nil
}
