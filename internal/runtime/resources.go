//go:build linux

package runtime

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ApplyRlimits raises RLIMIT_NOFILE to noFile for this process and thereby
// for agent runs spawned from it. Zero leaves the limit untouched.
func ApplyRlimits(noFile uint64) error {
	if noFile == 0 {
		return nil
	}
	var cur unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &cur); err != nil {
		return fmt.Errorf("getrlimit NOFILE: %w", err)
	}
	if cur.Cur == noFile {
		return nil
	}
	lim := &unix.Rlimit{Cur: noFile, Max: noFile}
	if cur.Max > noFile {
		// keep the hard limit, only move the soft one
		lim.Max = cur.Max
	}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, lim); err != nil {
		return fmt.Errorf("setrlimit NOFILE: %w", err)
	}
	return nil
}
