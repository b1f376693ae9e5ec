//go:build !linux

package runtime

// ApplyRlimits is a no-op outside linux.
func ApplyRlimits(noFile uint64) error { return nil }
