//go:build windows

package procprobe

import "errors"

// Windows agents are woken through their service manager, not signals.

func alive(pid int) bool { return false }

func wake(pid int) error { return errors.New("wake-up signal not supported on windows") }
