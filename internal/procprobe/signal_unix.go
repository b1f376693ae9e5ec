//go:build !windows

package procprobe

import "golang.org/x/sys/unix"

func alive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

func wake(pid int) error {
	return unix.Kill(pid, unix.SIGUSR1)
}
