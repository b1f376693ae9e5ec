//go:build !windows

package runner

import "syscall"

// detachedAttr puts the child in a new session so it survives our exit
// and does not receive terminal signals meant for us.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
