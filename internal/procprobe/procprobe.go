// Package procprobe answers questions about processes recorded in pid files.
package procprobe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

var (
	ErrNoPIDFile    = errors.New("pid file does not exist")
	ErrEmptyPIDFile = errors.New("pid file is empty")
	ErrMalformedPID = errors.New("malformed pid")
	// ErrSignal is wrapped when the wake-up signal could not be delivered.
	ErrSignal = errors.New("failed to signal agent")
)

// ReadPID reads a pid file. The returned error wraps ErrNoPIDFile,
// ErrEmptyPIDFile, ErrMalformedPID or the underlying fs error.
func ReadPID(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNoPIDFile, path)
		}
		return 0, fmt.Errorf("reading pid file: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("%w: %s", ErrEmptyPIDFile, path)
	}
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w %q in %s", ErrMalformedPID, s, path)
	}
	return pid, nil
}

// Probe checks liveness of and signals agent processes.
type Probe struct{}

func New() *Probe { return &Probe{} }

// Alive reports whether pid names a live process we may signal.
// Any failure, including permission denial, reads as not alive.
func (p *Probe) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}

// Wake delivers the wake-up signal (SIGUSR1 on unix) to pid.
func (p *Probe) Wake(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w at pid %d: invalid pid", ErrSignal, pid)
	}
	if err := wake(pid); err != nil {
		return fmt.Errorf("%w at pid %d: %v", ErrSignal, pid, err)
	}
	return nil
}

// Info describes a running process.
type Info struct {
	PID        int       `json:"pid"`
	Name       string    `json:"name"`
	Cmdline    string    `json:"cmdline"`
	StartedAt  time.Time `json:"started_at"`
	RSSBytes   uint64    `json:"rss_bytes"`
	CPUPercent float64   `json:"cpu_percent"`
}

// Describe collects process details. Fields that cannot be read are left zero.
func (p *Probe) Describe(ctx context.Context, pid int) (Info, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Info{}, fmt.Errorf("describe pid %d: %w", pid, err)
	}
	info := Info{PID: pid}
	if name, err := proc.NameWithContext(ctx); err == nil {
		info.Name = name
	}
	if cmdline, err := proc.CmdlineWithContext(ctx); err == nil {
		info.Cmdline = cmdline
	}
	if ms, err := proc.CreateTimeWithContext(ctx); err == nil {
		info.StartedAt = time.UnixMilli(ms)
	}
	if mi, err := proc.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		info.RSSBytes = mi.RSS
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	return info, nil
}
