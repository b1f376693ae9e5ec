package state

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/carlosprados/agentmgr/internal/procprobe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcs treats the listed pids as alive.
type fakeProcs map[int]bool

func (f fakeProcs) Alive(pid int) bool { return f[pid] }

const (
	runPID    = 4242
	daemonPID = 1717
)

func v2Paths(dir string) Paths {
	lock := filepath.Join(dir, "puppetdlock")
	return Paths{
		DisableLock:   lock,
		RunLock:       lock,
		PIDFile:       filepath.Join(dir, "agent.pid"),
		LastRunReport: filepath.Join(dir, "last_run_summary.yaml"),
	}
}

func v3Paths(dir string) Paths {
	return Paths{
		DisableLock:   filepath.Join(dir, "agent_disabled.lock"),
		RunLock:       filepath.Join(dir, "agent_catalog_run.lock"),
		PIDFile:       filepath.Join(dir, "agent.pid"),
		LastRunReport: filepath.Join(dir, "last_run_summary.yaml"),
	}
}

func newProbe(t *testing.T, name Name, paths Paths, procs fakeProcs) *Probe {
	t.Helper()
	l, err := NewLayout(name, paths)
	require.NoError(t, err)
	return New(l, paths, procs)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewLayout_Unknown(t *testing.T) {
	_, err := NewLayout("v9", Paths{})
	assert.Error(t, err)
}

func TestV2_Disabled(t *testing.T) {
	paths := v2Paths(t.TempDir())
	p := newProbe(t, V2, paths, fakeProcs{})

	assert.False(t, p.Disabled(), "no lock file")
	assert.True(t, p.Enabled())

	write(t, paths.DisableLock, "")
	assert.True(t, p.Disabled(), "zero byte lock")
	assert.False(t, p.Enabled())

	write(t, paths.DisableLock, strconv.Itoa(runPID))
	assert.False(t, p.Disabled(), "lock holding a pid is a run, not a disable")
}

func TestV2_Applying(t *testing.T) {
	paths := v2Paths(t.TempDir())
	p := newProbe(t, V2, paths, fakeProcs{runPID: true})

	assert.False(t, p.Applying())

	write(t, paths.RunLock, strconv.Itoa(runPID))
	assert.True(t, p.Applying())
	assert.False(t, p.Stopped())

	write(t, paths.RunLock, "")
	assert.False(t, p.Applying(), "disabled never applies")
	assert.True(t, p.Stopped())

	write(t, paths.RunLock, "999")
	assert.False(t, p.Applying(), "dead pid")
}

func TestV2_LockMessageAlwaysEmpty(t *testing.T) {
	paths := v2Paths(t.TempDir())
	p := newProbe(t, V2, paths, fakeProcs{})
	write(t, paths.DisableLock, "")
	assert.Equal(t, "", p.LockMessage())
}

func TestV2_WriteAndRemoveDisableLock(t *testing.T) {
	paths := v2Paths(t.TempDir())
	p := newProbe(t, V2, paths, fakeProcs{})

	msg, err := p.Layout().WriteDisableLock("ignored", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "", msg)
	assert.True(t, p.Disabled())

	require.NoError(t, p.Layout().RemoveDisableLock())
	assert.False(t, p.Disabled())
}

func TestV3_Disabled(t *testing.T) {
	paths := v3Paths(t.TempDir())
	p := newProbe(t, V3, paths, fakeProcs{})
	assert.False(t, p.Disabled())

	write(t, paths.DisableLock, `{"disabled_message":"maintenance"}`)
	assert.True(t, p.Disabled(), "size is irrelevant")
}

func TestV3_Applying(t *testing.T) {
	paths := v3Paths(t.TempDir())
	p := newProbe(t, V3, paths, fakeProcs{runPID: true})

	write(t, paths.RunLock, strconv.Itoa(runPID)+"\n")
	assert.True(t, p.Applying())

	write(t, paths.DisableLock, `{"disabled_message":"x"}`)
	assert.False(t, p.Applying(), "disabled short-circuits")
}

func TestRunLockPID_DistinctFailures(t *testing.T) {
	paths := v3Paths(t.TempDir())
	p := newProbe(t, V3, paths, fakeProcs{runPID: true})

	_, err := p.runLockPID()
	assert.ErrorIs(t, err, ErrNoRunLock)

	write(t, paths.RunLock, "")
	_, err = p.runLockPID()
	assert.ErrorIs(t, err, ErrRunLockEmpty)

	write(t, paths.RunLock, "not-a-pid")
	_, err = p.runLockPID()
	assert.ErrorIs(t, err, procprobe.ErrMalformedPID)
	assert.False(t, p.Applying())

	write(t, paths.RunLock, strconv.Itoa(runPID))
	pid, err := p.runLockPID()
	require.NoError(t, err)
	assert.Equal(t, runPID, pid)
}

func TestRunLockPID_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}
	paths := v3Paths(t.TempDir())
	p := newProbe(t, V3, paths, fakeProcs{runPID: true})
	write(t, paths.RunLock, strconv.Itoa(runPID))
	require.NoError(t, os.Chmod(paths.RunLock, 0o000))
	t.Cleanup(func() { _ = os.Chmod(paths.RunLock, 0o644) })

	_, err := p.runLockPID()
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.False(t, p.Applying())
}

func TestDaemonPresentAndIdling(t *testing.T) {
	paths := v3Paths(t.TempDir())
	procs := fakeProcs{daemonPID: true, runPID: true}
	p := newProbe(t, V3, paths, procs)

	assert.False(t, p.DaemonPresent(), "no pid file")
	assert.False(t, p.Idling())

	write(t, paths.PIDFile, "garbage")
	assert.False(t, p.DaemonPresent(), "malformed pid file")

	write(t, paths.PIDFile, strconv.Itoa(daemonPID))
	assert.True(t, p.DaemonPresent())
	assert.True(t, p.Idling())

	write(t, paths.RunLock, strconv.Itoa(runPID))
	assert.True(t, p.Applying())
	assert.False(t, p.Idling(), "applying daemon is not idling")

	procs[daemonPID] = false
	assert.False(t, p.DaemonPresent(), "stale pid")
}

func TestDerivedPredicatesHoldEverywhere(t *testing.T) {
	for _, name := range []Name{V2, V3} {
		for _, daemonAlive := range []bool{true, false} {
			for _, runAlive := range []bool{true, false} {
				dir := t.TempDir()
				paths := v3Paths(dir)
				if name == V2 {
					paths = v2Paths(dir)
				}
				p := newProbe(t, name, paths, fakeProcs{daemonPID: daemonAlive, runPID: runAlive})
				write(t, paths.PIDFile, strconv.Itoa(daemonPID))
				write(t, paths.RunLock, strconv.Itoa(runPID))

				assert.Equal(t, p.DaemonPresent() && !p.Applying(), p.Idling())
				assert.Equal(t, !p.Applying(), p.Stopped())
				assert.Equal(t, !p.Disabled(), p.Enabled())
			}
		}
	}
}

func TestV3_LockMessage(t *testing.T) {
	paths := v3Paths(t.TempDir())
	p := newProbe(t, V3, paths, fakeProcs{})

	assert.Equal(t, "", p.LockMessage(), "not disabled")

	write(t, paths.DisableLock, `{"disabled_message":"patching kernel"}`)
	assert.Equal(t, "patching kernel", p.LockMessage())

	write(t, paths.DisableLock, `{not json`)
	assert.Equal(t, "", p.LockMessage(), "malformed")

	write(t, paths.DisableLock, `{"reason":"x"}`)
	assert.Equal(t, "", p.LockMessage(), "schema mismatch")

	write(t, paths.DisableLock, "")
	assert.Equal(t, "", p.LockMessage(), "empty file")
}

func TestV3_WriteDisableLockRoundTrip(t *testing.T) {
	paths := v3Paths(t.TempDir())
	p := newProbe(t, V3, paths, fakeProcs{})
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	msg, err := p.Layout().WriteDisableLock("reason", now)
	require.NoError(t, err)
	assert.Equal(t, "reason", msg)
	assert.True(t, p.Disabled())
	assert.Equal(t, "reason", p.LockMessage())

	b, err := os.ReadFile(paths.DisableLock)
	require.NoError(t, err)
	var rec DisableRecord
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.Equal(t, "2024-03-01T10:30:00Z", rec.DisabledAt)

	require.NoError(t, p.Layout().RemoveDisableLock())
	assert.False(t, p.Disabled())
}

func TestV3_WriteDisableLockDefaultMessage(t *testing.T) {
	paths := v3Paths(t.TempDir())
	p := newProbe(t, V3, paths, fakeProcs{})
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	msg, err := p.Layout().WriteDisableLock("", now)
	require.NoError(t, err)
	assert.Equal(t, "Disabled using agentmgr at Fri Mar  1 10:30:00 2024", msg)
	assert.Equal(t, msg, p.LockMessage())
}

func TestLastRun(t *testing.T) {
	paths := v3Paths(t.TempDir())
	p := newProbe(t, V3, paths, fakeProcs{})

	last, err := p.LastRun()
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	write(t, paths.LastRunReport, "time:\n  last_run: 1000\n")
	last, err = p.LastRun()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), last)

	since, err := p.SinceLastRun(time.Unix(1010, 0))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, since)

	write(t, paths.LastRunReport, "time: [")
	_, err = p.LastRun()
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed away")
}
