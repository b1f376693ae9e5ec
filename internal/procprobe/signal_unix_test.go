//go:build !windows

package procprobe

import (
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID returns the pid of a child that has already been reaped.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

func TestAlive(t *testing.T) {
	p := New()
	assert.True(t, p.Alive(os.Getpid()))
	assert.False(t, p.Alive(deadPID(t)))
}

func TestAlive_PIDFromFile(t *testing.T) {
	dir := t.TempDir()
	p := New()
	live, err := ReadPID(writeFile(t, dir, "live.pid", strconv.Itoa(os.Getpid())))
	require.NoError(t, err)
	dead, err := ReadPID(writeFile(t, dir, "dead.pid", strconv.Itoa(deadPID(t))))
	require.NoError(t, err)
	assert.True(t, p.Alive(live))
	assert.False(t, p.Alive(dead))
}

func TestWake_DeliversSIGUSR1(t *testing.T) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)

	require.NoError(t, New().Wake(os.Getpid()))

	select {
	case sig := <-ch:
		assert.Equal(t, syscall.SIGUSR1, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("SIGUSR1 not received")
	}
}

func TestWake_DeadProcess(t *testing.T) {
	pid := deadPID(t)
	err := New().Wake(pid)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignal)
	assert.Contains(t, err.Error(), "failed to signal agent at pid "+strconv.Itoa(pid))
}
