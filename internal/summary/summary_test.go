package summary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lastRunYAML = `---
time:
  last_run: 1357063010
  total: 4.12
  config_retrieval: 1.7
changes:
  total: 2
resources:
  changed: 2
  total: 40
events:
  success: 2
  total: 2
version:
  config: 1357062998
  puppet: "3.0.2"
`

func writeReport(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "last_run_summary.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_MissingReturnsSkeleton(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Skeleton(), s)
	assert.Equal(t, int64(0), s.LastRun())
	for _, k := range []string{"failed", "changed", "total", "restarted", "out_of_sync"} {
		assert.Equal(t, int64(0), s.Resource(k), k)
	}
	assert.Empty(t, s.Section("changes"))
	assert.Empty(t, s.Section("version"))
}

func TestLoad_MergesOverSkeleton(t *testing.T) {
	s, err := Load(writeReport(t, lastRunYAML))
	require.NoError(t, err)

	assert.Equal(t, int64(1357063010), s.LastRun())
	assert.Equal(t, int64(2), s.Resource("changed"))
	assert.Equal(t, int64(40), s.Resource("total"))
	// unspecified counters keep their defaults
	assert.Equal(t, int64(0), s.Resource("failed"))
	assert.Equal(t, int64(0), s.Resource("restarted"))
	assert.Equal(t, int64(0), s.Resource("out_of_sync"))
	assert.Equal(t, "3.0.2", s.Section("version")["puppet"])
	assert.InDelta(t, 4.12, s.Section("time")["total"], 0.001)
}

func TestLoad_PassesThroughUnknownKeys(t *testing.T) {
	s, err := Load(writeReport(t, "application_state: running\ntime:\n  last_run: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, "running", s["application_state"])
	assert.Equal(t, int64(5), s.LastRun())
	assert.Contains(t, s, "events")
}

func TestLoad_NullSectionsKeepDefaults(t *testing.T) {
	s, err := Load(writeReport(t, "resources:\ntime:\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Resource("total"))
	assert.Equal(t, int64(0), s.LastRun())
}

func TestLoad_EmptyFile(t *testing.T) {
	s, err := Load(writeReport(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Skeleton(), s)
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(writeReport(t, "time: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeReport(t, "- just\n- a list\n"))
	assert.Error(t, err)

	_, err = Load(writeReport(t, "resources: 12\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `section "resources" is not a mapping`)
}

func TestLastRun_StringValue(t *testing.T) {
	s := Skeleton()
	s.Section("time")["last_run"] = "42"
	assert.Equal(t, int64(42), s.LastRun())

	s.Section("time")["last_run"] = "soon"
	assert.Equal(t, int64(0), s.LastRun())
}

func TestLoadResources(t *testing.T) {
	dir := t.TempDir()
	list, err := LoadResources(filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, list)

	p := filepath.Join(dir, "resources.txt")
	require.NoError(t, os.WriteFile(p, []byte("file[x]\nfile[y]\n\nservice[ntp]\n"), 0o644))
	list, err = LoadResources(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"file[x]", "file[y]", "service[ntp]"}, list)
}
