package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_Valid(t *testing.T) {
	for _, name := range []string{"foo", "foo_bar", "foobar", "foobar123"} {
		assert.NoError(t, Name(name, "environment"), name)
	}
}

func TestName_Invalid(t *testing.T) {
	for _, name := range []string{"foo bar", "foo-bar", "1234foobar", "FooBar", "fooBar", ""} {
		err := Name(name, "environment")
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.Contains(t, err.Error(), "invalid input for 'environment' supplied")
	}
}

func TestTag_CompoundSegments(t *testing.T) {
	assert.NoError(t, Tag("apache"))
	assert.NoError(t, Tag("apache::mod_ssl"))

	err := Tag("apache::Mod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"apache::Mod"`)

	assert.Error(t, Tag("apache::"))
	assert.Error(t, Tag("::apache"))
}

func TestTags_StopsAtFirstInvalid(t *testing.T) {
	err := Tags([]string{"ok", "not ok", "Bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"not ok"`)
}

func TestParseServer(t *testing.T) {
	host, port, err := ParseServer("puppet.example.com")
	require.NoError(t, err)
	assert.Equal(t, "puppet.example.com", host)
	assert.Empty(t, port)

	host, port, err = ParseServer("puppet:8140")
	require.NoError(t, err)
	assert.Equal(t, "puppet", host)
	assert.Equal(t, "8140", port)
}

func TestParseServer_Invalid(t *testing.T) {
	cases := map[string]string{
		"foo bar":        "invalid hostname",
		"Puppet.example": "invalid hostname",
		"-bad.example":   "invalid hostname",
		"":               "invalid hostname",
		"puppet:":        "invalid port",
		"puppet:abc":     "invalid port",
		"puppet:0":       "invalid port",
		"puppet:70000":   "invalid port",
		"puppet:81:40":   "invalid port",
	}
	for in, want := range cases {
		_, _, err := ParseServer(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), want, in)
	}
}

func TestValidateDisableRecord(t *testing.T) {
	assert.NoError(t, ValidateDisableRecord(map[string]any{"disabled_message": "maintenance"}))
	assert.Error(t, ValidateDisableRecord(map[string]any{"other": "x"}))
	assert.Error(t, ValidateDisableRecord(map[string]any{"disabled_message": 12.0}))
}

func TestValidateConfigMap(t *testing.T) {
	ok := map[string]any{
		"layout":     "v3",
		"open_files": int64(1024),
		"paths":      map[string]any{"pid_file": "/run/agent.pid"},
	}
	assert.NoError(t, ValidateConfigMap(ok))

	assert.Error(t, ValidateConfigMap(map[string]any{"layout": "v9"}))
	assert.Error(t, ValidateConfigMap(map[string]any{"unknown": true}))
}
