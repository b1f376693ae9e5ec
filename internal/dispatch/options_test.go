package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromMap_Defaults(t *testing.T) {
	o, err := OptionsFromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), o)
	assert.True(t, o.SignalDaemon)
	assert.False(t, o.ForegroundRun)
}

func TestOptionsFromMap_AllKeys(t *testing.T) {
	o, err := OptionsFromMap(map[string]any{
		"noop":           true,
		"signal_daemon":  false,
		"foreground_run": true,
		"tags":           []any{"one", "two", "one"},
		"environment":    "production",
		"server":         "puppet:8140",
	})
	require.NoError(t, err)
	assert.Equal(t, RunOptions{
		Noop:          true,
		ForegroundRun: true,
		Tags:          []string{"one", "two"},
		Environment:   "production",
		Server:        "puppet:8140",
	}, o)
}

func TestOptionsFromMap_UnknownKey(t *testing.T) {
	_, err := OptionsFromMap(map[string]any{"zeta": 1, "alpha": 1})
	require.ErrorIs(t, err, ErrUnknownOption)
	assert.EqualError(t, err, `unknown option "alpha" specified`)
}

func TestOptionsFromMap_WrongTypes(t *testing.T) {
	for _, m := range []map[string]any{
		{"noop": "yes"},
		{"environment": 3},
		{"tags": 3},
		{"tags": []any{"a", 1}},
	} {
		_, err := OptionsFromMap(m)
		assert.Error(t, err, "%v", m)
	}
}

func TestOptionsFromMap_CommaTags(t *testing.T) {
	o, err := OptionsFromMap(map[string]any{"tags": " a, b,,a "})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, o.Tags)
}

func TestOptionsFromMap_NilValueIgnored(t *testing.T) {
	o, err := OptionsFromMap(map[string]any{"environment": nil})
	require.NoError(t, err)
	assert.Empty(t, o.Environment)
}

func TestCustom(t *testing.T) {
	assert.False(t, DefaultOptions().custom())
	assert.False(t, RunOptions{ForegroundRun: true}.custom())
	assert.True(t, RunOptions{Noop: true}.custom())
	assert.True(t, RunOptions{Server: "x"}.custom())
}

func TestRunOptions_ZeroValueDoesNotSignal(t *testing.T) {
	assert.False(t, RunOptions{}.SignalDaemon)
	assert.True(t, DefaultOptions().SignalDaemon)

	o := DefaultOptions()
	o.Noop = true
	assert.True(t, o.SignalDaemon)
}
