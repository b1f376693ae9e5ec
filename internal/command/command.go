// Package command turns validated run options into agent command lines.
package command

import (
	"strings"

	"github.com/carlosprados/agentmgr/internal/validate"
)

// Fixed argument prefixes for the two spawn strategies.
var (
	foregroundPrefix = []string{"agent", "--test", "--color=false"}
	backgroundPrefix = []string{"agent", "--onetime", "--daemonize", "--color=false"}
)

// Flag is a single command line option with an optional value.
type Flag struct {
	Name  string
	Value string
}

// String renders the flag as "--name value" (or "--name" when valueless).
func (f Flag) String() string {
	if f.Value == "" {
		return f.Name
	}
	return f.Name + " " + f.Value
}

// Flags is an ordered set of options.
type Flags []Flag

// Strings renders one string per flag.
func (fs Flags) Strings() []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.String())
	}
	return out
}

// Args flattens the flags into argv tokens suitable for exec.
func (fs Flags) Args() []string {
	out := make([]string, 0, len(fs)*2)
	for _, f := range fs {
		out = append(out, f.Name)
		if f.Value != "" {
			out = append(out, f.Value)
		}
	}
	return out
}

// Build returns the agent flags for a run. The order is fixed:
// --tags, --noop, --environment, --server, --masterport.
// server may be empty, "host" or "host:port"; it is parsed before anything
// else so a malformed target never yields a partial list.
func Build(noop bool, tags []string, environment, server string) (Flags, error) {
	var host, port string
	if server != "" {
		var err error
		if host, port, err = validate.ParseServer(server); err != nil {
			return nil, err
		}
	}
	if err := validate.Tags(tags); err != nil {
		return nil, err
	}
	if environment != "" {
		if err := validate.Name(environment, "environment"); err != nil {
			return nil, err
		}
	}

	var fs Flags
	if len(tags) > 0 {
		fs = append(fs, Flag{Name: "--tags", Value: strings.Join(tags, ",")})
	}
	if noop {
		fs = append(fs, Flag{Name: "--noop"})
	}
	if environment != "" {
		fs = append(fs, Flag{Name: "--environment", Value: environment})
	}
	if host != "" {
		fs = append(fs, Flag{Name: "--server", Value: host})
		if port != "" {
			fs = append(fs, Flag{Name: "--masterport", Value: port})
		}
	}
	return fs, nil
}

// Foreground returns the argv for a synchronous test run.
func Foreground(binary string, fs Flags) []string {
	return assemble(binary, foregroundPrefix, fs)
}

// Background returns the argv for a detached one-off run.
func Background(binary string, fs Flags) []string {
	return assemble(binary, backgroundPrefix, fs)
}

func assemble(binary string, prefix []string, fs Flags) []string {
	argv := make([]string, 0, 1+len(prefix)+len(fs)*2)
	argv = append(argv, binary)
	argv = append(argv, prefix...)
	return append(argv, fs.Args()...)
}
