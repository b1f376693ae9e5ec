package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidInput is wrapped by every rejection in this file.
var ErrInvalidInput = errors.New("invalid input")

var (
	// Environments and tag segments: lowercase start, then lowercase, digits, underscore.
	nameRE      = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	hostLabelRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	portRE      = regexp.MustCompile(`^[0-9]{1,5}$`)
)

// Name checks a single identifier that will end up on the agent command line.
// field names the option in the returned error.
func Name(value, field string) error {
	if !nameRE.MatchString(value) {
		return fmt.Errorf("%w for '%s' supplied: %q", ErrInvalidInput, field, value)
	}
	return nil
}

// Tag validates a tag that may be a compound name such as "apache::mod".
// Each segment is checked on its own.
func Tag(tag string) error {
	for _, seg := range strings.Split(tag, "::") {
		if err := Name(seg, "tag"); err != nil {
			return fmt.Errorf("%w for 'tag' supplied: %q", ErrInvalidInput, tag)
		}
	}
	return nil
}

// Tags validates every tag in the list.
func Tags(tags []string) error {
	for _, t := range tags {
		if err := Tag(t); err != nil {
			return err
		}
	}
	return nil
}

// Hostname checks s against RFC 1123 label grammar restricted to lowercase.
func Hostname(s string) error {
	if s == "" || len(s) > 253 {
		return fmt.Errorf("%w: invalid hostname %q", ErrInvalidInput, s)
	}
	for _, label := range strings.Split(s, ".") {
		if !hostLabelRE.MatchString(label) {
			return fmt.Errorf("%w: invalid hostname %q", ErrInvalidInput, s)
		}
	}
	return nil
}

// Port checks a decimal TCP port in 1..65535.
func Port(s string) error {
	if !portRE.MatchString(s) {
		return fmt.Errorf("%w: invalid port %q", ErrInvalidInput, s)
	}
	n, _ := strconv.Atoi(s)
	if n < 1 || n > 65535 {
		return fmt.Errorf("%w: invalid port %q", ErrInvalidInput, s)
	}
	return nil
}

// ParseServer splits "host" or "host:port" and validates both parts.
// port is empty when none was given.
func ParseServer(s string) (host, port string, err error) {
	host, port, hasPort := strings.Cut(s, ":")
	if err := Hostname(host); err != nil {
		return "", "", err
	}
	if hasPort {
		if err := Port(port); err != nil {
			return "", "", err
		}
	}
	return host, port, nil
}
