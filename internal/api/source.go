package api

import (
	"fmt"
	"strings"
)

// Source records who issued a control command.
type Source int

const (
	// SourceUser is a command from an operator or the primary controller.
	SourceUser Source = iota
	// SourceMesh is a command relayed by a sibling node.
	SourceMesh
)

func (s Source) String() string {
	switch s {
	case SourceMesh:
		return "mesh"
	default:
		return "user"
	}
}

// Relays reports whether a command with this provenance must be fanned out
// to peers after local execution.
func (s Source) Relays() bool {
	return s == SourceUser
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value means
// SourceUser so bare requests from tools behave as operator commands.
func (s *Source) UnmarshalText(text []byte) error {
	parsed, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSource converts the wire form into a Source.
func ParseSource(value string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "user":
		return SourceUser, nil
	case "mesh":
		return SourceMesh, nil
	default:
		return SourceUser, fmt.Errorf("unknown command source %q", value)
	}
}
