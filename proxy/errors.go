package proxy

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrorKind classifies a synthesis failure.
type ErrorKind int

const (
	NotAnInterface ErrorKind = iota + 1
	NoAccessibleConstructor
	UnsupportedMember
	MemberCollision
	InvalidTarget
)

func (k ErrorKind) String() string {
	switch k {
	case NotAnInterface:
		return "not an interface"
	case NoAccessibleConstructor:
		return "no accessible constructor"
	case UnsupportedMember:
		return "unsupported member"
	case MemberCollision:
		return "member collision"
	case InvalidTarget:
		return "invalid target"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Sentinels matched by errors.Is against a *ConfigurationError of the same kind.
var (
	ErrNotAnInterface          = errors.New("proxy: not an interface")
	ErrNoAccessibleConstructor = errors.New("proxy: no accessible constructor")
	ErrUnsupportedMember       = errors.New("proxy: unsupported member")
	ErrMemberCollision         = errors.New("proxy: member collision")
	ErrInvalidTarget           = errors.New("proxy: invalid target")
)

// ErrUnknownMember is returned when a call names a member the descriptor
// does not have.
var ErrUnknownMember = errors.New("proxy: unknown member")

// ConfigurationError reports why a proxy could not be synthesized. A failed
// synthesis never publishes a descriptor.
type ConfigurationError struct {
	Kind     ErrorKind
	Type     reflect.Type
	TypeName string // used when no reflect.Type exists, as in the generator
	Member   string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := "proxy: " + e.Kind.String()
	switch {
	case e.Type != nil:
		msg += " in " + e.Type.String()
	case e.TypeName != "":
		msg += " in " + e.TypeName
	}
	if e.Member != "" {
		msg += "." + e.Member
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	switch target {
	case ErrNotAnInterface:
		return e.Kind == NotAnInterface
	case ErrNoAccessibleConstructor:
		return e.Kind == NoAccessibleConstructor
	case ErrUnsupportedMember:
		return e.Kind == UnsupportedMember
	case ErrMemberCollision:
		return e.Kind == MemberCollision
	case ErrInvalidTarget:
		return e.Kind == InvalidTarget
	}
	return false
}

func configError(kind ErrorKind, t reflect.Type, member, reason string) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Type: t, Member: member, Reason: reason}
}
