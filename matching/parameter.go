package matching

import (
	"fmt"

	"github.com/ppiankov/interpose/member"
)

// ParameterKind selects which side of a signature a TypeMatch inspects.
type ParameterKind int

const (
	Input ParameterKind = iota
	Output
	InputOrOutput
	ReturnValue
)

func (k ParameterKind) String() string {
	switch k {
	case Input:
		return "input"
	case Output:
		return "output"
	case InputOrOutput:
		return "input-or-output"
	case ReturnValue:
		return "return"
	default:
		return fmt.Sprintf("parameter-kind(%d)", int(k))
	}
}

// TypeMatch names a type and the parameter direction it must appear in.
type TypeMatch struct {
	Pattern    string
	Kind       ParameterKind
	IgnoreCase bool
}

// ParameterType matches members with at least one parameter or result
// satisfying one of the matches. Input matches look at value parameters,
// Output matches at the element type of pointer parameters, and ReturnValue
// matches at every result, including a trailing error.
func ParameterType(matches ...TypeMatch) Rule {
	return RuleFunc(func(m *member.Descriptor) bool {
		for _, tm := range matches {
			if matchSignature(m, tm) {
				return true
			}
		}
		return false
	})
}

func matchSignature(m *member.Descriptor, tm TypeMatch) bool {
	if tm.Kind == ReturnValue {
		for _, r := range m.Results {
			if typeNameMatches(r, tm.Pattern, tm.IgnoreCase) {
				return true
			}
		}
		return false
	}
	for _, p := range m.Params {
		switch p.Direction {
		case member.In:
			if tm.Kind != Input && tm.Kind != InputOrOutput {
				continue
			}
		case member.Out:
			if tm.Kind != Output && tm.Kind != InputOrOutput {
				continue
			}
		}
		if typeNameMatches(p.Elem(), tm.Pattern, tm.IgnoreCase) {
			return true
		}
	}
	return false
}
