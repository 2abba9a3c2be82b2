// Package matching decides which members a handler chain applies to.
//
// A Rule inspects a member descriptor; policies attach handlers to every
// member a rule selects:
//
//	rule := matching.All(
//		matching.MemberName("Get*", "Find*"),
//		matching.Not(matching.Marker("nocache")),
//	)
//	for _, m := range matching.Select(rule, d.Members) {
//		lists[m] = []pipeline.Handler{cache}
//	}
package matching

import (
	"path"
	"reflect"
	"sort"
	"strings"

	"github.com/ppiankov/interpose/member"
)

// Rule reports whether a member should be intercepted.
type Rule interface {
	Matches(m *member.Descriptor) bool
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(m *member.Descriptor) bool

func (f RuleFunc) Matches(m *member.Descriptor) bool { return f(m) }

// Select returns the members matched by rule in index order.
func Select(rule Rule, members []*member.Descriptor) []*member.Descriptor {
	var out []*member.Descriptor
	for _, m := range members {
		if m != nil && rule.Matches(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// All matches when every rule matches. With no rules it matches everything.
func All(rules ...Rule) Rule {
	return RuleFunc(func(m *member.Descriptor) bool {
		for _, r := range rules {
			if !r.Matches(m) {
				return false
			}
		}
		return true
	})
}

// Any matches when at least one rule matches.
func Any(rules ...Rule) Rule {
	return RuleFunc(func(m *member.Descriptor) bool {
		for _, r := range rules {
			if r.Matches(m) {
				return true
			}
		}
		return false
	})
}

// Not inverts a rule.
func Not(rule Rule) Rule {
	return RuleFunc(func(m *member.Descriptor) bool { return !rule.Matches(m) })
}

// Marker matches members that carry one of the named markers, either on the
// member itself, on its property, or on its declaring type. Without names it
// matches members carrying any marker at all.
func Marker(names ...string) Rule {
	return RuleFunc(func(m *member.Descriptor) bool {
		markers := m.Markers
		if m.DeclaringType != nil {
			declared := member.MarkersOf(m.DeclaringType)
			markers = append(append([]string(nil), markers...), declared.For(m.Name, m.Property)...)
		}
		if len(names) == 0 {
			return len(markers) > 0
		}
		for _, have := range markers {
			for _, want := range names {
				if have == want {
					return true
				}
			}
		}
		return false
	})
}

// MemberName matches member names against path.Match glob patterns.
// Malformed patterns never match.
func MemberName(patterns ...string) Rule {
	return RuleFunc(func(m *member.Descriptor) bool {
		for _, p := range patterns {
			if ok, err := path.Match(p, m.Name); err == nil && ok {
				return true
			}
		}
		return false
	})
}

// DeclaringType matches members declared by one of the named types. Names
// are compared the same way ParameterType compares them.
func DeclaringType(names ...string) Rule {
	return RuleFunc(func(m *member.Descriptor) bool {
		if m.DeclaringType == nil {
			return false
		}
		for _, n := range names {
			if typeNameMatches(m.DeclaringType, n, false) {
				return true
			}
		}
		return false
	})
}

// typeNameMatches compares pattern with the short name, the qualified
// String form and the full import-path form of t.
func typeNameMatches(t reflect.Type, pattern string, ignoreCase bool) bool {
	if t == nil || pattern == "" {
		return false
	}
	eq := func(a string) bool {
		if a == "" {
			return false
		}
		if ignoreCase {
			return strings.EqualFold(a, pattern)
		}
		return a == pattern
	}
	if eq(t.Name()) || eq(t.String()) {
		return true
	}
	if t.PkgPath() != "" && eq(t.PkgPath()+"."+t.Name()) {
		return true
	}
	return false
}
