package proxy

import (
	"fmt"
	"reflect"

	"github.com/ppiankov/interpose/member"
)

// Descriptor is the synthesized proxy type for one (target, interface set)
// key. Descriptors are published once to the process-wide cache and are
// never modified afterwards.
type Descriptor struct {
	Target       reflect.Type // T
	Pointer      reflect.Type // *T
	Interfaces   []reflect.Type // requested interfaces that add forwarded members
	Implemented  []reflect.Type // requested interfaces that add nothing; disjoint from Interfaces
	Members      []*member.Descriptor
	Constructors []*member.Constructor

	forwardedFrom int
	byName        map[string]*member.Descriptor
	key           string
}

// Key returns the cache key the descriptor was published under.
func (d *Descriptor) Key() string {
	return d.key
}

// Member looks up a member by name.
func (d *Descriptor) Member(name string) (*member.Descriptor, bool) {
	m, ok := d.byName[name]
	return m, ok
}

// MustMember is Member that panics when the name is unknown. Generated code
// uses it to resolve members once at package init.
func (d *Descriptor) MustMember(name string) *member.Descriptor {
	m, ok := d.byName[name]
	if !ok {
		panic(fmt.Sprintf("proxy: %s has no member %q", d.Target, name))
	}
	return m
}

// TargetMembers returns the members backed by the target implementation.
func (d *Descriptor) TargetMembers() []*member.Descriptor {
	return d.Members[:d.forwardedFrom]
}

// Forwarded returns the members added for additional interfaces.
func (d *Descriptor) Forwarded() []*member.Descriptor {
	return d.Members[d.forwardedFrom:]
}

// owns reports whether m is one of this descriptor's members.
func (d *Descriptor) owns(m *member.Descriptor) bool {
	return m != nil && m.Index >= 0 && m.Index < len(d.Members) && d.Members[m.Index] == m
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("proxy(%s, %d members, %d forwarded)", d.Target, len(d.Members), len(d.Members)-d.forwardedFrom)
}
