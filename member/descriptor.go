// Package member describes the interceptable surface of a Go type: which
// methods a proxy may override, in what order, and which constructors it
// may forward to.
package member

import (
	"fmt"
	"go/token"
	"reflect"
	"strings"
)

// Kind classifies a member.
type Kind int

const (
	Method Kind = iota
	Getter
	Setter
	Ctor
	Forwarded
)

func (k Kind) String() string {
	switch k {
	case Method:
		return "method"
	case Getter:
		return "getter"
	case Setter:
		return "setter"
	case Ctor:
		return "constructor"
	case Forwarded:
		return "forwarded"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Direction tells whether a parameter carries data into the call or
// receives data from it. Pointer parameters are treated as out-references.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Param is one formal parameter of a member.
type Param struct {
	Index     int
	Type      reflect.Type
	Direction Direction
}

// Elem returns the type a matching rule compares against: the pointed-to
// type for out parameters, the declared type otherwise.
func (p Param) Elem() reflect.Type {
	if p.Direction == Out {
		return p.Type.Elem()
	}
	return p.Type
}

// Descriptor identifies one interceptable member. Descriptors are built once
// by Analyze (or by the proxy synthesizer for forwarded members) and are never
// mutated afterwards.
type Descriptor struct {
	Index         int
	Name          string
	Kind          Kind
	DeclaringType reflect.Type
	Depth         int
	Params        []Param
	Results       []reflect.Type
	Variadic      bool
	ReturnsError  bool
	Exported      bool
	Overridable   bool
	Property      string
	Markers       []string
	Func          reflect.Type // signature without receiver
}

// Signature renders the member's function type, e.g. "func(string, int) error".
func (d *Descriptor) Signature() string {
	if d.Func == nil {
		return "func()"
	}
	return d.Func.String()
}

// SortKey returns the canonical ordering key of the member.
func (d *Descriptor) SortKey() SortKey {
	return SortKey{Depth: d.Depth, Name: d.Name, Signature: d.Signature()}
}

// HasMarker reports whether the member carries the named marker.
func (d *Descriptor) HasMarker(name string) bool {
	for _, m := range d.Markers {
		if m == name {
			return true
		}
	}
	return false
}

// ValueResults returns the results excluding a trailing error.
func (d *Descriptor) ValueResults() []reflect.Type {
	if d.ReturnsError {
		return d.Results[:len(d.Results)-1]
	}
	return d.Results
}

func (d *Descriptor) String() string {
	owner := "?"
	if d.DeclaringType != nil {
		owner = d.DeclaringType.String()
	}
	return fmt.Sprintf("#%d %s.%s %s", d.Index, owner, d.Name, strings.TrimPrefix(d.Signature(), "func"))
}

// SortKey orders members by embedding depth, then name, then signature.
// Method names are unique inside a Go method set, so the signature only
// breaks ties between members coming from different sources.
type SortKey struct {
	Depth     int
	Name      string
	Signature string
}

// Less is the canonical member ordering shared by the runtime analyzer and
// the source generator.
func Less(a, b SortKey) bool {
	if a.Depth != b.Depth {
		return a.Depth < b.Depth
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Signature < b.Signature
}

func newDescriptor(name string, fn reflect.Type, declaring reflect.Type, depth int) *Descriptor {
	d := &Descriptor{
		Name:          name,
		Kind:          Method,
		DeclaringType: declaring,
		Depth:         depth,
		Variadic:      fn.IsVariadic(),
		Exported:      token.IsExported(name),
		Overridable:   true,
		Func:          fn,
	}
	for i := 0; i < fn.NumIn(); i++ {
		in := fn.In(i)
		dir := In
		if in.Kind() == reflect.Pointer {
			dir = Out
		}
		d.Params = append(d.Params, Param{Index: i, Type: in, Direction: dir})
	}
	for i := 0; i < fn.NumOut(); i++ {
		d.Results = append(d.Results, fn.Out(i))
	}
	if n := len(d.Results); n > 0 && d.Results[n-1] == errorType {
		d.ReturnsError = true
	}
	return d
}

// NewForwarded builds the descriptor of an additional-interface member.
// The caller assigns the index from its running counter.
func NewForwarded(iface reflect.Type, m reflect.Method, index int) *Descriptor {
	d := newDescriptor(m.Name, m.Type, iface, 0)
	d.Kind = Forwarded
	d.Index = index
	d.Exported = m.IsExported()
	return d
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
