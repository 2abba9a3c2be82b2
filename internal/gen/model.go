package gen

import (
	"go/types"

	"github.com/ppiankov/interpose/internal/typeparams"
	"github.com/ppiankov/interpose/member"
)

// Model is everything one generated file declares.
type Model struct {
	Package *types.Package
	Targets []*Target
}

// Target is the analyzed proxy of one named type.
type Target struct {
	Name  string
	Proxy string

	Named    *types.Named // the declared, uninstantiated type
	Instance types.Type   // Named instantiated with Params, or Named itself
	Params   *typeparams.Mapper

	Requested    []types.Type // requested, deduplicated and sorted
	Interfaces   []types.Type // the requested ones that add members
	Implemented  []types.Type // the requested ones that add nothing
	Methods      []*Method
	Forwarded    []*Method
	Sealed       []string
	Constructors []*Constructor
}

// Generic reports whether the target declares type parameters.
func (t *Target) Generic() bool {
	return t.Params.Len() > 0
}

// Members returns target methods followed by forwarded ones, in index order.
func (t *Target) Members() []*Method {
	out := make([]*Method, 0, len(t.Methods)+len(t.Forwarded))
	out = append(out, t.Methods...)
	return append(out, t.Forwarded...)
}

// Method is one member as the generator sees it.
type Method struct {
	Index     int
	Name      string
	Kind      member.Kind
	Property  string
	Depth     int
	Markers   []string
	Declaring types.Type
	Sig       *types.Signature
}

// ReturnsError reports whether the last result is the error type.
func (m *Method) ReturnsError() bool {
	return returnsError(m.Sig)
}

// SortKey returns the canonical ordering key shared with member.Analyze.
func (m *Method) SortKey() member.SortKey {
	return member.SortKey{Depth: m.Depth, Name: m.Name, Signature: types.TypeString(m.Sig, nil)}
}

// Constructor is a package function that builds the target.
type Constructor struct {
	Name         string // empty for the zero-value constructor
	Sig          *types.Signature
	Pointer      bool
	ReturnsError bool
}

// Zero reports whether this is the implicit zero-value constructor.
func (c *Constructor) Zero() bool {
	return c.Name == ""
}

var errorType = types.Universe.Lookup("error").Type()

func returnsError(sig *types.Signature) bool {
	r := sig.Results()
	return r.Len() > 0 && types.Identical(r.At(r.Len()-1).Type(), errorType)
}
