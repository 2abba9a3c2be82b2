// Package typeparams re-declares the type parameters of a generic target so
// generated code can introduce its own parameters of the same shape and
// rewrite every signature in terms of them.
package typeparams

import (
	"errors"
	"fmt"
	"go/token"
	"go/types"
	"strings"
)

// ErrUnsupportedConstraint is returned for constraints that cannot be
// re-declared, such as two separate type-set terms on one parameter.
var ErrUnsupportedConstraint = errors.New("typeparams: unsupported constraint")

// Constraint is the split form of one parameter's constraint: at most one
// type-set term list plus any number of interfaces the argument must
// implement. Methods declared inline count as one anonymous interface.
type Constraint struct {
	TypeSet    string
	Interfaces []string
}

// Mapper maps original type parameters onto freshly declared ones.
type Mapper struct {
	orig   []*types.TypeParam
	params []*types.TypeParam
	subst  map[*types.TypeParam]types.Type
	splits []split
}

type split struct {
	typeSet    types.Type // *types.Union or a single non-interface term
	interfaces []types.Type
	methods    []*types.Func
}

// Identity returns the mapper of a non-generic target: it declares nothing
// and Map returns its input.
func Identity() *Mapper {
	return &Mapper{subst: map[*types.TypeParam]types.Type{}}
}

// New declares one parameter per original, with the same name and
// position, and rewrites each constraint through the mapping so
// constraints that mention other parameters refer to the new ones.
func New(pkg *types.Package, orig *types.TypeParamList) (*Mapper, error) {
	m := Identity()
	if orig == nil || orig.Len() == 0 {
		return m, nil
	}
	for i := 0; i < orig.Len(); i++ {
		o := orig.At(i)
		obj := types.NewTypeName(token.NoPos, pkg, o.Obj().Name(), nil)
		p := types.NewTypeParam(obj, nil)
		m.orig = append(m.orig, o)
		m.params = append(m.params, p)
		m.subst[o] = p
	}
	for i, o := range m.orig {
		s, err := splitConstraint(o)
		if err != nil {
			return nil, err
		}
		m.splits = append(m.splits, s)
		m.params[i].SetConstraint(m.Map(o.Constraint()))
	}
	return m, nil
}

func splitConstraint(tp *types.TypeParam) (split, error) {
	var s split
	c := tp.Constraint()
	iface, ok := c.Underlying().(*types.Interface)
	if !ok {
		return s, fmt.Errorf("%w: %s has constraint %s", ErrUnsupportedConstraint, tp.Obj().Name(), c)
	}
	switch c.(type) {
	case *types.Named, *types.Alias:
		// comparable, any and declared constraints are kept by name.
		s.interfaces = append(s.interfaces, c)
		return s, nil
	}
	for i := 0; i < iface.NumEmbeddeds(); i++ {
		e := iface.EmbeddedType(i)
		if _, isIface := e.Underlying().(*types.Interface); isIface {
			s.interfaces = append(s.interfaces, e)
			continue
		}
		if s.typeSet != nil {
			return s, fmt.Errorf("%w: %s declares more than one type set", ErrUnsupportedConstraint, tp.Obj().Name())
		}
		s.typeSet = e
	}
	for i := 0; i < iface.NumExplicitMethods(); i++ {
		s.methods = append(s.methods, iface.ExplicitMethod(i))
	}
	return s, nil
}

// Bind makes another parameter list, such as a method's receiver type
// parameters or a generic constructor's own parameters, map positionally
// onto the declared parameters.
func (m *Mapper) Bind(list *types.TypeParamList) error {
	if list == nil {
		return nil
	}
	if list.Len() != len(m.params) {
		return fmt.Errorf("typeparams: %d parameters cannot bind to %d", list.Len(), len(m.params))
	}
	for i := 0; i < list.Len(); i++ {
		m.subst[list.At(i)] = m.params[i]
	}
	return nil
}

// Len returns the number of declared parameters.
func (m *Mapper) Len() int {
	return len(m.params)
}

// Types returns the declared parameters as type arguments.
func (m *Mapper) Types() []types.Type {
	out := make([]types.Type, len(m.params))
	for i, p := range m.params {
		out[i] = p
	}
	return out
}

// Instantiate instantiates a generic named type with the declared
// parameters. Its method set then speaks in terms of the new parameters.
func (m *Mapper) Instantiate(origin *types.Named) (types.Type, error) {
	if len(m.params) == 0 {
		return origin, nil
	}
	t, err := types.Instantiate(nil, origin.Origin(), m.Types(), false)
	if err != nil {
		return nil, fmt.Errorf("typeparams: instantiate %s: %w", origin.Obj().Name(), err)
	}
	return t, nil
}

// Constraints returns the split constraint of every parameter.
func (m *Mapper) Constraints(q types.Qualifier) []Constraint {
	out := make([]Constraint, len(m.splits))
	for i, s := range m.splits {
		var c Constraint
		if s.typeSet != nil {
			c.TypeSet = types.TypeString(m.Map(s.typeSet), q)
		}
		for _, it := range s.interfaces {
			c.Interfaces = append(c.Interfaces, types.TypeString(m.Map(it), q))
		}
		if len(s.methods) > 0 {
			var b strings.Builder
			b.WriteString("interface{")
			for j, fn := range s.methods {
				if j > 0 {
					b.WriteString("; ")
				}
				b.WriteString(fn.Name())
				sig := m.Map(fn.Type()).(*types.Signature)
				b.WriteString(strings.TrimPrefix(types.TypeString(sig, q), "func"))
			}
			b.WriteString("}")
			c.Interfaces = append(c.Interfaces, b.String())
		}
		out[i] = c
	}
	return out
}

// Params renders the declaration list, e.g. "[K comparable, V any]", or ""
// when there are no parameters.
func (m *Mapper) Params(q types.Qualifier) string {
	if len(m.params) == 0 {
		return ""
	}
	parts := make([]string, len(m.params))
	for i, p := range m.params {
		parts[i] = p.Obj().Name() + " " + types.TypeString(p.Constraint(), q)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Args renders the argument list, e.g. "[K, V]", or "".
func (m *Mapper) Args() string {
	if len(m.params) == 0 {
		return ""
	}
	parts := make([]string, len(m.params))
	for i, p := range m.params {
		parts[i] = p.Obj().Name()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
