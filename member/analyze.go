package member

import (
	"errors"
	"fmt"
	"go/token"
	"reflect"
	"runtime"
	"sort"
	"strings"
)

// ErrInvalidTarget is returned for types that cannot be intercepted:
// interfaces and unnamed types.
var ErrInvalidTarget = errors.New("member: invalid target type")

// Analysis is the interceptable surface of a target type.
type Analysis struct {
	Type         reflect.Type // the named type T
	Pointer      reflect.Type // *T, whose method set is analyzed
	Methods      []*Descriptor
	Constructors []*Constructor
	Sealed       []string
	Markers      Markers
}

// Method returns the analyzed method with the given name.
func (a *Analysis) Method(name string) (*Descriptor, bool) {
	for _, d := range a.Methods {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Analyze computes the ordered interceptable methods and the eligible
// constructors of t. t may be T or *T.
func Analyze(t reflect.Type) (*Analysis, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrInvalidTarget)
	}
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() == reflect.Interface {
		return nil, fmt.Errorf("%w: %s is an interface", ErrInvalidTarget, base)
	}
	if base.Name() == "" {
		return nil, fmt.Errorf("%w: %s is not a named type", ErrInvalidTarget, base)
	}

	a := &Analysis{
		Type:    base,
		Pointer: reflect.PointerTo(base),
		Markers: MarkersOf(base),
	}
	providers := embeddedProviders(base)

	for i := 0; i < a.Pointer.NumMethod(); i++ {
		m := a.Pointer.Method(i)
		if !m.IsExported() {
			continue
		}
		declaring, depth := base, 0
		if p, ok := providers[m.Name]; ok && !declaredDirectly(base, m.Name) {
			declaring, depth = p.typ, p.depth
		}
		d := newDescriptor(m.Name, WithoutReceiver(m.Type), declaring, depth)
		if a.Markers.Sealed(m.Name) || (declaring != base && MarkersOf(declaring).Sealed(m.Name)) {
			d.Overridable = false
			a.Sealed = append(a.Sealed, m.Name)
			continue
		}
		a.Methods = append(a.Methods, d)
	}

	classifyAccessors(a.Methods)
	for _, d := range a.Methods {
		d.Markers = a.Markers.For(d.Name, d.Property)
		if d.DeclaringType != base {
			d.Markers = appendUnique(d.Markers, MarkersOf(d.DeclaringType).For(d.Name, d.Property))
		}
	}

	sort.SliceStable(a.Methods, func(i, j int) bool {
		return Less(a.Methods[i].SortKey(), a.Methods[j].SortKey())
	})
	for i, d := range a.Methods {
		d.Index = i
	}
	sort.Strings(a.Sealed)

	a.Constructors = Constructors(base)
	return a, nil
}

type provider struct {
	typ   reflect.Type
	depth int
}

// embeddedProviders walks embedded fields breadth first and records, for
// every exported method name, the shallowest embedded type that provides it.
// Names no embedded field provides are declared by the type itself.
func embeddedProviders(base reflect.Type) map[string]provider {
	found := make(map[string]provider)
	if base.Kind() != reflect.Struct {
		return found
	}

	type entry struct {
		typ   reflect.Type
		depth int
	}
	visited := map[reflect.Type]bool{base: true}
	queue := []entry{{base, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for i := 0; i < cur.typ.NumField(); i++ {
			f := cur.typ.Field(i)
			if !f.Anonymous {
				continue
			}
			ft := f.Type
			named := ft
			if named.Kind() == reflect.Pointer {
				named = named.Elem()
			}
			mset := ft
			if ft.Kind() != reflect.Interface && ft.Kind() != reflect.Pointer {
				mset = reflect.PointerTo(ft)
			}
			depth := cur.depth + 1
			for j := 0; j < mset.NumMethod(); j++ {
				m := mset.Method(j)
				if !m.IsExported() {
					continue
				}
				if _, ok := found[m.Name]; !ok {
					found[m.Name] = provider{typ: named, depth: depth}
				}
			}
			if named.Kind() == reflect.Struct && !visited[named] {
				visited[named] = true
				queue = append(queue, entry{named, depth})
			}
		}
	}
	return found
}

// declaredDirectly reports whether T or *T declares name itself, shadowing
// any embedded method of the same name. The compiler emits promoted methods
// as wrappers that the runtime reports as autogenerated.
func declaredDirectly(base reflect.Type, name string) bool {
	for _, t := range []reflect.Type{reflect.PointerTo(base), base} {
		m, ok := t.MethodByName(name)
		if !ok {
			continue
		}
		f := runtime.FuncForPC(m.Func.Pointer())
		if f == nil {
			continue
		}
		if file, _ := f.FileLine(f.Entry()); file != "<autogenerated>" {
			return true
		}
	}
	return false
}

// classifyAccessors marks X/SetX pairs as getter and setter of property X.
func classifyAccessors(methods []*Descriptor) {
	byName := make(map[string]*Descriptor, len(methods))
	for _, d := range methods {
		byName[d.Name] = d
	}
	for _, set := range methods {
		prop, ok := strings.CutPrefix(set.Name, "Set")
		if !ok || !token.IsExported(prop) {
			continue
		}
		if len(set.Params) != 1 || len(set.Results) != 0 || set.Variadic {
			continue
		}
		get, ok := byName[prop]
		if !ok || len(get.Params) != 0 || len(get.Results) != 1 {
			continue
		}
		if get.Results[0] != set.Params[0].Type {
			continue
		}
		set.Kind, set.Property = Setter, prop
		get.Kind, get.Property = Getter, prop
	}
}

// WithoutReceiver drops the receiver from a method expression type, as
// found in reflect.Method.Type of a concrete type.
func WithoutReceiver(ft reflect.Type) reflect.Type {
	in := make([]reflect.Type, 0, ft.NumIn())
	for i := 1; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	out := make([]reflect.Type, 0, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		out = append(out, ft.Out(i))
	}
	return reflect.FuncOf(in, out, ft.IsVariadic())
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		dup := false
		for _, d := range dst {
			if d == s {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, s)
		}
	}
	return dst
}
