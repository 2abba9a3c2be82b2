package gen

import (
	"fmt"
	"go/token"
	"go/types"
	"reflect"
	"sort"
	"strings"

	"github.com/ppiankov/interpose/internal/typeparams"
	"github.com/ppiankov/interpose/member"
	"github.com/ppiankov/interpose/proxy"
)

var markerPkgPath = reflect.TypeFor[member.Marker]().PkgPath()

// Analyze computes the proxy model of typeName in pkg, extended with the
// additional interfaces. An interface is named "Name" for a type declared
// in pkg or the universe, and "path.Name" or "pkgname.Name" for a type from
// a package pkg imports. Failures are *proxy.ConfigurationError values of
// the same kinds the runtime synthesizer reports.
func Analyze(pkg *types.Package, typeName string, ifaces []string) (*Target, error) {
	obj, ok := pkg.Scope().Lookup(typeName).(*types.TypeName)
	if !ok {
		return nil, genError(proxy.InvalidTarget, typeName, "", "no type of that name in "+pkg.Path())
	}
	if obj.IsAlias() {
		return nil, genError(proxy.InvalidTarget, typeName, "", "aliases cannot be proxied, name the aliased type")
	}
	named, ok := obj.Type().(*types.Named)
	if !ok {
		return nil, genError(proxy.InvalidTarget, typeName, "", "target must be a named type")
	}
	if _, isIface := named.Underlying().(*types.Interface); isIface {
		return nil, genError(proxy.InvalidTarget, typeName, "", "interfaces have no implementation to intercept")
	}

	mapper, err := typeparams.New(pkg, named.TypeParams())
	if err != nil {
		return nil, &proxy.ConfigurationError{Kind: proxy.UnsupportedMember, TypeName: typeName, Err: err}
	}
	inst, err := mapper.Instantiate(named)
	if err != nil {
		return nil, &proxy.ConfigurationError{Kind: proxy.InvalidTarget, TypeName: typeName, Err: err}
	}

	t := &Target{
		Name:     typeName,
		Proxy:    typeName + "Proxy",
		Named:    named,
		Instance: inst,
		Params:   mapper,
	}
	if err := analyzeMethods(pkg, t); err != nil {
		return nil, err
	}
	if err := analyzeConstructors(pkg, t); err != nil {
		return nil, err
	}
	requested, err := resolveInterfaces(pkg, ifaces)
	if err != nil {
		return nil, err
	}
	t.Requested = requested
	if err := forward(pkg, t, requested); err != nil {
		return nil, err
	}
	return t, nil
}

func analyzeMethods(pkg *types.Package, t *Target) error {
	markers := markersOf(t.Named)
	mset := types.NewMethodSet(types.NewPointer(t.Instance))
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		fn, ok := sel.Obj().(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		declaring := receiverOf(fn)
		if markers.Sealed(fn.Name()) || (declaring != nil && declaring != t.Named && markersOf(declaring).Sealed(fn.Name())) {
			t.Sealed = append(t.Sealed, fn.Name())
			continue
		}
		sig := sel.Type().(*types.Signature)
		if f := foreignUnexported(sig, pkg); f != nil {
			return genError(proxy.UnsupportedMember, t.Name, fn.Name(),
				fmt.Sprintf("signature uses %s, which cannot be named outside %s", f.Obj().Name(), f.Obj().Pkg().Path()))
		}
		m := &Method{
			Name:  fn.Name(),
			Kind:  member.Method,
			Depth: len(sel.Index()) - 1,
			Sig:   sig,
		}
		if declaring != nil {
			m.Declaring = declaring
		}
		t.Methods = append(t.Methods, m)
	}

	classifyAccessors(t.Methods)
	for _, m := range t.Methods {
		m.Markers = markers.For(m.Name, m.Property)
		if d, ok := m.Declaring.(*types.Named); ok && d != t.Named {
			m.Markers = appendUnique(m.Markers, markersOf(d).For(m.Name, m.Property))
		}
		if m.Declaring == nil {
			m.Declaring = t.Named
		}
	}
	sort.SliceStable(t.Methods, func(i, j int) bool {
		return member.Less(t.Methods[i].SortKey(), t.Methods[j].SortKey())
	})
	for i, m := range t.Methods {
		m.Index = i
		if m.Name == "Interception" || m.Name == t.Name {
			return genError(proxy.MemberCollision, t.Name, m.Name, "the generated proxy declares this name itself")
		}
	}
	sort.Strings(t.Sealed)
	return nil
}

// receiverOf returns the declared (uninstantiated) type a method belongs to.
func receiverOf(fn *types.Func) *types.Named {
	recv := fn.Type().(*types.Signature).Recv()
	if recv == nil {
		return nil
	}
	rt := recv.Type()
	if p, ok := rt.(*types.Pointer); ok {
		rt = p.Elem()
	}
	if n, ok := types.Unalias(rt).(*types.Named); ok {
		return n.Origin()
	}
	return nil
}

// markersOf reads the intercept tags of member.Marker fields.
func markersOf(named *types.Named) member.Markers {
	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		return member.Markers{}
	}
	var tags []string
	for i := 0; i < st.NumFields(); i++ {
		if !isMarker(st.Field(i).Type()) {
			continue
		}
		if tag, ok := reflect.StructTag(st.Tag(i)).Lookup(member.MarkerTag); ok {
			tags = append(tags, tag)
		}
	}
	return member.ParseMarkers(tags...)
}

func isMarker(t types.Type) bool {
	n, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return false
	}
	obj := n.Obj()
	return obj.Name() == "Marker" && obj.Pkg() != nil && obj.Pkg().Path() == markerPkgPath
}

func classifyAccessors(methods []*Method) {
	byName := make(map[string]*Method, len(methods))
	for _, m := range methods {
		byName[m.Name] = m
	}
	for _, set := range methods {
		prop, ok := strings.CutPrefix(set.Name, "Set")
		if !ok || prop == "" || !token.IsExported(prop) {
			continue
		}
		if set.Sig.Params().Len() != 1 || set.Sig.Results().Len() != 0 || set.Sig.Variadic() {
			continue
		}
		get, ok := byName[prop]
		if !ok || get.Sig.Params().Len() != 0 || get.Sig.Results().Len() != 1 {
			continue
		}
		if !types.Identical(get.Sig.Results().At(0).Type(), set.Sig.Params().At(0).Type()) {
			continue
		}
		set.Kind, set.Property = member.Setter, prop
		get.Kind, get.Property = member.Getter, prop
	}
}

// analyzeConstructors finds package functions returning T or *T, optionally
// followed by an error. A generic constructor must declare exactly the
// target's type parameters and return the target instantiated with them,
// in order. With no constructor at all the zero value is used.
func analyzeConstructors(pkg *types.Package, t *Target) error {
	declared := 0
	scope := pkg.Scope()
	for _, name := range scope.Names() {
		fn, ok := scope.Lookup(name).(*types.Func)
		if !ok {
			continue
		}
		sig := fn.Type().(*types.Signature)
		c, ok := constructorOf(t, fn, sig)
		if !ok {
			continue
		}
		declared++
		if !fn.Exported() {
			continue
		}
		if f := foreignUnexported(c.Sig, pkg); f != nil {
			return genError(proxy.UnsupportedMember, t.Name, fn.Name(),
				fmt.Sprintf("constructor uses %s, which cannot be named outside %s", f.Obj().Name(), f.Obj().Pkg().Path()))
		}
		t.Constructors = append(t.Constructors, c)
	}
	if declared == 0 {
		t.Constructors = []*Constructor{{Pointer: true, Sig: types.NewSignatureType(nil, nil, nil, nil, nil, false)}}
		return nil
	}
	if len(t.Constructors) == 0 {
		return genError(proxy.NoAccessibleConstructor, t.Name, "", "every declared constructor is unexported")
	}
	sort.SliceStable(t.Constructors, func(i, j int) bool {
		a, b := t.Constructors[i], t.Constructors[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return types.TypeString(a.Sig, nil) < types.TypeString(b.Sig, nil)
	})
	return nil
}

func constructorOf(t *Target, fn *types.Func, sig *types.Signature) (*Constructor, bool) {
	if sig.Recv() != nil {
		return nil, false
	}
	res := sig.Results()
	if res.Len() == 0 || res.Len() > 2 {
		return nil, false
	}
	if res.Len() == 2 && !types.Identical(res.At(1).Type(), errorType) {
		return nil, false
	}
	out := res.At(0).Type()
	pointer := false
	if p, ok := out.(*types.Pointer); ok {
		out, pointer = p.Elem(), true
	}
	n, ok := types.Unalias(out).(*types.Named)
	if !ok || n.Origin() != t.Named {
		return nil, false
	}

	mapped := sig
	if t.Generic() {
		tps := sig.TypeParams()
		if tps.Len() != t.Params.Len() || n.TypeArgs().Len() != tps.Len() {
			return nil, false
		}
		for i := 0; i < tps.Len(); i++ {
			if n.TypeArgs().At(i) != types.Type(tps.At(i)) {
				return nil, false
			}
		}
		if err := t.Params.Bind(tps); err != nil {
			return nil, false
		}
		mapped = t.Params.Map(sig).(*types.Signature)
	} else if sig.TypeParams().Len() > 0 {
		return nil, false
	}
	return &Constructor{
		Name:         fn.Name(),
		Sig:          mapped,
		Pointer:      pointer,
		ReturnsError: res.Len() == 2,
	}, true
}

// foreignUnexported returns the first unexported named type in t declared
// outside pkg, or nil.
func foreignUnexported(t types.Type, pkg *types.Package) *types.Named {
	return walkForeign(t, pkg, make(map[types.Type]bool))
}

func walkForeign(t types.Type, pkg *types.Package, seen map[types.Type]bool) *types.Named {
	if t == nil || seen[t] {
		return nil
	}
	seen[t] = true
	switch t := t.(type) {
	case *types.Alias:
		return walkForeign(types.Unalias(t), pkg, seen)
	case *types.Named:
		obj := t.Obj()
		if obj.Pkg() != nil && obj.Pkg() != pkg && !obj.Exported() {
			return t
		}
		args := t.TypeArgs()
		for i := 0; i < args.Len(); i++ {
			if f := walkForeign(args.At(i), pkg, seen); f != nil {
				return f
			}
		}
	case *types.Pointer:
		return walkForeign(t.Elem(), pkg, seen)
	case *types.Slice:
		return walkForeign(t.Elem(), pkg, seen)
	case *types.Array:
		return walkForeign(t.Elem(), pkg, seen)
	case *types.Chan:
		return walkForeign(t.Elem(), pkg, seen)
	case *types.Map:
		if f := walkForeign(t.Key(), pkg, seen); f != nil {
			return f
		}
		return walkForeign(t.Elem(), pkg, seen)
	case *types.Signature:
		if f := walkForeign(t.Params(), pkg, seen); f != nil {
			return f
		}
		return walkForeign(t.Results(), pkg, seen)
	case *types.Tuple:
		for i := 0; i < t.Len(); i++ {
			if f := walkForeign(t.At(i).Type(), pkg, seen); f != nil {
				return f
			}
		}
	case *types.Struct:
		for i := 0; i < t.NumFields(); i++ {
			if f := walkForeign(t.Field(i).Type(), pkg, seen); f != nil {
				return f
			}
		}
	case *types.Interface:
		for i := 0; i < t.NumMethods(); i++ {
			if f := walkForeign(t.Method(i).Type(), pkg, seen); f != nil {
				return f
			}
		}
	}
	return nil
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

func genError(kind proxy.ErrorKind, typeName, memberName, reason string) *proxy.ConfigurationError {
	return &proxy.ConfigurationError{Kind: kind, TypeName: typeName, Member: memberName, Reason: reason}
}
