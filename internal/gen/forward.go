package gen

import (
	"fmt"
	"go/types"
	"sort"
	"strings"

	"github.com/ppiankov/interpose/member"
	"github.com/ppiankov/interpose/proxy"
)

// resolveInterfaces looks up the requested interfaces, drops duplicates and
// sorts the rest canonically.
func resolveInterfaces(pkg *types.Package, names []string) ([]types.Type, error) {
	var out []types.Type
	for _, name := range names {
		it, err := lookupInterface(pkg, name)
		if err != nil {
			return nil, err
		}
		dup := false
		for _, prev := range out {
			if types.Identical(prev, it) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return interfaceOrder(out[i]) < interfaceOrder(out[j])
	})
	return out, nil
}

func interfaceOrder(t types.Type) string {
	if n, ok := t.(*types.Named); ok && n.Obj().Pkg() != nil {
		return n.Obj().Pkg().Path() + "." + n.Obj().Name()
	}
	return types.TypeString(t, nil)
}

func lookupInterface(pkg *types.Package, name string) (types.Type, error) {
	var obj types.Object
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		path, local := name[:dot], name[dot+1:]
		for _, imp := range pkg.Imports() {
			if imp.Path() == path || imp.Name() == path {
				obj = imp.Scope().Lookup(local)
				break
			}
		}
		if obj == nil && path == pkg.Path() {
			obj = pkg.Scope().Lookup(local)
		}
	} else {
		obj = pkg.Scope().Lookup(name)
		if obj == nil {
			obj = types.Universe.Lookup(name)
		}
	}
	tn, ok := obj.(*types.TypeName)
	if !ok {
		return nil, genError(proxy.NotAnInterface, name, "", "no such type visible from "+pkg.Path())
	}
	it, ok := tn.Type().Underlying().(*types.Interface)
	if !ok {
		return nil, genError(proxy.NotAnInterface, name, "", "additional interfaces must be interface types")
	}
	if !it.IsMethodSet() {
		return nil, genError(proxy.NotAnInterface, name, "", "type-set constraints cannot be implemented")
	}
	if n, ok := tn.Type().(*types.Named); ok && n.TypeParams().Len() > 0 {
		return nil, genError(proxy.NotAnInterface, name, "", "generic interfaces need type arguments")
	}
	return tn.Type(), nil
}

// forward adds a member for every method of the requested interfaces that
// neither the target nor an earlier interface provides. Interfaces whose
// methods are all provided, including those *T satisfies outright, join
// Implemented instead; the others join Interfaces.
func forward(pkg *types.Package, t *Target, requested []types.Type) error {
	ptr := types.NewPointer(t.Instance)
	provided := make(map[string]*types.Signature)
	mset := types.NewMethodSet(ptr)
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		if sel.Obj().Exported() {
			provided[sel.Obj().Name()] = sel.Type().(*types.Signature)
		}
	}

	byName := make(map[string]*Method)
	next := len(t.Methods)
	for _, it := range requested {
		iface := it.Underlying().(*types.Interface)
		if types.Implements(ptr, iface) {
			t.Implemented = append(t.Implemented, it)
			continue
		}
		var fresh []*types.Func
		for j := 0; j < iface.NumMethods(); j++ {
			fn := iface.Method(j)
			sig := fn.Type().(*types.Signature)
			label := types.TypeString(it, nil)
			if !fn.Exported() {
				return genError(proxy.UnsupportedMember, label, fn.Name(),
					"unexported interface methods can only be implemented inside "+fn.Pkg().Path())
			}
			if ps, ok := provided[fn.Name()]; ok {
				if !types.Identical(ps, sig) {
					return genError(proxy.MemberCollision, label, fn.Name(),
						fmt.Sprintf("target declares %s, interface requires %s", ps, sig))
				}
				continue
			}
			if prev, ok := byName[fn.Name()]; ok {
				if !types.Identical(prev.Sig, sig) {
					return genError(proxy.MemberCollision, label, fn.Name(),
						fmt.Sprintf("%s already forwards %s", prev.Declaring, prev.Sig))
				}
				continue
			}
			if f := foreignUnexported(sig, pkg); f != nil {
				return genError(proxy.UnsupportedMember, label, fn.Name(),
					fmt.Sprintf("signature uses %s, which cannot be named outside %s", f.Obj().Name(), f.Obj().Pkg().Path()))
			}
			fresh = append(fresh, fn)
		}
		if len(fresh) == 0 {
			t.Implemented = append(t.Implemented, it)
			continue
		}
		t.Interfaces = append(t.Interfaces, it)
		sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Name() < fresh[j].Name() })
		for _, fn := range fresh {
			m := &Method{
				Index:     next,
				Name:      fn.Name(),
				Kind:      member.Forwarded,
				Declaring: it,
				Sig:       fn.Type().(*types.Signature),
			}
			next++
			byName[m.Name] = m
			t.Forwarded = append(t.Forwarded, m)
		}
	}
	return nil
}
