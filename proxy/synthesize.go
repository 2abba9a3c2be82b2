// Package proxy synthesizes interception proxies for Go types.
//
// Go cannot derive new types at run time, so a proxy is a descriptor plus a
// dynamic-dispatch Instance: every exported method of the target is reachable
// through Invoke, Call, Func and Bind, and every call runs through the
// instance's pipeline before reaching the target. The interpose generator
// emits typed wrappers on top of the same descriptors when static
// substitutability is needed.
//
//	d, err := proxy.Synthesize(reflect.TypeOf(&Cart{}), reflect.TypeFor[Auditable]())
//	inst, err := proxy.Instantiate(d, "alice")
//	err = inst.Handle("Checkout", handlers.Retry(1, 3, 0, nil))
//	out := inst.Invoke("Checkout", ctx, "sku-1")
package proxy

import (
	"fmt"
	"go/token"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/interpose/member"
)

// The synthesis cache starts empty and only grows. singleflight keeps at
// most one synthesis per key in flight; LoadOrStore makes the first
// published descriptor the one every caller sees.
var (
	cache    sync.Map // key -> *Descriptor
	inflight singleflight.Group

	typeIDs  sync.Map // reflect.Type -> uint64
	nextType atomic.Uint64
)

// Synthesize returns the proxy descriptor for target extended with the
// given additional interfaces. Repeated calls with an equivalent key return
// the same *Descriptor.
func Synthesize(target reflect.Type, interfaces ...reflect.Type) (*Descriptor, error) {
	base, err := normalizeTarget(target)
	if err != nil {
		return nil, err
	}
	requested, err := canonicalInterfaces(base, interfaces)
	if err != nil {
		return nil, err
	}
	key := cacheKey(base, requested)

	if d, ok := cache.Load(key); ok {
		return d.(*Descriptor), nil
	}
	v, err, _ := inflight.Do(key, func() (any, error) {
		if d, ok := cache.Load(key); ok {
			return d, nil
		}
		d, err := synthesize(base, requested)
		if err != nil {
			return nil, err
		}
		d.key = key
		actual, _ := cache.LoadOrStore(key, d)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Descriptor), nil
}

// MustSynthesize is Synthesize that panics on error. Generated code calls it
// from package-level variable initializers.
func MustSynthesize(target reflect.Type, interfaces ...reflect.Type) *Descriptor {
	d, err := Synthesize(target, interfaces...)
	if err != nil {
		panic(err)
	}
	return d
}

// SynthesizeFor is Synthesize for the type parameter T.
func SynthesizeFor[T any](interfaces ...reflect.Type) (*Descriptor, error) {
	return Synthesize(reflect.TypeFor[T](), interfaces...)
}

func normalizeTarget(t reflect.Type) (reflect.Type, error) {
	if t == nil {
		return nil, configError(InvalidTarget, nil, "", "nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Interface {
		return nil, configError(InvalidTarget, t, "", "interfaces have no implementation to intercept")
	}
	if t.Name() == "" {
		return nil, configError(InvalidTarget, t, "", "target must be a named type")
	}
	return t, nil
}

// canonicalInterfaces validates the requested interfaces, drops duplicates
// and sorts the rest.
func canonicalInterfaces(base reflect.Type, interfaces []reflect.Type) ([]reflect.Type, error) {
	seen := make(map[reflect.Type]bool, len(interfaces))
	var out []reflect.Type
	for _, it := range interfaces {
		if it == nil {
			return nil, configError(NotAnInterface, base, "", "nil additional interface")
		}
		if it.Kind() != reflect.Interface {
			return nil, configError(NotAnInterface, it, "", "additional interfaces must be interface types")
		}
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return typeOrder(out[i]) < typeOrder(out[j])
	})
	return out, nil
}

func typeOrder(t reflect.Type) string {
	return t.PkgPath() + "." + t.String()
}

func typeID(t reflect.Type) uint64 {
	if id, ok := typeIDs.Load(t); ok {
		return id.(uint64)
	}
	id, _ := typeIDs.LoadOrStore(t, nextType.Add(1))
	return id.(uint64)
}

// cacheKey identifies types by interned IDs rather than names: two types
// declared in different function scopes share a name but not an identity.
func cacheKey(base reflect.Type, interfaces []reflect.Type) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(typeID(base), 10))
	for _, it := range interfaces {
		b.WriteByte('|')
		b.WriteString(strconv.FormatUint(typeID(it), 10))
	}
	return b.String()
}

func synthesize(base reflect.Type, interfaces []reflect.Type) (*Descriptor, error) {
	a, err := member.Analyze(base)
	if err != nil {
		return nil, &ConfigurationError{Kind: InvalidTarget, Type: base, Err: err}
	}

	for _, m := range a.Methods {
		if t := foreignUnexported(m.Func, base.PkgPath()); t != nil {
			return nil, configError(UnsupportedMember, base, m.Name,
				fmt.Sprintf("signature uses %s, which cannot be named outside %s", t, t.PkgPath()))
		}
	}

	if len(a.Constructors) == 0 {
		return nil, configError(NoAccessibleConstructor, base, "",
			"every declared constructor is unexported")
	}

	fw, err := forward(a, interfaces)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Target:        base,
		Pointer:       a.Pointer,
		Interfaces:    fw.extended,
		Implemented:   fw.implemented,
		Constructors:  a.Constructors,
		forwardedFrom: len(a.Methods),
		byName:        make(map[string]*member.Descriptor),
	}
	d.Members = append(d.Members, a.Methods...)
	d.Members = append(d.Members, fw.members...)
	for i, m := range d.Members {
		if m.Index != i {
			return nil, configError(MemberCollision, base, m.Name,
				fmt.Sprintf("index %d assigned at position %d", m.Index, i))
		}
		if _, dup := d.byName[m.Name]; dup {
			return nil, configError(MemberCollision, base, m.Name, "duplicate member name")
		}
		d.byName[m.Name] = m
	}
	return d, nil
}

// foreignUnexported returns the first unexported named type inside t that is
// declared outside pkg, or nil. An override living in another package could
// not spell such a type.
func foreignUnexported(t reflect.Type, pkg string) reflect.Type {
	return walkForeign(t, pkg, make(map[reflect.Type]bool))
}

func walkForeign(t reflect.Type, pkg string, seen map[reflect.Type]bool) reflect.Type {
	if t == nil || seen[t] {
		return nil
	}
	seen[t] = true
	if name := t.Name(); name != "" {
		if i := strings.Index(name, "["); i >= 0 {
			name = name[:i]
		}
		if t.PkgPath() != "" && t.PkgPath() != pkg && !token.IsExported(name) {
			return t
		}
		return nil
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Chan:
		return walkForeign(t.Elem(), pkg, seen)
	case reflect.Map:
		if f := walkForeign(t.Key(), pkg, seen); f != nil {
			return f
		}
		return walkForeign(t.Elem(), pkg, seen)
	case reflect.Func:
		for i := 0; i < t.NumIn(); i++ {
			if f := walkForeign(t.In(i), pkg, seen); f != nil {
				return f
			}
		}
		for i := 0; i < t.NumOut(); i++ {
			if f := walkForeign(t.Out(i), pkg, seen); f != nil {
				return f
			}
		}
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if f := walkForeign(t.Field(i).Type, pkg, seen); f != nil {
				return f
			}
		}
	}
	return nil
}
