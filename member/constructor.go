package member

import (
	"errors"
	"fmt"
	"go/token"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidConstructor is returned when a registered function cannot act as
// a constructor.
var ErrInvalidConstructor = errors.New("member: invalid constructor")

// Constructor is a function that builds a target value. Go has no
// constructors of its own, so they are registered explicitly; a type with no
// registered constructor gets the implicit zero-value constructor.
type Constructor struct {
	Name         string
	Func         reflect.Value
	Params       []reflect.Type
	Variadic     bool
	ReturnsError bool
	Pointer      bool // returns *T rather than T
	Zero         bool
	Exported     bool
}

// Signature renders the constructor's parameter list.
func (c *Constructor) Signature() string {
	if c.Zero {
		return "func()"
	}
	return c.Func.Type().String()
}

// Call runs the constructor and returns a pointer to the built value.
func (c *Constructor) Call(target reflect.Type, args []reflect.Value) (reflect.Value, error) {
	if c.Zero {
		return reflect.New(target), nil
	}
	var out []reflect.Value
	if c.Variadic {
		out = c.Func.CallSlice(args)
	} else {
		out = c.Func.Call(args)
	}
	if c.ReturnsError {
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			return reflect.Value{}, err
		}
	}
	v := out[0]
	if c.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("constructor %s returned nil", c.Name)
		}
		return v, nil
	}
	p := reflect.New(target)
	p.Elem().Set(v)
	return p, nil
}

var registry = struct {
	sync.RWMutex
	ctors map[reflect.Type][]*Constructor
}{ctors: make(map[reflect.Type][]*Constructor)}

// RegisterConstructor records fn as a constructor of the type it returns.
// fn must return T or *T, optionally followed by an error. Registration after
// a proxy for T has been synthesized does not affect the cached descriptor.
func RegisterConstructor(fn any) error {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("%w: %T is not a function", ErrInvalidConstructor, fn)
	}
	ft := v.Type()
	if ft.NumOut() == 0 || ft.NumOut() > 2 {
		return fmt.Errorf("%w: %s must return T or (T, error)", ErrInvalidConstructor, ft)
	}
	if ft.NumOut() == 2 && ft.Out(1) != errorType {
		return fmt.Errorf("%w: %s second result must be error", ErrInvalidConstructor, ft)
	}

	out := ft.Out(0)
	pointer := false
	if out.Kind() == reflect.Pointer {
		out = out.Elem()
		pointer = true
	}
	if out.Name() == "" || out.Kind() == reflect.Interface {
		return fmt.Errorf("%w: %s does not build a named concrete type", ErrInvalidConstructor, ft)
	}

	name, exported := funcName(v)
	c := &Constructor{
		Name:         name,
		Func:         v,
		Variadic:     ft.IsVariadic(),
		ReturnsError: ft.NumOut() == 2,
		Pointer:      pointer,
		Exported:     exported,
	}
	for i := 0; i < ft.NumIn(); i++ {
		c.Params = append(c.Params, ft.In(i))
	}

	registry.Lock()
	defer registry.Unlock()
	for _, existing := range registry.ctors[out] {
		if existing.Func.Pointer() == v.Pointer() {
			return nil
		}
	}
	registry.ctors[out] = append(registry.ctors[out], c)
	return nil
}

// MustRegisterConstructor is RegisterConstructor that panics on error,
// meant for package init functions.
func MustRegisterConstructor(fn any) {
	if err := RegisterConstructor(fn); err != nil {
		panic(err)
	}
}

// Constructors returns the eligible constructors of t in canonical order:
// exported registered constructors sorted by name and signature, or the
// zero-value constructor when none are declared at all. Unexported
// constructors are dropped without error.
func Constructors(t reflect.Type) []*Constructor {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	registry.RLock()
	declared := append([]*Constructor(nil), registry.ctors[t]...)
	registry.RUnlock()

	if len(declared) == 0 {
		return []*Constructor{{Name: "zero", Zero: true, Pointer: true, Exported: true}}
	}

	var out []*Constructor
	for _, c := range declared {
		if c.Exported {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Signature() < out[j].Signature()
	})
	return out
}

// funcName resolves the symbol name of fn and whether it is accessible from
// other packages. Function literals are reachable only through a value, so
// they count as exported.
func funcName(v reflect.Value) (string, bool) {
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "func", true
	}
	full := rf.Name()
	short := full
	if i := strings.LastIndex(short, "/"); i >= 0 {
		short = short[i+1:]
	}
	if i := strings.Index(short, "."); i >= 0 {
		short = short[i+1:]
	}
	if i := strings.Index(short, "["); i >= 0 {
		short = short[:i]
	}
	if strings.Contains(short, ".") {
		return short, true
	}
	return short, token.IsExported(short)
}
