package proxy

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ppiankov/interpose/member"
	"github.com/ppiankov/interpose/pipeline"
)

// Instance is one proxy object: a target value, the descriptor it was built
// from, and its own pipeline. With no handlers attached it behaves exactly
// like the target.
type Instance struct {
	desc     *Descriptor
	pipeline *pipeline.Pipeline
	target   reflect.Value // *T
	methods  []reflect.Value
	typeArgs []reflect.Type
}

// Option configures an Instance at creation time.
type Option func(*Instance)

// WithTypeArgs records the type arguments of a generic target; they are
// copied into every invocation.
func WithTypeArgs(types ...reflect.Type) Option {
	return func(i *Instance) { i.typeArgs = append([]reflect.Type(nil), types...) }
}

// WithPipeline shares an existing pipeline instead of creating a new one.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(i *Instance) {
		if p != nil {
			i.pipeline = p
		}
	}
}

// Prepare allocates an instance and its empty pipeline without a target.
// Init must be called before the instance is used; generated constructors
// call Prepare, then the base constructor, then Init.
func Prepare(d *Descriptor, opts ...Option) *Instance {
	i := &Instance{desc: d, pipeline: pipeline.New()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Init binds the target value. target must be a non-nil *T.
func (i *Instance) Init(target any) error {
	if i.target.IsValid() {
		return fmt.Errorf("proxy: instance of %s already initialized", i.desc.Target)
	}
	v := reflect.ValueOf(target)
	if !v.IsValid() || v.Type() != i.desc.Pointer {
		return fmt.Errorf("proxy: target must be %s, got %T", i.desc.Pointer, target)
	}
	if v.IsNil() {
		return fmt.Errorf("proxy: nil %s target", i.desc.Pointer)
	}
	i.bind(v)
	return nil
}

func (i *Instance) bind(v reflect.Value) {
	i.target = v
	i.methods = make([]reflect.Value, len(i.desc.TargetMembers()))
	for _, m := range i.desc.TargetMembers() {
		i.methods[m.Index] = v.MethodByName(m.Name)
	}
}

// Attach builds an instance around an existing target value.
func Attach(d *Descriptor, target any, opts ...Option) (*Instance, error) {
	inst := Prepare(d, opts...)
	if err := inst.Init(target); err != nil {
		return nil, err
	}
	return inst, nil
}

// Instantiate builds the target with the first eligible constructor whose
// parameters accept args and returns the proxy instance around it. The
// pipeline exists before the constructor runs. Use InstantiateWith to pass
// options.
func Instantiate(d *Descriptor, args ...any) (*Instance, error) {
	return InstantiateWith(d, nil, args...)
}

// InstantiateWith is Instantiate with instance options. The options are
// applied before the constructor runs, so a shared pipeline already holds
// its handlers while the target is built.
func InstantiateWith(d *Descriptor, opts []Option, args ...any) (*Instance, error) {
	inst := Prepare(d, opts...)
	for _, c := range d.Constructors {
		in, ok := bindArgs(c.Params, c.Variadic, args)
		if !ok {
			continue
		}
		v, err := c.Call(d.Target, in)
		if err != nil {
			return nil, fmt.Errorf("proxy: construct %s with %s: %w", d.Target, c.Name, err)
		}
		inst.bind(v)
		return inst, nil
	}
	return nil, fmt.Errorf("proxy: no constructor of %s accepts %d argument(s)", d.Target, len(args))
}

// Descriptor returns the proxy type the instance was built from.
func (i *Instance) Descriptor() *Descriptor {
	return i.desc
}

// Pipeline returns the instance's handler pipeline.
func (i *Instance) Pipeline() *pipeline.Pipeline {
	return i.pipeline
}

// Target returns the wrapped *T, or nil before Init.
func (i *Instance) Target() any {
	if !i.target.IsValid() {
		return nil
	}
	return i.target.Interface()
}

// Handle replaces the handler chain of the named member.
func (i *Instance) Handle(name string, handlers ...pipeline.Handler) error {
	m, ok := i.desc.Member(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownMember, i.desc.Target, name)
	}
	i.pipeline.Set(m.Index, handlers)
	return nil
}

// AttachHandlers replaces the handler chain of every member in lists.
// Members not in lists keep their chains. Every member must belong to the
// instance's descriptor.
func AttachHandlers(inst *Instance, lists map[*member.Descriptor][]pipeline.Handler) error {
	for m := range lists {
		if !inst.desc.owns(m) {
			return fmt.Errorf("%w: %v does not belong to %s", ErrUnknownMember, m, inst.desc)
		}
	}
	for m, handlers := range lists {
		inst.pipeline.Set(m.Index, handlers)
	}
	return nil
}

// Dispatch runs one call of m through the pipeline. A nil terminal selects
// the default: the target's own method for target members, the
// not-implemented fault for forwarded members. Generated overrides pass a
// typed terminal instead.
func (i *Instance) Dispatch(m *member.Descriptor, args []any, terminal pipeline.Next) pipeline.Outcome {
	if terminal == nil {
		terminal = i.terminal(m)
	}
	inv := pipeline.NewInvocation(i.Target(), m, args)
	inv.TypeArgs = i.typeArgs
	return i.pipeline.Invoke(inv, terminal)
}

// Invoke calls the named member with args. Arguments mirror the member's
// parameters; trailing arguments of a variadic member may be passed either
// spread or as a single slice.
func (i *Instance) Invoke(name string, args ...any) pipeline.Outcome {
	m, ok := i.desc.Member(name)
	if !ok {
		return pipeline.Fault(fmt.Errorf("%w: %s.%s", ErrUnknownMember, i.desc.Target, name))
	}
	in, ok := bindArgs(paramTypes(m), m.Variadic, args)
	if !ok {
		return pipeline.Fault(fmt.Errorf("proxy: arguments do not match %s", m))
	}
	return i.Dispatch(m, valuesToArgs(in), nil)
}

// Call is Invoke returning the results and the fault as an error.
func (i *Instance) Call(name string, args ...any) ([]any, error) {
	out := i.Invoke(name, args...)
	return out.Results, out.Err
}

// Func binds the named member to a typed function. fptr must point to a
// func variable whose type matches the member's signature exactly:
//
//	var checkout func(context.Context, string) (Receipt, error)
//	err := inst.Func("Checkout", &checkout)
//
// Faults are returned through a trailing error result; members without one
// re-raise the fault as a panic.
func (i *Instance) Func(name string, fptr any) error {
	m, ok := i.desc.Member(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownMember, i.desc.Target, name)
	}
	pv := reflect.ValueOf(fptr)
	if !pv.IsValid() || pv.Kind() != reflect.Pointer || pv.Elem().Kind() != reflect.Func {
		return fmt.Errorf("proxy: Func needs a pointer to a func variable, got %T", fptr)
	}
	if pv.Elem().Type() != m.Func {
		return fmt.Errorf("proxy: %s has signature %s, not %s", name, m.Func, pv.Elem().Type())
	}
	pv.Elem().Set(i.makeFunc(m))
	return nil
}

// Bind fills every exported func field of the struct pointed to by sptr with
// the member of the same name. Fields tagged intercept:"-" are skipped.
// This lets a proxy stand in wherever a struct of functions is expected.
func (i *Instance) Bind(sptr any) error {
	pv := reflect.ValueOf(sptr)
	if !pv.IsValid() || pv.Kind() != reflect.Pointer || pv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("proxy: Bind needs a pointer to a struct, got %T", sptr)
	}
	sv := pv.Elem()
	st := sv.Type()
	var errs []error
	for f := 0; f < st.NumField(); f++ {
		field := st.Field(f)
		if !field.IsExported() || field.Type.Kind() != reflect.Func {
			continue
		}
		if field.Tag.Get(member.MarkerTag) == "-" {
			continue
		}
		m, ok := i.desc.Member(field.Name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUnknownMember, i.desc.Target, field.Name))
			continue
		}
		if field.Type != m.Func {
			errs = append(errs, fmt.Errorf("proxy: field %s is %s, member is %s", field.Name, field.Type, m.Func))
			continue
		}
		sv.Field(f).Set(i.makeFunc(m))
	}
	return errors.Join(errs...)
}

func (i *Instance) makeFunc(m *member.Descriptor) reflect.Value {
	return reflect.MakeFunc(m.Func, func(in []reflect.Value) []reflect.Value {
		return i.raise(m, i.Dispatch(m, valuesToArgs(in), nil))
	})
}

// terminal returns the default end of the chain for m.
func (i *Instance) terminal(m *member.Descriptor) pipeline.Next {
	if m.Kind == member.Forwarded {
		return pipeline.Unimplemented
	}
	return func(inv *pipeline.Invocation) pipeline.Outcome {
		fn := i.methods[m.Index]
		in, ok := bindArgs(paramTypes(m), m.Variadic, inv.Args)
		if !ok {
			return pipeline.Fault(ArgumentMismatch(m))
		}
		var out []reflect.Value
		if m.Variadic {
			out = fn.CallSlice(in)
		} else {
			out = fn.Call(in)
		}
		return outcomeOf(m, out)
	}
}

// Raise re-panics the fault of a member that has no error result, with the
// original panic value when the target panicked. A nil err does nothing.
func Raise(err error) {
	if err == nil {
		return
	}
	RaisePanic(err)
	panic(err)
}

// RaisePanic re-panics with the original value when err is a panic captured
// from the target. Other faults are left to the caller, which returns them
// through the member's error result.
func RaisePanic(err error) {
	var pe *pipeline.PanicError
	if errors.As(err, &pe) {
		panic(pe.Value)
	}
}

// ArgumentMismatch is the fault of a terminal step whose arguments were
// rewritten by a handler into values the member cannot accept.
func ArgumentMismatch(m *member.Descriptor) error {
	return fmt.Errorf("proxy: handler left arguments that do not match %s", m)
}

// MustResult returns result i of out as T. A missing or nil result is the
// zero value of T; a value of another type panics, naming the member.
func MustResult[T any](out pipeline.Outcome, name string, i int) T {
	var zero T
	if i >= len(out.Results) || out.Results[i] == nil {
		return zero
	}
	v, ok := out.Results[i].(T)
	if !ok {
		panic(resultMismatch(name, i, out.Results[i], reflect.TypeFor[T]()))
	}
	return v
}

func resultMismatch(name string, i int, v any, t reflect.Type) string {
	return fmt.Sprintf("proxy: %s result %d: %T is not assignable to %s", name, i, v, t)
}

// raise converts an outcome back into the member's return values. A fault
// goes into the trailing error result; without one it is re-panicked. A
// panic of the target is raised again with its original value either way.
func (i *Instance) raise(m *member.Descriptor, out pipeline.Outcome) []reflect.Value {
	if m.ReturnsError {
		RaisePanic(out.Err)
	} else {
		Raise(out.Err)
	}
	results := make([]reflect.Value, len(m.Results))
	values := m.ValueResults()
	for k, t := range values {
		var v any
		if k < len(out.Results) {
			v = out.Results[k]
		}
		if v == nil {
			results[k] = reflect.Zero(t)
			continue
		}
		rv, ok := toValue(t, v)
		if !ok {
			panic(resultMismatch(m.Name, k, v, t))
		}
		results[k] = rv
	}
	if m.ReturnsError {
		errv := reflect.New(m.Results[len(m.Results)-1]).Elem()
		if out.Err != nil {
			errv.Set(reflect.ValueOf(out.Err))
		}
		results[len(results)-1] = errv
	}
	return results
}

func outcomeOf(m *member.Descriptor, out []reflect.Value) pipeline.Outcome {
	n := len(out)
	var err error
	if m.ReturnsError {
		n--
		if e, ok := out[n].Interface().(error); ok {
			err = e
		}
	}
	results := make([]any, n)
	for k := 0; k < n; k++ {
		results[k] = out[k].Interface()
	}
	return pipeline.Outcome{Results: results, Err: err}
}

func paramTypes(m *member.Descriptor) []reflect.Type {
	out := make([]reflect.Type, len(m.Params))
	for k, p := range m.Params {
		out[k] = p.Type
	}
	return out
}

// bindArgs converts args to call values for params. For variadic params
// the result always ends with the slice, ready for CallSlice.
func bindArgs(params []reflect.Type, variadic bool, args []any) ([]reflect.Value, bool) {
	if !variadic {
		if len(args) != len(params) {
			return nil, false
		}
		return convertAll(params, args)
	}

	fixed := len(params) - 1
	if len(args) < fixed {
		return nil, false
	}
	in, ok := convertAll(params[:fixed], args[:fixed])
	if !ok {
		return nil, false
	}
	sliceType := params[fixed]
	rest := args[fixed:]
	if len(rest) == 1 {
		if v, ok := toValue(sliceType, rest[0]); ok {
			return append(in, v), true
		}
	}
	slice := reflect.MakeSlice(sliceType, len(rest), len(rest))
	for k, a := range rest {
		v, ok := toValue(sliceType.Elem(), a)
		if !ok {
			return nil, false
		}
		slice.Index(k).Set(v)
	}
	return append(in, slice), true
}

func convertAll(params []reflect.Type, args []any) ([]reflect.Value, bool) {
	in := make([]reflect.Value, len(params))
	for k, t := range params {
		v, ok := toValue(t, args[k])
		if !ok {
			return nil, false
		}
		in[k] = v
	}
	return in, true
}

// toValue converts a dynamic value to t. nil becomes the zero value of
// nillable types; anything else must be assignable.
func toValue(t reflect.Type, a any) (reflect.Value, bool) {
	if a == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), true
		}
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(a)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, false
	}
	if v.Type() != t {
		nv := reflect.New(t).Elem()
		nv.Set(v)
		return nv, true
	}
	return v, true
}

func valuesToArgs(in []reflect.Value) []any {
	args := make([]any, len(in))
	for k, v := range in {
		args[k] = v.Interface()
	}
	return args
}
