package typeparams

import "go/types"

// Map rewrites t so every mapped type parameter is replaced by its
// declared counterpart. Types that mention no mapped parameter are returned
// unchanged.
func (m *Mapper) Map(t types.Type) types.Type {
	if len(m.subst) == 0 || t == nil {
		return t
	}
	switch t := t.(type) {
	case *types.TypeParam:
		if r, ok := m.subst[t]; ok {
			return r
		}
		return t

	case *types.Alias:
		if r := m.Map(types.Unalias(t)); r != types.Unalias(t) {
			return r
		}
		return t

	case *types.Pointer:
		if e := m.Map(t.Elem()); e != t.Elem() {
			return types.NewPointer(e)
		}
		return t

	case *types.Slice:
		if e := m.Map(t.Elem()); e != t.Elem() {
			return types.NewSlice(e)
		}
		return t

	case *types.Array:
		if e := m.Map(t.Elem()); e != t.Elem() {
			return types.NewArray(e, t.Len())
		}
		return t

	case *types.Map:
		k, v := m.Map(t.Key()), m.Map(t.Elem())
		if k != t.Key() || v != t.Elem() {
			return types.NewMap(k, v)
		}
		return t

	case *types.Chan:
		if e := m.Map(t.Elem()); e != t.Elem() {
			return types.NewChan(t.Dir(), e)
		}
		return t

	case *types.Tuple:
		if r, changed := m.tuple(t); changed {
			return r
		}
		return t

	case *types.Signature:
		params, pc := m.tuple(t.Params())
		results, rc := m.tuple(t.Results())
		if !pc && !rc {
			return t
		}
		return types.NewSignatureType(nil, nil, nil, params, results, t.Variadic())

	case *types.Named:
		args := t.TypeArgs()
		if args.Len() == 0 {
			return t
		}
		mapped := make([]types.Type, args.Len())
		changed := false
		for i := 0; i < args.Len(); i++ {
			mapped[i] = m.Map(args.At(i))
			changed = changed || mapped[i] != args.At(i)
		}
		if !changed {
			return t
		}
		r, err := types.Instantiate(nil, t.Origin(), mapped, false)
		if err != nil {
			return t
		}
		return r

	case *types.Struct:
		fields := make([]*types.Var, t.NumFields())
		tags := make([]string, t.NumFields())
		changed := false
		for i := 0; i < t.NumFields(); i++ {
			f := t.Field(i)
			ft := m.Map(f.Type())
			changed = changed || ft != f.Type()
			fields[i] = types.NewField(f.Pos(), f.Pkg(), f.Name(), ft, f.Embedded())
			tags[i] = t.Tag(i)
		}
		if !changed {
			return t
		}
		return types.NewStruct(fields, tags)

	case *types.Interface:
		return m.iface(t)

	case *types.Union:
		terms := make([]*types.Term, t.Len())
		changed := false
		for i := 0; i < t.Len(); i++ {
			term := t.Term(i)
			tt := m.Map(term.Type())
			changed = changed || tt != term.Type()
			terms[i] = types.NewTerm(term.Tilde(), tt)
		}
		if !changed {
			return t
		}
		return types.NewUnion(terms)
	}
	return t
}

func (m *Mapper) tuple(t *types.Tuple) (*types.Tuple, bool) {
	if t == nil || t.Len() == 0 {
		return t, false
	}
	vars := make([]*types.Var, t.Len())
	changed := false
	for i := 0; i < t.Len(); i++ {
		v := t.At(i)
		vt := m.Map(v.Type())
		changed = changed || vt != v.Type()
		vars[i] = types.NewParam(v.Pos(), v.Pkg(), v.Name(), vt)
	}
	return types.NewTuple(vars...), changed
}

func (m *Mapper) iface(t *types.Interface) types.Type {
	changed := false
	methods := make([]*types.Func, t.NumExplicitMethods())
	for i := range methods {
		fn := t.ExplicitMethod(i)
		sig := m.Map(fn.Type())
		changed = changed || sig != fn.Type()
		methods[i] = types.NewFunc(fn.Pos(), fn.Pkg(), fn.Name(), sig.(*types.Signature))
	}
	embeddeds := make([]types.Type, t.NumEmbeddeds())
	for i := range embeddeds {
		e := t.EmbeddedType(i)
		embeddeds[i] = m.Map(e)
		changed = changed || embeddeds[i] != e
	}
	if !changed {
		return t
	}
	return types.NewInterfaceType(methods, embeddeds).Complete()
}
