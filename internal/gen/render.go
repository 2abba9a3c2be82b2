package gen

import (
	"bytes"
	"fmt"
	"go/types"
	"strings"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/ppiankov/interpose/member"
)

// Options controls rendering.
type Options struct {
	// Filename is handed to the formatter for diagnostics.
	Filename string
	// Command is recorded in the generated header.
	Command string
}

type fileView struct {
	Command  string
	BuildTag string
	Package  string
	Imports  []importView
	Targets  []*targetView
}

type importView struct {
	Name string
	Path string
}

type targetView struct {
	Name          string
	Proxy         string
	TypeParams    string
	TypeArgs      string
	Generic       bool
	DescFunc      string
	DescCall      string
	Options       string
	TypeArgValues string
	InterfaceArgs string
	Interfaces    []string
	Registers     []string
	Constructors  []ctorView
	Methods       []methodView
}

type ctorView struct {
	Name   string
	Base   string
	Params string
	Build  string
}

type methodView struct {
	Name      string
	Doc       string
	Params    string
	Results   string
	Args      string
	Forwarded bool
	Terminal  string
	Return    string
}

var fileTemplate = template.Must(template.New("proxy").Parse(`// Code generated by {{.Command}}. DO NOT EDIT.

//go:build !{{.BuildTag}}

package {{.Package}}

import (
{{- range .Imports}}
	{{if .Name}}{{.Name}} {{end}}"{{.Path}}"
{{- end}}
)
{{range $t := .Targets}}
{{- if $t.Generic}}
func {{$t.DescFunc}}{{$t.TypeParams}}() (*proxy.Descriptor, error) {
{{- range $t.Registers}}
	member.MustRegisterConstructor({{.}})
{{- end}}
	return proxy.SynthesizeFor[{{$t.Name}}{{$t.TypeArgs}}]({{$t.InterfaceArgs}})
}
{{- else}}
var {{$t.DescFunc}} = sync.OnceValues(func() (*proxy.Descriptor, error) {
{{- range $t.Registers}}
	member.MustRegisterConstructor({{.}})
{{- end}}
	return proxy.SynthesizeFor[{{$t.Name}}]({{$t.InterfaceArgs}})
})
{{- range $t.Interfaces}}

var _ {{.}} = (*{{$t.Proxy}})(nil)
{{- end}}
{{- end}}

// {{$t.Proxy}} routes every overridable method of {{$t.Name}} through an
// interception pipeline. Handlers are attached through Interception.
type {{$t.Proxy}}{{$t.TypeParams}} struct {
	*{{$t.Name}}{{$t.TypeArgs}}
	interception *proxy.Instance
}
{{range $c := $t.Constructors}}
// {{$c.Name}} builds the target with {{$c.Base}} and wraps it.
func {{$c.Name}}{{$t.TypeParams}}({{$c.Params}}) (*{{$t.Proxy}}{{$t.TypeArgs}}, error) {
	d, err := {{$t.DescCall}}
	if err != nil {
		return nil, err
	}
	inst := proxy.Prepare(d{{$t.Options}})
	{{$c.Build}}
	if err := inst.Init(base); err != nil {
		return nil, err
	}
	return &{{$t.Proxy}}{{$t.TypeArgs}}{ {{- $t.Name}}: base, interception: inst}, nil
}
{{end}}
// {{$t.Proxy}}Of wraps an existing {{$t.Name}}.
func {{$t.Proxy}}Of{{$t.TypeParams}}(base *{{$t.Name}}{{$t.TypeArgs}}, opts ...proxy.Option) (*{{$t.Proxy}}{{$t.TypeArgs}}, error) {
	d, err := {{$t.DescCall}}
	if err != nil {
		return nil, err
	}
	inst, err := proxy.Attach(d, base, {{if $t.Generic}}append([]proxy.Option{proxy.WithTypeArgs({{$t.TypeArgValues}})}, opts...)...{{else}}opts...{{end}})
	if err != nil {
		return nil, err
	}
	return &{{$t.Proxy}}{{$t.TypeArgs}}{ {{- $t.Name}}: base, interception: inst}, nil
}

// Interception returns the proxy instance that owns the pipeline.
func (p *{{$t.Proxy}}{{$t.TypeArgs}}) Interception() *proxy.Instance {
	return p.interception
}
{{range $m := $t.Methods}}
// {{$m.Name}} {{$m.Doc}}
func (p *{{$t.Proxy}}{{$t.TypeArgs}}) {{$m.Name}}({{$m.Params}}){{$m.Results}} {
	out := p.interception.Dispatch(p.interception.Descriptor().MustMember("{{$m.Name}}"), []any{ {{- $m.Args -}} }, {{if $m.Forwarded}}nil{{else}}func(inv *pipeline.Invocation) pipeline.Outcome {
		{{$m.Terminal}}
	}{{end}})
	{{$m.Return}}
}
{{end}}
{{- end}}`))

// Render emits the Go source of every target in m, formatted and with its
// import block reduced to what the code uses.
func Render(m *Model, opts Options) ([]byte, error) {
	if opts.Command == "" {
		opts.Command = "interpose gen"
	}
	if opts.Filename == "" {
		opts.Filename = "interpose_gen.go"
	}
	imps := newImportSet(m.Package)
	fv := &fileView{
		Command:  opts.Command,
		BuildTag: BuildTag,
		Package:  m.Package.Name(),
	}
	for _, t := range m.Targets {
		fv.Targets = append(fv.Targets, viewTarget(t, imps))
	}
	fv.Imports = imps.views()

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, fv); err != nil {
		return nil, fmt.Errorf("gen: executing template: %w", err)
	}
	out, err := imports.Process(opts.Filename, buf.Bytes(), &imports.Options{Comments: true, TabIndent: true, TabWidth: 8})
	if err != nil {
		return nil, fmt.Errorf("gen: formatting %s: %w\n%s", opts.Filename, err, buf.Bytes())
	}
	return out, nil
}

func viewTarget(t *Target, imps *importSet) *targetView {
	q := imps.qualifier
	imps.use("github.com/ppiankov/interpose/proxy")
	v := &targetView{
		Name:       t.Name,
		Proxy:      t.Proxy,
		TypeParams: t.Params.Params(q),
		TypeArgs:   t.Params.Args(),
		Generic:    t.Generic(),
		DescFunc:   lowerFirst(t.Proxy) + "Descriptor",
	}
	if v.Generic {
		v.DescCall = v.DescFunc + v.TypeArgs + "()"
		reflectName := imps.use("reflect")
		args := make([]string, t.Params.Len())
		for i, p := range t.Params.Types() {
			args[i] = fmt.Sprintf("%s.TypeFor[%s]()", reflectName, types.TypeString(p, q))
		}
		v.TypeArgValues = strings.Join(args, ", ")
		v.Options = ", proxy.WithTypeArgs(" + v.TypeArgValues + ")"
	} else {
		imps.use("sync")
		v.DescCall = v.DescFunc + "()"
	}

	var ifaceArgs []string
	for _, it := range t.Requested {
		name := types.TypeString(it, q)
		v.Interfaces = append(v.Interfaces, name)
		ifaceArgs = append(ifaceArgs, fmt.Sprintf("%s.TypeFor[%s]()", imps.use("reflect"), name))
	}
	v.InterfaceArgs = strings.Join(ifaceArgs, ", ")

	for _, c := range t.Constructors {
		v.Constructors = append(v.Constructors, viewConstructor(t, c, q))
		if !c.Zero() {
			imps.use("github.com/ppiankov/interpose/member")
			v.Registers = append(v.Registers, c.Name+v.TypeArgs)
		}
	}
	for _, m := range t.Members() {
		v.Methods = append(v.Methods, viewMethod(t, m, imps))
	}
	return v
}

func viewConstructor(t *Target, c *Constructor, q types.Qualifier) ctorView {
	targetType := t.Name + t.Params.Args()
	if c.Zero() {
		return ctorView{
			Name:  "New" + t.Proxy,
			Base:  "the zero value of " + t.Name,
			Build: "base := new(" + targetType + ")",
		}
	}
	name := c.Name + t.Proxy
	if strings.Contains(c.Name, t.Name) {
		name = strings.Replace(c.Name, t.Name, t.Proxy, 1)
	}
	params, args := paramList(c.Sig, q)
	call := c.Name + t.Params.Args() + "(" + args + ")"

	var b strings.Builder
	dst := "base"
	if !c.Pointer {
		dst = "v"
	}
	if c.ReturnsError {
		fmt.Fprintf(&b, "%s, err := %s\n\tif err != nil {\n\t\treturn nil, err\n\t}", dst, call)
	} else {
		fmt.Fprintf(&b, "%s := %s", dst, call)
	}
	if !c.Pointer {
		b.WriteString("\n\tbase := &v")
	}
	return ctorView{Name: name, Base: c.Name, Params: params, Build: b.String()}
}

func viewMethod(t *Target, m *Method, imps *importSet) methodView {
	q := imps.qualifier
	params, _ := paramList(m.Sig, q)
	v := methodView{
		Name:      m.Name,
		Params:    params,
		Forwarded: m.Kind == member.Forwarded,
	}
	if m.Sig.Params().Len() > 0 {
		names := make([]string, m.Sig.Params().Len())
		for i := range names {
			names[i] = fmt.Sprintf("a%d", i)
		}
		v.Args = strings.Join(names, ", ")
	}

	switch m.Kind {
	case member.Forwarded:
		v.Doc = fmt.Sprintf("implements %s. Without a handler that answers it, the call fails with pipeline.ErrNotImplemented.",
			types.TypeString(m.Declaring, q))
	case member.Getter:
		v.Doc = fmt.Sprintf("intercepts the getter of %s.%s.", t.Name, m.Property)
	case member.Setter:
		v.Doc = fmt.Sprintf("intercepts the setter of %s.%s.", t.Name, m.Property)
	default:
		v.Doc = fmt.Sprintf("intercepts %s.%s.", t.Name, m.Name)
	}

	res := m.Sig.Results()
	errResult := m.ReturnsError()
	nvals := res.Len()
	if errResult {
		nvals--
	}
	valueTypes := make([]string, nvals)
	for i := range valueTypes {
		valueTypes[i] = types.TypeString(res.At(i).Type(), q)
	}
	switch {
	case res.Len() == 1:
		v.Results = " " + types.TypeString(res.At(0).Type(), q)
	case res.Len() > 1:
		all := append([]string(nil), valueTypes...)
		if errResult {
			all = append(all, "error")
		}
		v.Results = " (" + strings.Join(all, ", ") + ")"
	}

	pipelineName := imps.use("github.com/ppiankov/interpose/pipeline")
	proxyName := imps.use("github.com/ppiankov/interpose/proxy")
	if !v.Forwarded {
		v.Terminal = terminalBody(t, m, pipelineName, proxyName, q, nvals, errResult)
	}

	results := make([]string, nvals)
	for i, typ := range valueTypes {
		results[i] = fmt.Sprintf("%s.MustResult[%s](out, %q, %d)", proxyName, typ, m.Name, i)
	}
	switch {
	case errResult:
		v.Return = proxyName + ".RaisePanic(out.Err)\n\treturn " + strings.Join(append(results, "out.Err"), ", ")
	case nvals == 0:
		v.Return = proxyName + ".Raise(out.Err)"
	default:
		v.Return = proxyName + ".Raise(out.Err)\n\treturn " + strings.Join(results, ", ")
	}
	return v
}

// terminalBody checks the invocation's current arguments against the
// method's parameters, calls the embedded target with them and packs its
// results into an outcome. Arguments a handler rewrote into values of the
// wrong type fault the call instead of reaching the target as zero values.
func terminalBody(t *Target, m *Method, pipelineName, proxyName string, q types.Qualifier, nvals int, errResult bool) string {
	ps := m.Sig.Params()
	var b strings.Builder
	args := make([]string, ps.Len())
	checks := []string{fmt.Sprintf("len(inv.Args) != %d", ps.Len())}
	for i := range args {
		typ := types.TypeString(ps.At(i).Type(), q)
		fmt.Fprintf(&b, "v%d, ok%d := %s.ArgOf[%s](inv, %d)\n\t\t", i, i, pipelineName, typ, i)
		checks = append(checks, fmt.Sprintf("!ok%d", i))
		args[i] = fmt.Sprintf("v%d", i)
		if m.Sig.Variadic() && i == ps.Len()-1 {
			args[i] += "..."
		}
	}
	fmt.Fprintf(&b, "if %s {\n\t\t\treturn %s.Fault(%s.ArgumentMismatch(inv.Member))\n\t\t}\n\t\t",
		strings.Join(checks, " || "), pipelineName, proxyName)
	call := fmt.Sprintf("p.%s.%s(%s)", t.Name, m.Name, strings.Join(args, ", "))

	vals := make([]string, nvals)
	for i := range vals {
		vals[i] = fmt.Sprintf("r%d", i)
	}
	lhs := append([]string(nil), vals...)
	if errResult {
		lhs = append(lhs, "err")
	}
	outcome := fmt.Sprintf("%s.Outcome{Results: []any{%s}", pipelineName, strings.Join(vals, ", "))
	if errResult {
		outcome += ", Err: err"
	}
	outcome += "}"
	if len(lhs) == 0 {
		b.WriteString(call + "\n\t\treturn " + pipelineName + ".Outcome{}")
		return b.String()
	}
	b.WriteString(strings.Join(lhs, ", ") + " := " + call + "\n\t\treturn " + outcome)
	return b.String()
}

// paramList renders a parameter declaration with generated names a0..aN
// and the matching argument list for a direct call.
func paramList(sig *types.Signature, q types.Qualifier) (decl, call string) {
	ps := sig.Params()
	decls := make([]string, ps.Len())
	calls := make([]string, ps.Len())
	for i := 0; i < ps.Len(); i++ {
		name := fmt.Sprintf("a%d", i)
		typ := ps.At(i).Type()
		if sig.Variadic() && i == ps.Len()-1 {
			decls[i] = name + " ..." + types.TypeString(typ.(*types.Slice).Elem(), q)
			calls[i] = name + "..."
			continue
		}
		decls[i] = name + " " + types.TypeString(typ, q)
		calls[i] = name
	}
	return strings.Join(decls, ", "), strings.Join(calls, ", ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
