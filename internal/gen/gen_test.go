package gen

import (
	"errors"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/interpose/member"
	"github.com/ppiankov/interpose/proxy"
)

const memberSrc = `package member

type Marker struct{}
`

const otherSrc = `package other

type token struct{}

type Handle struct{}

func (Handle) Peek() token { return token{} }
`

const bankSrc = `package bank

import (
	"context"
	"io"

	"example.com/other"
	"github.com/ppiankov/interpose/member"
)

type Auditor interface {
	Audit(ctx context.Context) error
	Describe() string
}

type Describer interface{ Describe() string }

type Clash interface{ Balance() string }

type Sealed interface{ seal() }

type Shape interface{ ~int }

type ledger struct{}

func (*ledger) Entries() []string { return nil }

type Account struct {
	_ member.Marker ` + "`intercept:\"audit\"`" + `
	_ member.Marker ` + "`intercept:\"Close=-;Deposit=retry\"`" + `
	ledger
	owner   string
	balance int
}

func NewAccount(owner string) *Account { return &Account{owner: owner} }

func OpenAccount(owner string, deposits ...int) (*Account, error) { return &Account{owner: owner}, nil }

func newAccount() *Account { return nil }

func (a *Account) Deposit(ctx context.Context, n int) (int, error) {
	a.balance += n
	return a.balance, nil
}
func (a *Account) Balance() int               { return a.balance }
func (a *Account) SetBalance(n int)           { a.balance = n }
func (a *Account) Describe() string           { return a.owner }
func (a *Account) Close() error               { return nil }
func (a *Account) Export(w io.Writer) error   { return nil }
func (a *Account) Fill(dst *string)           { *dst = a.owner }

type Box[K comparable, V any] struct{ m map[K]V }

func NewBox[K comparable, V any]() *Box[K, V] { return &Box[K, V]{m: map[K]V{}} }

func (b *Box[K, V]) Get(k K) (V, bool) {
	v, ok := b.m[k]
	return v, ok
}

func (b *Box[K, V]) Put(k K, v V) { b.m[k] = v }

type Vault struct{}

func newVault() *Vault { return &Vault{} }

type Plain struct{}

func (Plain) Ping() string { return "pong" }

type Peeker struct{ other.Handle }

func NewPeeker() *Peeker { return &Peeker{} }
`

type mapImporter struct {
	pkgs     map[string]*types.Package
	fallback types.Importer
}

func (m mapImporter) Import(path string) (*types.Package, error) {
	if p, ok := m.pkgs[path]; ok {
		return p, nil
	}
	return m.fallback.Import(path)
}

func check(t *testing.T, fset *token.FileSet, path, src string, imp types.Importer) *types.Package {
	t.Helper()
	f, err := parser.ParseFile(fset, path+".go", src, 0)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	pkg, err := (&types.Config{Importer: imp}).Check(path, fset, []*ast.File{f}, nil)
	if err != nil {
		t.Fatalf("check %s: %v", path, err)
	}
	return pkg
}

func loadBank(t *testing.T) *types.Package {
	t.Helper()
	fset := token.NewFileSet()
	imp := mapImporter{pkgs: map[string]*types.Package{}, fallback: importer.ForCompiler(fset, "source", nil)}
	imp.pkgs[reflect.TypeFor[member.Marker]().PkgPath()] = check(t, fset, reflect.TypeFor[member.Marker]().PkgPath(), memberSrc, imp)
	imp.pkgs["example.com/other"] = check(t, fset, "example.com/other", otherSrc, imp)
	return check(t, fset, "example.com/bank", bankSrc, imp)
}

func methodNames(ms []*Method) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}

func TestAnalyzeOrdersMembers(t *testing.T) {
	pkg := loadBank(t)
	target, err := Analyze(pkg, "Account", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Balance", "Deposit", "Describe", "Export", "Fill", "SetBalance", "Entries"}
	if got := methodNames(target.Methods); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i, m := range target.Methods {
		if m.Index != i {
			t.Errorf("%s: expected index %d, got %d", m.Name, i, m.Index)
		}
	}
	if entries := target.Methods[6]; entries.Depth != 1 {
		t.Errorf("Entries: expected depth 1, got %d", entries.Depth)
	}
	if !reflect.DeepEqual(target.Sealed, []string{"Close"}) {
		t.Errorf("expected Close sealed, got %v", target.Sealed)
	}
}

func TestAnalyzeAccessorsAndMarkers(t *testing.T) {
	pkg := loadBank(t)
	target, err := Analyze(pkg, "Account", nil)
	if err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]*Method)
	for _, m := range target.Methods {
		byName[m.Name] = m
	}
	if byName["Balance"].Kind != member.Getter || byName["SetBalance"].Kind != member.Setter {
		t.Errorf("expected Balance/SetBalance accessors, got %s/%s", byName["Balance"].Kind, byName["SetBalance"].Kind)
	}
	if byName["SetBalance"].Property != "Balance" {
		t.Errorf("expected property Balance, got %q", byName["SetBalance"].Property)
	}
	if got := byName["Deposit"].Markers; !reflect.DeepEqual(got, []string{"audit", "retry"}) {
		t.Errorf("Deposit markers: %v", got)
	}
	if got := byName["Entries"].Markers; !reflect.DeepEqual(got, []string{"audit"}) {
		t.Errorf("Entries markers: %v", got)
	}
	if !byName["Deposit"].ReturnsError() || byName["Balance"].ReturnsError() {
		t.Error("ReturnsError misclassified")
	}
}

func TestAnalyzeConstructors(t *testing.T) {
	pkg := loadBank(t)
	target, err := Analyze(pkg, "Account", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(target.Constructors) != 2 {
		t.Fatalf("expected 2 exported constructors, got %d", len(target.Constructors))
	}
	if target.Constructors[0].Name != "NewAccount" || target.Constructors[1].Name != "OpenAccount" {
		t.Errorf("unexpected order %s, %s", target.Constructors[0].Name, target.Constructors[1].Name)
	}
	open := target.Constructors[1]
	if !open.ReturnsError || !open.Pointer || !open.Sig.Variadic() {
		t.Errorf("OpenAccount: %+v", open)
	}

	plain, err := Analyze(pkg, "Plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(plain.Constructors) != 1 || !plain.Constructors[0].Zero() {
		t.Errorf("expected the zero-value constructor for Plain")
	}
}

func TestAnalyzeForwardsInterfaces(t *testing.T) {
	pkg := loadBank(t)
	target, err := Analyze(pkg, "Account", []string{"Describer", "Auditor", "Auditor"})
	if err != nil {
		t.Fatal(err)
	}
	if len(target.Requested) != 2 {
		t.Fatalf("expected Auditor deduplicated, got %v", target.Requested)
	}
	if len(target.Interfaces) != 1 || types.TypeString(target.Interfaces[0], nil) != "example.com/bank.Auditor" {
		t.Errorf("expected only Auditor to add members, got %v", target.Interfaces)
	}
	if len(target.Implemented) != 1 || types.TypeString(target.Implemented[0], nil) != "example.com/bank.Describer" {
		t.Errorf("expected Describer satisfied by the target, got %v", target.Implemented)
	}
	if got := methodNames(target.Forwarded); !reflect.DeepEqual(got, []string{"Audit"}) {
		t.Fatalf("expected [Audit] forwarded, got %v", got)
	}
	audit := target.Forwarded[0]
	if audit.Index != len(target.Methods) || audit.Kind != member.Forwarded {
		t.Errorf("Audit: index %d kind %s", audit.Index, audit.Kind)
	}
	if n := len(target.Members()); n != len(target.Methods)+1 {
		t.Errorf("Members: expected %d, got %d", len(target.Methods)+1, n)
	}
}

func TestAnalyzeImportedInterface(t *testing.T) {
	pkg := loadBank(t)
	target, err := Analyze(pkg, "Plain", []string{"io.Closer"})
	if err != nil {
		t.Fatal(err)
	}
	if got := methodNames(target.Forwarded); !reflect.DeepEqual(got, []string{"Close"}) {
		t.Errorf("expected [Close], got %v", got)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	pkg := loadBank(t)
	tests := []struct {
		name   string
		target string
		ifaces []string
		want   error
	}{
		{"missing type", "Missing", nil, proxy.ErrInvalidTarget},
		{"interface target", "Auditor", nil, proxy.ErrInvalidTarget},
		{"only unexported constructors", "Vault", nil, proxy.ErrNoAccessibleConstructor},
		{"signature collision", "Account", []string{"Clash"}, proxy.ErrMemberCollision},
		{"unexported interface method", "Plain", []string{"Sealed"}, proxy.ErrUnsupportedMember},
		{"not an interface", "Plain", []string{"Account"}, proxy.ErrNotAnInterface},
		{"type-set interface", "Plain", []string{"Shape"}, proxy.ErrNotAnInterface},
		{"unknown interface", "Plain", []string{"nope.Thing"}, proxy.ErrNotAnInterface},
		{"foreign unexported type", "Peeker", nil, proxy.ErrUnsupportedMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(pkg, tt.target, tt.ifaces)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var ce *proxy.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *proxy.ConfigurationError, got %T", err)
			}
		})
	}
}

func TestAnalyzeGenericTarget(t *testing.T) {
	pkg := loadBank(t)
	target, err := Analyze(pkg, "Box", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !target.Generic() {
		t.Fatal("expected a generic target")
	}
	if got := target.Params.Params(types.RelativeTo(pkg)); got != "[K comparable, V any]" {
		t.Errorf("Params = %q", got)
	}
	if got := methodNames(target.Methods); !reflect.DeepEqual(got, []string{"Get", "Put"}) {
		t.Errorf("expected [Get Put], got %v", got)
	}
	if len(target.Constructors) != 1 || target.Constructors[0].Name != "NewBox" {
		t.Fatalf("expected NewBox, got %v", target.Constructors)
	}
	get := target.Methods[0]
	if get.Sig.Params().At(0).Type() != target.Params.Types()[0] {
		t.Errorf("Get's parameter is not the declared K: %v", get.Sig.Params().At(0).Type())
	}
}

func TestBuildRejectsDuplicateProxyNames(t *testing.T) {
	pkg := loadBank(t)
	_, err := Build(pkg, []TargetSpec{
		{Type: "Account", Proxy: "Wrapped"},
		{Type: "Plain", Proxy: "Wrapped"},
	})
	if err == nil {
		t.Fatal("expected duplicate proxy name error")
	}
	if _, err := Build(pkg, []TargetSpec{{Type: "Plain", Proxy: "Account"}}); err == nil {
		t.Fatal("expected error for a proxy name that is already declared")
	}
}

func render(t *testing.T, specs ...TargetSpec) string {
	t.Helper()
	pkg := loadBank(t)
	model, err := Build(pkg, specs)
	if err != nil {
		t.Fatal(err)
	}
	src, err := Render(model, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "gen.go", src, parser.AllErrors); err != nil {
		t.Fatalf("generated source does not parse: %v\n%s", err, src)
	}
	return string(src)
}

func TestRenderAccountProxy(t *testing.T) {
	src := render(t, TargetSpec{Type: "Account", Interfaces: []string{"Auditor"}})

	for _, want := range []string{
		"// Code generated by interpose gen. DO NOT EDIT.",
		"//go:build !interposegen",
		"package bank",
		"var _ Auditor = (*AccountProxy)(nil)",
		"type AccountProxy struct {",
		"func NewAccountProxy(a0 string) (*AccountProxy, error) {",
		"func OpenAccountProxy(a0 string, a1 ...int) (*AccountProxy, error) {",
		"base, err := OpenAccount(a0, a1...)",
		"member.MustRegisterConstructor(NewAccount)",
		"proxy.SynthesizeFor[Account](reflect.TypeFor[Auditor]())",
		"func AccountProxyOf(base *Account, opts ...proxy.Option) (*AccountProxy, error) {",
		"func (p *AccountProxy) Interception() *proxy.Instance {",
		"func (p *AccountProxy) Deposit(a0 context.Context, a1 int) (int, error) {",
		"v0, ok0 := pipeline.ArgOf[context.Context](inv, 0)",
		"v1, ok1 := pipeline.ArgOf[int](inv, 1)",
		"if len(inv.Args) != 2 || !ok0 || !ok1 {",
		"return pipeline.Fault(proxy.ArgumentMismatch(inv.Member))",
		"r0, err := p.Account.Deposit(v0, v1)",
		"proxy.RaisePanic(out.Err)",
		`return proxy.MustResult[int](out, "Deposit", 0), out.Err`,
		"func (p *AccountProxy) Fill(a0 *string) {",
		"func (p *AccountProxy) Audit(a0 context.Context) error {",
		`MustMember("Audit"), []any{a0}, nil)`,
		"proxy.Raise(out.Err)",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source lacks %q\n%s", want, src)
		}
	}
	if strings.Contains(src, "func (p *AccountProxy) Close(") {
		t.Error("sealed Close must not be overridden")
	}
	if strings.Contains(src, "newAccount") {
		t.Error("unexported constructor leaked into generated code")
	}
}

func TestRenderGenericProxy(t *testing.T) {
	src := render(t, TargetSpec{Type: "Box"})
	for _, want := range []string{
		"type BoxProxy[K comparable, V any] struct {",
		"*Box[K, V]",
		"func boxProxyDescriptor[K comparable, V any]() (*proxy.Descriptor, error) {",
		"member.MustRegisterConstructor(NewBox[K, V])",
		"func NewBoxProxy[K comparable, V any]() (*BoxProxy[K, V], error) {",
		"proxy.WithTypeArgs(reflect.TypeFor[K](), reflect.TypeFor[V]())",
		"func (p *BoxProxy[K, V]) Get(a0 K) (V, bool) {",
		"v0, ok0 := pipeline.ArgOf[K](inv, 0)",
		`return proxy.MustResult[V](out, "Get", 0), proxy.MustResult[bool](out, "Get", 1)`,
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source lacks %q\n%s", want, src)
		}
	}
}

func TestRenderZeroConstructor(t *testing.T) {
	src := render(t, TargetSpec{Type: "Plain", Proxy: "Traced"})
	if !strings.Contains(src, "func NewTraced() (*Traced, error) {") {
		t.Errorf("expected zero-value constructor\n%s", src)
	}
	if !strings.Contains(src, "base := new(Plain)") {
		t.Errorf("expected new(Plain)\n%s", src)
	}
	if strings.Contains(src, "MustRegisterConstructor") {
		t.Error("zero-value constructor must not be registered")
	}
}

func TestLoadFixturePackage(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages through the go command")
	}
	pkg, err := Load(".", "./testdata/fixture")
	if err != nil {
		t.Fatal(err)
	}
	model, err := Build(pkg.Types, []TargetSpec{{Type: "Store"}})
	if err != nil {
		t.Fatal(err)
	}
	store := model.Targets[0]
	if got := methodNames(store.Methods); !reflect.DeepEqual(got, []string{"Get", "Put"}) {
		t.Fatalf("expected [Get Put], got %v", got)
	}
	if !reflect.DeepEqual(store.Methods[0].Markers, []string{"cache"}) {
		t.Errorf("Get markers: %v", store.Methods[0].Markers)
	}
	if _, err := Render(model, Options{}); err != nil {
		t.Fatal(err)
	}
}
