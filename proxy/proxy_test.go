package proxy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/interpose/member"
	"github.com/ppiankov/interpose/pipeline"
	"github.com/ppiankov/interpose/proxy/internal/opaque"
)

type Account struct {
	Owner   string
	balance int
}

func NewAccount(owner string) *Account { return &Account{Owner: owner} }

func (a *Account) Deposit(n int) (int, error) {
	if n <= 0 {
		return a.balance, fmt.Errorf("invalid amount %d", n)
	}
	a.balance += n
	return a.balance, nil
}

func (a *Account) Balance() int { return a.balance }

func (a *Account) SetBalance(n int) { a.balance = n }

func (a *Account) Explode() { panic("kaboom") }

func (a *Account) Sum(prefix string, xs ...int) string {
	total := 0
	for _, x := range xs {
		total += x
	}
	return fmt.Sprintf("%s%d", prefix, total)
}

func (a *Account) Fill(out *string) { *out = "filled by " + a.Owner }

type Describer interface{ Describe() string }

type Narrator interface{ Describe() string }

type Balancer interface{ Balance() int }

type Auditor interface {
	Audit() []string
	Describe() string
}

type Clash interface{ Deposit(string) error }

type Counter interface{ Describe() int }

func init() {
	member.MustRegisterConstructor(NewAccount)
}

func mustSynth(t *testing.T, target reflect.Type, ifaces ...reflect.Type) *Descriptor {
	t.Helper()
	d, err := Synthesize(target, ifaces...)
	if err != nil {
		t.Fatalf("Synthesize(%s): %v", target, err)
	}
	return d
}

func newAccount(t *testing.T, ifaces ...reflect.Type) *Instance {
	t.Helper()
	inst, err := Instantiate(mustSynth(t, reflect.TypeOf(Account{}), ifaces...), "alice")
	if err != nil {
		t.Fatal(err)
	}
	return inst
}

func wantKind(t *testing.T, err error, kind ErrorKind, sentinel error) {
	t.Helper()
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
	if ce.Kind != kind {
		t.Errorf("expected kind %s, got %s (%v)", kind, ce.Kind, err)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected errors.Is(%v, %v)", err, sentinel)
	}
}

// --- Synthesis ---

func TestSynthesizeMembers(t *testing.T) {
	d := mustSynth(t, reflect.TypeOf(&Account{}))
	var got []string
	for _, m := range d.Members {
		got = append(got, m.Name)
	}
	want := []string{"Balance", "Deposit", "Explode", "Fill", "SetBalance", "Sum"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if d.Target != reflect.TypeOf(Account{}) || d.Pointer != reflect.TypeOf(&Account{}) {
		t.Errorf("unexpected target types %s / %s", d.Target, d.Pointer)
	}
	if len(d.Forwarded()) != 0 {
		t.Errorf("expected no forwarded members, got %d", len(d.Forwarded()))
	}
}

func TestSynthesizeIsMemoized(t *testing.T) {
	a := mustSynth(t, reflect.TypeOf(Account{}), reflect.TypeFor[Describer](), reflect.TypeFor[Auditor]())
	b := mustSynth(t, reflect.TypeOf(&Account{}), reflect.TypeFor[Auditor](), reflect.TypeFor[Describer]())
	if a != b {
		t.Error("expected interface order not to change the cached descriptor")
	}
	c, err := SynthesizeFor[Account](reflect.TypeFor[Describer](), reflect.TypeFor[Auditor]())
	if err != nil || c != a {
		t.Errorf("expected SynthesizeFor to share the descriptor, got %v, %v", c, err)
	}
}

func TestSynthesizeForwardingIsIdempotent(t *testing.T) {
	once := mustSynth(t, reflect.TypeOf(Account{}), reflect.TypeFor[Describer]())
	twice := mustSynth(t, reflect.TypeOf(Account{}), reflect.TypeFor[Describer](), reflect.TypeFor[Describer]())
	if once != twice {
		t.Error("expected [I, I] and [I] to share a descriptor")
	}
	if len(once.Forwarded()) != 1 {
		t.Errorf("expected one forwarded member, got %d", len(once.Forwarded()))
	}
}

func TestSynthesizeRecordsSatisfiedInterfaces(t *testing.T) {
	plain := mustSynth(t, reflect.TypeOf(Account{}))
	withBalancer := mustSynth(t, reflect.TypeOf(Account{}), reflect.TypeFor[Balancer]())
	if len(withBalancer.Members) != len(plain.Members) || len(withBalancer.Forwarded()) != 0 {
		t.Error("expected an interface the target satisfies to add no members")
	}
	if len(withBalancer.Interfaces) != 0 {
		t.Errorf("expected no extending interfaces, got %v", withBalancer.Interfaces)
	}
	if len(withBalancer.Implemented) != 1 || withBalancer.Implemented[0] != reflect.TypeFor[Balancer]() {
		t.Errorf("expected Balancer to be recorded as implemented, got %v", withBalancer.Implemented)
	}
}

func TestInterfacesAndImplementedAreDisjoint(t *testing.T) {
	d := mustSynth(t, reflect.TypeOf(Account{}),
		reflect.TypeFor[Narrator](), reflect.TypeFor[Balancer](), reflect.TypeFor[Describer]())
	if len(d.Interfaces) != 1 || d.Interfaces[0] != reflect.TypeFor[Describer]() {
		t.Errorf("expected only Describer to add members, got %v", d.Interfaces)
	}
	want := []reflect.Type{reflect.TypeFor[Balancer](), reflect.TypeFor[Narrator]()}
	if !reflect.DeepEqual(d.Implemented, want) {
		t.Errorf("expected %v implemented, got %v", want, d.Implemented)
	}
	for _, it := range d.Interfaces {
		for _, im := range d.Implemented {
			if it == im {
				t.Errorf("%s is both extending and implemented", it)
			}
		}
	}
}

func TestSynthesizeConcurrent(t *testing.T) {
	type Fresh struct{ Account }
	var wg sync.WaitGroup
	results := make([]*Descriptor, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := Synthesize(reflect.TypeOf(Fresh{}), reflect.TypeFor[Describer]())
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = d
		}(i)
	}
	wg.Wait()
	for i, d := range results {
		if d != results[0] {
			t.Fatalf("goroutine %d got a different descriptor", i)
		}
	}
}

func TestSynthesizeLocalTypesWithSameName(t *testing.T) {
	var a, b *Descriptor
	{
		type Local struct{ Account }
		a = mustSynth(t, reflect.TypeOf(Local{}))
	}
	{
		type Local struct{ Owner string }
		b = mustSynth(t, reflect.TypeOf(Local{}))
	}
	if a == b || a.Key() == b.Key() {
		t.Error("expected distinct descriptors for distinct local types")
	}
}

// --- Forwarding ---

func TestForwardedMembersFollowTargetMembers(t *testing.T) {
	d := mustSynth(t, reflect.TypeOf(Account{}), reflect.TypeFor[Auditor](), reflect.TypeFor[Narrator]())
	fwd := d.Forwarded()
	if len(fwd) != 2 {
		t.Fatalf("expected Audit and Describe forwarded, got %v", fwd)
	}
	n := len(d.TargetMembers())
	for i, m := range fwd {
		if m.Kind != member.Forwarded || m.Index != n+i {
			t.Errorf("%s: expected forwarded at %d, got %s at %d", m.Name, n+i, m.Kind, m.Index)
		}
	}
	if fwd[0].Name != "Audit" || fwd[1].Name != "Describe" {
		t.Errorf("expected name order within interface, got %s, %s", fwd[0].Name, fwd[1].Name)
	}
	if len(d.Implemented) != 1 || d.Implemented[0] != reflect.TypeFor[Narrator]() {
		t.Errorf("expected Narrator to be implemented by forwarded members, got %v", d.Implemented)
	}
}

func TestForwardedMemberWithoutHandlerFaults(t *testing.T) {
	inst := newAccount(t, reflect.TypeFor[Describer]())
	out := inst.Invoke("Describe")
	if !errors.Is(out.Err, pipeline.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", out.Err)
	}
	var ni *pipeline.NotImplementedError
	if !errors.As(out.Err, &ni) || ni.Member.Name != "Describe" {
		t.Errorf("expected NotImplementedError for Describe, got %v", out.Err)
	}
}

func TestForwardedMemberAnsweredByHandler(t *testing.T) {
	inst := newAccount(t, reflect.TypeFor[Describer]())
	err := inst.Handle("Describe", pipeline.Func(1, func(inv *pipeline.Invocation, _ pipeline.Next) pipeline.Outcome {
		return pipeline.Return("account of " + inv.Target.(*Account).Owner)
	}))
	if err != nil {
		t.Fatal(err)
	}

	var describe func() string
	if err := inst.Func("Describe", &describe); err != nil {
		t.Fatal(err)
	}
	if got := describe(); got != "account of alice" {
		t.Errorf("expected handler answer, got %q", got)
	}
}

// --- Configuration errors ---

type Vault struct{}

func newVault() *Vault { return &Vault{} }

func (*Vault) Open() {}

type Lamp struct{ on bool }

func (l *Lamp) Toggle() { l.on = !l.on }

type Peeker struct {
	opaque.Handle
}

func TestConfigurationErrors(t *testing.T) {
	member.MustRegisterConstructor(newVault)

	_, err := Synthesize(reflect.TypeOf(Account{}), reflect.TypeOf(0))
	wantKind(t, err, NotAnInterface, ErrNotAnInterface)

	_, err = Synthesize(reflect.TypeOf(Account{}), nil)
	wantKind(t, err, NotAnInterface, ErrNotAnInterface)

	_, err = Synthesize(reflect.TypeFor[Describer]())
	wantKind(t, err, InvalidTarget, ErrInvalidTarget)

	_, err = Synthesize(reflect.TypeOf(Vault{}))
	wantKind(t, err, NoAccessibleConstructor, ErrNoAccessibleConstructor)

	_, err = Synthesize(reflect.TypeOf(Peeker{}))
	wantKind(t, err, UnsupportedMember, ErrUnsupportedMember)

	_, err = Synthesize(reflect.TypeOf(Account{}), reflect.TypeFor[opaque.Secretive]())
	wantKind(t, err, UnsupportedMember, ErrUnsupportedMember)

	_, err = Synthesize(reflect.TypeOf(Account{}), reflect.TypeFor[opaque.Leaky]())
	wantKind(t, err, UnsupportedMember, ErrUnsupportedMember)

	_, err = Synthesize(reflect.TypeOf(Account{}), reflect.TypeFor[Clash]())
	wantKind(t, err, MemberCollision, ErrMemberCollision)

	_, err = Synthesize(reflect.TypeOf(Account{}), reflect.TypeFor[Counter](), reflect.TypeFor[Describer]())
	wantKind(t, err, MemberCollision, ErrMemberCollision)
}

func TestFailedSynthesisIsNotCached(t *testing.T) {
	_, first := Synthesize(reflect.TypeOf(Account{}), reflect.TypeFor[Clash]())
	_, second := Synthesize(reflect.TypeOf(Account{}), reflect.TypeFor[Clash]())
	if first == nil || second == nil {
		t.Fatal("expected both calls to fail")
	}
}

// --- Instance ---

func TestEmptyPipelineIsTransparent(t *testing.T) {
	inst := newAccount(t)
	direct := NewAccount("alice")

	for _, n := range []int{5, -1, 7} {
		gotRes, gotErr := inst.Call("Deposit", n)
		wantBal, wantErr := direct.Deposit(n)
		if gotRes[0] != wantBal {
			t.Errorf("Deposit(%d): expected %d, got %v", n, wantBal, gotRes[0])
		}
		if (gotErr == nil) != (wantErr == nil) || (gotErr != nil && gotErr.Error() != wantErr.Error()) {
			t.Errorf("Deposit(%d): expected err %v, got %v", n, wantErr, gotErr)
		}
	}
	if inst.Target().(*Account).Balance() != direct.Balance() {
		t.Error("expected target state to match direct calls")
	}
}

func TestInvokeVariadic(t *testing.T) {
	inst := newAccount(t)
	if got := inst.Invoke("Sum", "n=", 1, 2, 3).Value(); got != "n=6" {
		t.Errorf("expected n=6 from spread args, got %v", got)
	}
	if got := inst.Invoke("Sum", "n=", []int{4, 5}).Value(); got != "n=9" {
		t.Errorf("expected n=9 from slice arg, got %v", got)
	}
	if got := inst.Invoke("Sum", "n=").Value(); got != "n=0" {
		t.Errorf("expected n=0 without variadic args, got %v", got)
	}
}

func TestInvokeOutParameter(t *testing.T) {
	inst := newAccount(t)
	var s string
	if out := inst.Invoke("Fill", &s); out.Failed() {
		t.Fatal(out.Err)
	}
	if s != "filled by alice" {
		t.Errorf("expected out parameter to be written, got %q", s)
	}
}

func TestInvokeErrors(t *testing.T) {
	inst := newAccount(t)
	if out := inst.Invoke("Nope"); !errors.Is(out.Err, ErrUnknownMember) {
		t.Errorf("expected ErrUnknownMember, got %v", out.Err)
	}
	if out := inst.Invoke("Deposit", "ten"); !out.Failed() {
		t.Error("expected mismatched argument to fail")
	}
	if out := inst.Invoke("Deposit"); !out.Failed() {
		t.Error("expected missing argument to fail")
	}
}

func TestTargetPanicIsRaisedAgain(t *testing.T) {
	inst := newAccount(t)
	out := inst.Invoke("Explode")
	var pe *pipeline.PanicError
	if !errors.As(out.Err, &pe) || pe.Value != "kaboom" {
		t.Fatalf("expected captured panic, got %v", out.Err)
	}

	var explode func()
	if err := inst.Func("Explode", &explode); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if r := recover(); r != "kaboom" {
			t.Errorf("expected original panic value, got %v", r)
		}
	}()
	explode()
}

func TestFuncRejectsWrongSignature(t *testing.T) {
	inst := newAccount(t)
	var wrong func(string) int
	if err := inst.Func("Deposit", &wrong); err == nil {
		t.Error("expected signature mismatch")
	}
	if err := inst.Func("Deposit", wrong); err == nil {
		t.Error("expected non-pointer to be rejected")
	}
	if err := inst.Func("Nope", &wrong); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("expected ErrUnknownMember, got %v", err)
	}
}

type accountAPI struct {
	Deposit func(int) (int, error)
	Balance func() int
	Skip    func() `intercept:"-"`
	Label   string
}

func TestBind(t *testing.T) {
	inst := newAccount(t)
	var api accountAPI
	if err := inst.Bind(&api); err != nil {
		t.Fatal(err)
	}
	if api.Skip != nil {
		t.Error("expected tagged field to be skipped")
	}
	if _, err := api.Deposit(10); err != nil {
		t.Fatal(err)
	}
	if _, err := api.Deposit(0); err == nil {
		t.Error("expected error result to pass through")
	}
	if api.Balance() != 10 {
		t.Errorf("expected balance 10, got %d", api.Balance())
	}

	var bad struct{ Withdraw func(int) }
	if err := inst.Bind(&bad); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("expected ErrUnknownMember, got %v", err)
	}
}

func TestHandlerShortCircuitsTypedCall(t *testing.T) {
	inst := newAccount(t)
	if err := inst.Handle("Balance", pipeline.Func(1, func(*pipeline.Invocation, pipeline.Next) pipeline.Outcome {
		return pipeline.Return(99)
	})); err != nil {
		t.Fatal(err)
	}
	var balance func() int
	if err := inst.Func("Balance", &balance); err != nil {
		t.Fatal(err)
	}
	if balance() != 99 {
		t.Errorf("expected handler answer 99, got %d", balance())
	}
	if inst.Target().(*Account).balance != 0 {
		t.Error("expected target untouched")
	}
	if err := inst.Handle("Nope"); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("expected ErrUnknownMember, got %v", err)
	}
}

func TestHandlerFaultReachesErrorResult(t *testing.T) {
	inst := newAccount(t)
	denied := errors.New("denied")
	inst.Handle("Deposit", pipeline.Func(1, func(*pipeline.Invocation, pipeline.Next) pipeline.Outcome {
		return pipeline.Fault(denied)
	}))
	var deposit func(int) (int, error)
	if err := inst.Func("Deposit", &deposit); err != nil {
		t.Fatal(err)
	}
	n, err := deposit(5)
	if !errors.Is(err, denied) || n != 0 {
		t.Errorf("expected (0, denied), got (%d, %v)", n, err)
	}
}

func TestAttachHandlers(t *testing.T) {
	inst := newAccount(t)
	d := inst.Descriptor()
	calls := 0
	h := pipeline.Func(1, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		calls++
		return next(inv)
	})

	err := AttachHandlers(inst, map[*member.Descriptor][]pipeline.Handler{
		d.MustMember("Deposit"): {h},
		d.MustMember("Balance"): {h},
	})
	if err != nil {
		t.Fatal(err)
	}
	inst.Call("Deposit", 1)
	inst.Call("Balance")
	inst.Call("SetBalance", 3)
	if calls != 2 {
		t.Errorf("expected 2 intercepted calls, got %d", calls)
	}

	other := mustSynth(t, reflect.TypeOf(Lamp{}))
	err = AttachHandlers(inst, map[*member.Descriptor][]pipeline.Handler{other.MustMember("Toggle"): {h}})
	if !errors.Is(err, ErrUnknownMember) {
		t.Errorf("expected foreign member to be rejected, got %v", err)
	}
}

func TestPrepareInit(t *testing.T) {
	d := mustSynth(t, reflect.TypeOf(Account{}))
	inst := Prepare(d)
	if inst.Pipeline() == nil {
		t.Fatal("expected pipeline before target")
	}
	if inst.Target() != nil {
		t.Error("expected no target before Init")
	}
	if err := inst.Init(nil); err == nil {
		t.Error("expected nil target to be rejected")
	}
	if err := inst.Init((*Account)(nil)); err == nil {
		t.Error("expected nil pointer to be rejected")
	}
	if err := inst.Init(Account{}); err == nil {
		t.Error("expected non-pointer target to be rejected")
	}
	if err := inst.Init(NewAccount("bob")); err != nil {
		t.Fatal(err)
	}
	if err := inst.Init(NewAccount("carol")); err == nil {
		t.Error("expected second Init to fail")
	}
	if inst.Target().(*Account).Owner != "bob" {
		t.Error("expected first target to stay bound")
	}
}

func TestInstantiateSelectsConstructor(t *testing.T) {
	d := mustSynth(t, reflect.TypeOf(Account{}))
	if _, err := Instantiate(d, 42); err == nil {
		t.Error("expected no constructor to accept an int")
	}
	inst, err := Instantiate(d, "dave")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Target().(*Account).Owner != "dave" {
		t.Error("expected constructor argument to reach the target")
	}
}

type Fragile struct{ ok bool }

func NewFragile(ok bool) (Fragile, error) {
	if !ok {
		return Fragile{}, errors.New("refused")
	}
	return Fragile{ok: true}, nil
}

func (f *Fragile) OK() bool { return f.ok }

func TestInstantiateConstructorError(t *testing.T) {
	member.MustRegisterConstructor(NewFragile)
	d := mustSynth(t, reflect.TypeOf(Fragile{}))

	if _, err := Instantiate(d, false); err == nil || !strings.Contains(err.Error(), "refused") {
		t.Errorf("expected constructor error, got %v", err)
	}
	inst, err := Instantiate(d, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := inst.Invoke("OK").Value(); got != true {
		t.Errorf("expected value-returning constructor to be stored behind a pointer, got %v", got)
	}
}

func TestTypeArgsReachInvocation(t *testing.T) {
	d := mustSynth(t, reflect.TypeOf(Account{}))
	inst, err := Attach(d, NewAccount("erin"), WithTypeArgs(reflect.TypeOf("")))
	if err != nil {
		t.Fatal(err)
	}
	var seen []reflect.Type
	inst.Handle("Balance", pipeline.Func(1, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		seen = inv.TypeArgs
		return next(inv)
	}))
	inst.Invoke("Balance")
	if len(seen) != 1 || seen[0] != reflect.TypeOf("") {
		t.Errorf("expected [string], got %v", seen)
	}
}

func TestSharedPipeline(t *testing.T) {
	d := mustSynth(t, reflect.TypeOf(Account{}))
	p := pipeline.New()
	a, _ := Attach(d, NewAccount("a"), WithPipeline(p))
	b, _ := Attach(d, NewAccount("b"), WithPipeline(p))
	if a.Pipeline() != b.Pipeline() {
		t.Error("expected instances to share the pipeline")
	}
}

func TestInstantiateWithOptions(t *testing.T) {
	d := mustSynth(t, reflect.TypeOf(Account{}))
	p := pipeline.New()
	inst, err := InstantiateWith(d, []Option{WithPipeline(p), WithTypeArgs(reflect.TypeOf(0))}, "fay")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline() != p {
		t.Error("expected the shared pipeline")
	}
	var seen []reflect.Type
	inst.Handle("Balance", pipeline.Func(1, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		seen = inv.TypeArgs
		return next(inv)
	}))
	inst.Invoke("Balance")
	if len(seen) != 1 || seen[0] != reflect.TypeOf(0) {
		t.Errorf("expected [int], got %v", seen)
	}
	if _, err := InstantiateWith(d, nil, 42); err == nil {
		t.Error("expected no constructor to accept an int")
	}
}

// Index has no registered constructor and panics while loading.
type Index struct{}

func (*Index) Load(key string) (string, error) { panic("corrupt index") }

func TestTargetPanicIsRaisedAgainThroughErrorResult(t *testing.T) {
	inst, err := Attach(mustSynth(t, reflect.TypeOf(Index{})), &Index{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inst.Call("Load", "k"); !errors.As(err, new(*pipeline.PanicError)) {
		t.Fatalf("expected Call to report the captured panic, got %v", err)
	}

	var load func(string) (string, error)
	if err := inst.Func("Load", &load); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if r := recover(); r != "corrupt index" {
			t.Errorf("expected original panic value, got %v", r)
		}
	}()
	_, err = load("k")
	t.Errorf("expected Load to panic, got err=%v", err)
}

func TestRaisePanicLeavesOtherFaults(t *testing.T) {
	RaisePanic(nil)
	RaisePanic(errors.New("declined"))
}

func TestMustResult(t *testing.T) {
	out := pipeline.Return(7, nil)
	if got := MustResult[int](out, "N", 0); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := MustResult[error](out, "N", 1); got != nil {
		t.Errorf("expected nil error, got %v", got)
	}
	if got := MustResult[string](out, "N", 5); got != "" {
		t.Errorf("expected zero value for a missing result, got %q", got)
	}
	defer func() {
		msg, _ := recover().(string)
		if !strings.Contains(msg, "N result 0: int is not assignable to string") {
			t.Errorf("unexpected panic %q", msg)
		}
	}()
	MustResult[string](out, "N", 0)
	t.Error("expected a mismatched result to panic")
}
