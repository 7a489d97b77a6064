package image

import (
	"strings"
	"testing"

	"github.com/litevm/litevm/vm"
)

// assembleProgram builds the demo program on a scratch VM: a class with
// a static counter and a run method that recovers from a throw in a
// catch handler, with a finally side effect.
func assembleProgram(t *testing.T) (*vm.VM, *vm.Class) {
	t.Helper()
	machine := vm.NewVM()
	prog := vm.NewClass("Prog", machine.ObjectClass)
	machine.RegisterClass(prog)
	prog.AddStaticField("counter", vm.KindInt) // slot 0

	b := vm.NewMethodBuilder("run").Static()
	result := b.Local(vm.KindInt)
	tryStart := b.NewLabel()
	tryEnd := b.NewLabel()
	afterTry := b.NewLabel()
	finEnd := b.NewLabel()
	finBody := b.NewLabel()

	b.Bind(tryStart)
	b.MarkLine(3)
	b.PushInt(1).StoreLocal(result)
	b.ThrowNew("RuntimeException", "boom")
	b.Jump(afterTry)
	b.Bind(tryEnd)
	b.Pop()
	b.PushInt(2).StoreLocal(result)
	b.Bind(afterTry)
	b.PushLocal(result).ReturnValue()
	b.Bind(finEnd)
	b.Bind(finBody)
	b.PushInt(3).PutStatic("Prog", 0)
	b.EndFinally(finBody)

	b.Catch(tryStart, tryEnd, tryEnd, machine.Classes.Lookup("RuntimeException"))
	b.Finally(tryStart, finEnd, finBody)
	prog.AddMethod(b.Build())

	return machine, prog
}

// ---------------------------------------------------------------------------
// Codec tests
// ---------------------------------------------------------------------------

func TestMarshalRoundTrip(t *testing.T) {
	source, _ := assembleProgram(t)
	img, err := Export(source, "demo", EntryPoint{Class: "Prog", Method: "run"}, []string{"Prog"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Name != "demo" || decoded.Version != FormatVersion {
		t.Errorf("decoded header = %s v%d, want demo v%d", decoded.Name, decoded.Version, FormatVersion)
	}
	if len(decoded.Classes) != 1 || decoded.Classes[0].Name != "Prog" {
		t.Fatalf("decoded classes = %v, want [Prog]", decoded.Classes)
	}
	if len(decoded.Classes[0].Methods) != 1 {
		t.Fatalf("decoded %d methods, want 1", len(decoded.Classes[0].Methods))
	}
	m := decoded.Classes[0].Methods[0]
	if len(m.Handlers) != 2 {
		t.Errorf("decoded %d handler entries, want 2", len(m.Handlers))
	}
	if m.Handlers[0].Catch != "RuntimeException" {
		t.Errorf("catch filter = %q, want RuntimeException", m.Handlers[0].Catch)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	source, _ := assembleProgram(t)
	img, err := Export(source, "demo", EntryPoint{Class: "Prog", Method: "run"}, []string{"Prog"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	first, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	second, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(first) != string(second) {
		t.Error("canonical encoding should be byte-identical across runs")
	}
}

func TestUnmarshalRejectsWrongVersion(t *testing.T) {
	img := &Image{Version: FormatVersion + 1, Name: "future"}
	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("Unmarshal should reject an unsupported version")
	}
}

// ---------------------------------------------------------------------------
// Link tests
// ---------------------------------------------------------------------------

func TestLinkAndRun(t *testing.T) {
	source, _ := assembleProgram(t)
	img, err := Export(source, "demo", EntryPoint{Class: "Prog", Method: "run"}, []string{"Prog"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	target := vm.NewVM()
	if err := NewLinker(target).Link(decoded); err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	v, err := target.Run(decoded.Entry.Class, decoded.Entry.Method)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := v.SmallInt(); got != 2 {
		t.Errorf("run() = %d, want the catch result 2", got)
	}
	prog := target.Classes.Lookup("Prog")
	if got := target.Statics.Get(prog, 0).SmallInt(); got != 3 {
		t.Errorf("counter = %d, want the finally's 3", got)
	}
}

func TestLinkResolvesForwardSuperReference(t *testing.T) {
	img := &Image{
		Version: FormatVersion,
		Name:    "fwd",
		Classes: []ClassRecord{
			// Derived is declared before its superclass.
			{Name: "Derived", Super: "Base"},
			{Name: "Base"},
		},
	}
	target := vm.NewVM()
	if err := NewLinker(target).Link(img); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	derived := target.Classes.Lookup("Derived")
	if derived == nil || derived.Superclass == nil || derived.Superclass.Name != "Base" {
		t.Error("Derived should be linked under Base")
	}
}

func TestLinkReportsAllErrors(t *testing.T) {
	img := &Image{
		Version: FormatVersion,
		Name:    "broken",
		Classes: []ClassRecord{
			{Name: "A", Super: "Missing1"},
			{Name: "B", Super: "Missing2"},
		},
	}
	err := NewLinker(vm.NewVM()).Link(img)
	if err == nil {
		t.Fatal("Link should fail")
	}
	for _, want := range []string{"Missing1", "Missing2"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestLinkRejectsSuperclassCycle(t *testing.T) {
	img := &Image{
		Version: FormatVersion,
		Name:    "cycle",
		Classes: []ClassRecord{
			{Name: "A", Super: "B"},
			{Name: "B", Super: "A"},
		},
	}
	err := NewLinker(vm.NewVM()).Link(img)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Link should report a superclass cycle, got %v", err)
	}
}

func TestLinkRejectsDuplicateClass(t *testing.T) {
	img := &Image{
		Version: FormatVersion,
		Name:    "dup",
		Classes: []ClassRecord{
			{Name: "A"},
			{Name: "A"},
		},
	}
	if err := NewLinker(vm.NewVM()).Link(img); err == nil {
		t.Error("Link should reject duplicate class names")
	}
}

func TestLinkRejectsHandlerInsideOwnRange(t *testing.T) {
	img := &Image{
		Version: FormatVersion,
		Name:    "badhandler",
		Classes: []ClassRecord{{
			Name: "A",
			Methods: []MethodRecord{{
				Name: "m",
				Code: []byte{0x60, 0x60, 0x60, 0x60}, // RETURN filler
				Handlers: []HandlerRecord{
					{Start: 0, End: 4, Target: 2},
				},
			}},
		}},
	}
	err := NewLinker(vm.NewVM()).Link(img)
	if err == nil || !strings.Contains(err.Error(), "guarded range") {
		t.Errorf("Link should reject a handler target inside its own range, got %v", err)
	}
}

func TestLinkValidatesEntryPoint(t *testing.T) {
	img := &Image{
		Version: FormatVersion,
		Name:    "noentry",
		Entry:   EntryPoint{Class: "A", Method: "main"},
		Classes: []ClassRecord{{Name: "A"}},
	}
	err := NewLinker(vm.NewVM()).Link(img)
	if err == nil || !strings.Contains(err.Error(), "entry point") {
		t.Errorf("Link should reject a missing entry method, got %v", err)
	}
}

func TestFailedLinkRegistersNothing(t *testing.T) {
	img := &Image{
		Version: FormatVersion,
		Name:    "partial",
		Classes: []ClassRecord{
			{Name: "Good"},
			{Name: "Bad", Super: "Missing"},
		},
	}
	target := vm.NewVM()
	if err := NewLinker(target).Link(img); err == nil {
		t.Fatal("Link should fail")
	}
	if target.Classes.Has("Good") {
		t.Error("a failed link should not register any image class")
	}
}
