package vm

import (
	"errors"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Instance construction tests
// ---------------------------------------------------------------------------

func TestConstructRunsInitializersRootFirst(t *testing.T) {
	vm := NewVM()
	in := vm.NewContext()

	parent := buildClass(vm, "Parent", vm.ObjectClass)
	parent.AddField("p", KindInt) // slot 0
	parentInit := NewMethodBuilder("<init-fields>").
		PushSelf().PushInt(1).PutField(0).
		Return().Build()
	parentInit.Class = parent
	parent.InstanceInit = parentInit

	child := buildClass(vm, "Child", parent)
	child.AddField("c", KindInt) // slot 1
	// c = p + 1 observes the parent's initializer having already run.
	childInit := NewMethodBuilder("<init-fields>").
		PushSelf().
		PushSelf().GetField(0).PushInt(1).Add().
		PutField(1).
		Return().Build()
	childInit.Class = child
	child.InstanceInit = childInit

	v, terr := vm.ConstructInstance(in, child, "", nil)
	if terr != nil {
		t.Fatalf("ConstructInstance failed: %v", terr)
	}
	inst := InstanceFromValue(v)
	if got := inst.GetField("p").SmallInt(); got != 1 {
		t.Errorf("p = %d, want 1", got)
	}
	if got := inst.GetField("c").SmallInt(); got != 2 {
		t.Errorf("c = %d, want 2", got)
	}
}

func TestConstructorRunsAfterInitializers(t *testing.T) {
	vm := NewVM()
	in := vm.NewContext()

	point := buildClass(vm, "Point", vm.ObjectClass)
	point.AddField("x", KindInt) // slot 0
	pointInit := NewMethodBuilder("<init-fields>").
		PushSelf().PushInt(5).PutField(0).
		Return().Build()
	pointInit.Class = point
	point.InstanceInit = pointInit

	// The constructor overwrites the initializer's value.
	point.AddMethod(NewMethodBuilder("init").Args(KindInt).
		PushSelf().PushLocal(0).PutField(0).
		Return().Build())

	v, terr := vm.ConstructInstance(in, point, "init", []Value{FromSmallInt(10)})
	if terr != nil {
		t.Fatalf("ConstructInstance failed: %v", terr)
	}
	if got := InstanceFromValue(v).GetField("x").SmallInt(); got != 10 {
		t.Errorf("x = %d, want the constructor's 10", got)
	}
}

func TestConstructWithoutConstructorLeavesDefaults(t *testing.T) {
	vm := NewVM()
	in := vm.NewContext()

	c := buildClass(vm, "Bare", vm.ObjectClass)
	c.AddField("r", KindRef)
	c.AddField("n", KindInt)

	v, terr := vm.ConstructInstance(in, c, "", nil)
	if terr != nil {
		t.Fatalf("ConstructInstance failed: %v", terr)
	}
	inst := InstanceFromValue(v)
	if !inst.GetField("r").IsNil() {
		t.Error("ref field should default to nil")
	}
	if got := inst.GetField("n").SmallInt(); got != 0 {
		t.Errorf("int field = %d, want 0", got)
	}
}

func TestConstructTriggersStaticInit(t *testing.T) {
	vm := NewVM()
	in := vm.NewContext()

	ran := false
	c := buildClass(vm, "Lazy", vm.ObjectClass)
	nativeClinit(c, func(vm *VM, in *Interp, recv Value, args []Value) (Value, *Throwable) {
		ran = true
		return Nil, nil
	})

	if _, terr := vm.ConstructInstance(in, c, "", nil); terr != nil {
		t.Fatalf("ConstructInstance failed: %v", terr)
	}
	if !ran {
		t.Error("construction should run the static initializer first")
	}
}

// ---------------------------------------------------------------------------
// Construction failure tests
// ---------------------------------------------------------------------------

func TestThrowingInitializerDiscardsInstance(t *testing.T) {
	vm := NewVM()
	in := vm.NewContext()

	c := buildClass(vm, "Doomed", vm.ObjectClass)
	c.AddField("x", KindInt)
	doomedInit := NewMethodBuilder("<init-fields>").
		ThrowNew("RuntimeException", "field init failed").
		Build()
	doomedInit.Class = c
	c.InstanceInit = doomedInit

	before := vm.retained()
	v, terr := vm.ConstructInstance(in, c, "", nil)
	if terr == nil {
		t.Fatal("construction should fail when an initializer throws")
	}
	if !terr.IsA(vm.RuntimeExceptionClass) {
		t.Errorf("thrown class = %s, want RuntimeException", terr.Class)
	}
	if !v.IsNil() {
		t.Error("a failed construction should not publish the instance")
	}
	if vm.retained() != before {
		t.Error("the partial instance should be discarded")
	}
}

func TestThrowingConstructorDiscardsInstance(t *testing.T) {
	vm := NewVM()
	in := vm.NewContext()

	c := buildClass(vm, "Doomed", vm.ObjectClass)
	c.AddMethod(NewMethodBuilder("init").
		ThrowNew("RuntimeException", "ctor failed").
		Build())

	v, terr := vm.ConstructInstance(in, c, "init", nil)
	if terr == nil {
		t.Fatal("construction should fail when the constructor throws")
	}
	if !v.IsNil() {
		t.Error("a failed construction should not publish the instance")
	}
}

// Construction from several contexts at once must not corrupt the
// retained-instance set shared through the VM.
func TestConcurrentConstructionRetainsEveryInstance(t *testing.T) {
	vm := NewVM()
	c := buildClass(vm, "Shared", vm.ObjectClass)
	c.AddField("x", KindInt)

	const contexts = 8
	const perContext = 200
	var wg sync.WaitGroup
	errs := make([]*Throwable, contexts)
	for i := 0; i < contexts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := vm.NewContext()
			for j := 0; j < perContext; j++ {
				if _, terr := vm.ConstructInstance(in, c, "", nil); terr != nil {
					errs[i] = terr
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i, terr := range errs {
		if terr != nil {
			t.Errorf("context %d: ConstructInstance failed: %v", i, terr)
		}
	}
	if got := vm.retained(); got != contexts*perContext {
		t.Errorf("retained %d instances, want %d", got, contexts*perContext)
	}
}

func TestHostNewReportsConstructionFailure(t *testing.T) {
	vm := NewVM()
	c := buildClass(vm, "Doomed", vm.ObjectClass)
	c.AddMethod(NewMethodBuilder("init").
		ThrowNew("RuntimeException", "ctor failed").
		Build())

	_, err := vm.New("Doomed", "init")
	var uncaught *UncaughtError
	if !errors.As(err, &uncaught) {
		t.Fatalf("New should report an uncaught exception, got %v", err)
	}
	if uncaught.Thrown.Message != "ctor failed" {
		t.Errorf("message = %q, want %q", uncaught.Thrown.Message, "ctor failed")
	}
}
