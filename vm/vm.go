package vm

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: the litevm virtual machine
// ---------------------------------------------------------------------------

// DefaultMaxStackDepth bounds the call frame stack of each execution
// context unless configured otherwise.
const DefaultMaxStackDepth = 1024

// VM owns the state shared by all execution contexts: the class table,
// the static store, and the built-in class hierarchy. Execution happens
// in contexts created with NewContext, each with its own frame stack.
type VM struct {
	Classes *ClassTable
	Statics *StaticStore

	// MaxStackDepth applies to contexts created after it is set.
	MaxStackDepth int

	// Well-known classes (bootstrapped)
	ObjectClass *Class
	StringClass *Class

	// Throwable hierarchy
	ThrowableClass          *Class
	ExceptionClass          *Class
	RuntimeExceptionClass   *Class
	NullReferenceErrorClass *Class
	ArithmeticErrorClass    *Class
	StackOverflowErrorClass *Class
	InitializerErrorClass   *Class

	// keepAlive holds references to instances so the NaN-boxed pointers
	// stay visible to Go's garbage collector. Guarded by keepMu; any
	// context may construct instances.
	keepMu    sync.Mutex
	keepAlive map[*Instance]struct{}

	log commonlog.Logger
}

// NewVM creates and bootstraps a new VM.
func NewVM() *VM {
	vm := &VM{
		Classes:       NewClassTable(),
		Statics:       NewStaticStore(),
		MaxStackDepth: DefaultMaxStackDepth,
		keepAlive:     make(map[*Instance]struct{}),
		log:           commonlog.GetLogger("litevm.vm"),
	}
	vm.bootstrap()
	return vm
}

// NewContext creates a fresh execution context with its own frame
// stack. Contexts may run concurrently; the class table and static store
// are the only shared state, and class initialization is serialized
// per class.
func (vm *VM) NewContext() *Interp {
	return &Interp{vm: vm, maxDepth: vm.MaxStackDepth}
}

// RegisterClass adds a loaded class to the class table.
func (vm *VM) RegisterClass(c *Class) {
	vm.Classes.Register(c)
}

// Retain keeps an externally created instance visible to Go's garbage
// collector for the VM's lifetime.
func (vm *VM) Retain(inst *Instance) Value {
	vm.keepMu.Lock()
	vm.keepAlive[inst] = struct{}{}
	vm.keepMu.Unlock()
	return inst.ToValue()
}

// release drops a never-published instance after a construction failure.
func (vm *VM) release(inst *Instance) {
	vm.keepMu.Lock()
	delete(vm.keepAlive, inst)
	vm.keepMu.Unlock()
}

// retained returns the number of instances held for the collector.
func (vm *VM) retained() int {
	vm.keepMu.Lock()
	defer vm.keepMu.Unlock()
	return len(vm.keepAlive)
}

// ---------------------------------------------------------------------------
// Host entry points
// ---------------------------------------------------------------------------

// Run invokes a static method by class and method name on a fresh
// execution context. An uncaught throwable is reported as
// *UncaughtError.
func (vm *VM) Run(className, methodName string, args ...Value) (Value, error) {
	class := vm.Classes.Lookup(className)
	if class == nil {
		return Nil, fmt.Errorf("vm: unknown class %q", className)
	}
	m := class.LookupMethod(methodName)
	if m == nil {
		return Nil, fmt.Errorf("vm: no method %s.%s", className, methodName)
	}
	in := vm.NewContext()
	if t := vm.EnsureInitialized(in, class); t != nil {
		vm.log.Errorf("uncaught %s", t)
		return Nil, &UncaughtError{Thrown: t}
	}
	return in.Invoke(m, Nil, args)
}

// New constructs an instance from the host, running the full
// initialization sequence. An uncaught construction failure is reported
// as *UncaughtError.
func (vm *VM) New(className, ctorName string, args ...Value) (Value, error) {
	class := vm.Classes.Lookup(className)
	if class == nil {
		return Nil, fmt.Errorf("vm: unknown class %q", className)
	}
	recv, t := vm.ConstructInstance(vm.NewContext(), class, ctorName, args)
	if t != nil {
		vm.log.Errorf("uncaught %s", t)
		return Nil, &UncaughtError{Thrown: t}
	}
	return recv, nil
}

// Throw builds a throwable of the named class for a native bridge,
// capturing the stack trace of the given context at this moment.
func (vm *VM) Throw(in *Interp, className, message string) *Throwable {
	class := vm.Classes.Lookup(className)
	if class == nil {
		class = vm.ThrowableClass
	}
	return NewThrowable(in, class, message)
}

// ClassOf returns the class of a value for method dispatch, or nil for
// values without one (numbers, booleans).
func (vm *VM) ClassOf(v Value) *Class {
	switch {
	case v.IsInstance():
		return InstanceFromValue(v).Class()
	case v.IsString():
		return vm.StringClass
	case v.IsThrowable():
		return ThrowableFromValue(v).Class
	default:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Bootstrap
// ---------------------------------------------------------------------------

// bootstrap creates the built-in class hierarchy. None of these classes
// carry static initializers, so their first use is side-effect free.
func (vm *VM) bootstrap() {
	vm.ObjectClass = vm.createClass("Object", nil)

	vm.StringClass = vm.createClass("String", vm.ObjectClass)
	vm.StringClass.AddMethod(NewNativeMethod("length", 0, nativeStringLength))

	// Throwable is the root of all raised conditions.
	vm.ThrowableClass = vm.createClass("Throwable", vm.ObjectClass)
	vm.ThrowableClass.AddMethod(NewNativeMethod("getMessage", 0, nativeThrowableMessage))

	// Exception and RuntimeException cover user-recoverable conditions.
	vm.ExceptionClass = vm.createClass("Exception", vm.ThrowableClass)
	vm.RuntimeExceptionClass = vm.createClass("RuntimeException", vm.ExceptionClass)

	// NullReferenceError - dereference of an absent reference
	vm.NullReferenceErrorClass = vm.createClass("NullReferenceError", vm.RuntimeExceptionClass)

	// ArithmeticError - integer division by zero
	vm.ArithmeticErrorClass = vm.createClass("ArithmeticError", vm.RuntimeExceptionClass)

	// StackOverflowError - call stack depth exceeded
	vm.StackOverflowErrorClass = vm.createClass("StackOverflowError", vm.ThrowableClass)

	// InitializerError - a static initializer threw; permanent per class
	vm.InitializerErrorClass = vm.createClass("InitializerError", vm.ThrowableClass)
}

func (vm *VM) createClass(name string, superclass *Class) *Class {
	c := NewClass(name, superclass)
	vm.Classes.Register(c)
	return c
}

// ---------------------------------------------------------------------------
// Built-in native methods
// ---------------------------------------------------------------------------

func nativeStringLength(vm *VM, in *Interp, recv Value, args []Value) (Value, *Throwable) {
	return FromSmallInt(int64(len(recv.StringOf()))), nil
}

func nativeThrowableMessage(vm *VM, in *Interp, recv Value, args []Value) (Value, *Throwable) {
	t := ThrowableFromValue(recv)
	if t == nil || t.Message == "" {
		return Nil, nil
	}
	return Str(t.Message), nil
}
