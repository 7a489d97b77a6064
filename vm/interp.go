package vm

import "fmt"

// ---------------------------------------------------------------------------
// Interp: one execution context's interpreter
// ---------------------------------------------------------------------------

// Interp executes bytecode over its own frame stack. One interpreter is
// active per logical execution context; instruction execution,
// initializer execution, and unwinding all run to completion without
// preemption within a context. The class table and static store on the
// VM are the only state shared between contexts.
type Interp struct {
	vm       *VM
	frames   []*Frame
	maxDepth int
}

// Depth returns the number of active frames.
func (in *Interp) Depth() int {
	return len(in.frames)
}

// currentFrame returns the innermost frame, or nil.
func (in *Interp) currentFrame() *Frame {
	if len(in.frames) == 0 {
		return nil
	}
	return in.frames[len(in.frames)-1]
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// Invoke runs a method to completion and reports an uncaught throwable
// as an *UncaughtError. This is the host-facing entry point.
func (in *Interp) Invoke(m *Method, recv Value, args []Value) (Value, error) {
	out := in.invoke(m, recv, args)
	switch out.kind {
	case outcomeThrow:
		in.vm.log.Errorf("uncaught %s", out.thrown)
		return Nil, &UncaughtError{Thrown: out.thrown}
	case outcomeReturn:
		return out.value, nil
	default:
		return Nil, nil
	}
}

// invoke pushes a frame for the method, runs it, and pops the frame. The
// frame stack is strictly LIFO; a popped frame is never referenced again.
// Exceeding the configured depth raises a StackOverflowError throwable
// instead of pushing.
func (in *Interp) invoke(m *Method, recv Value, args []Value) outcome {
	if m.IsNative() {
		v, t := m.Native(in.vm, in, recv, args)
		if t != nil {
			return throwOutcome(t)
		}
		return returnOutcome(v)
	}

	if len(in.frames) >= in.maxDepth {
		t := NewThrowable(in, in.vm.StackOverflowErrorClass,
			fmt.Sprintf("call depth exceeded %d invoking %s", in.maxDepth, m))
		return throwOutcome(t)
	}

	f := newFrame(m, recv, args)
	in.frames = append(in.frames, f)
	out := in.run(f)
	in.frames = in.frames[:len(in.frames)-1]
	return out
}

// ---------------------------------------------------------------------------
// Execution loop
// ---------------------------------------------------------------------------

// run executes the frame until an outcome leaves it. Return and throw
// outcomes pass through the frame's handler table before exiting, so
// finally regions run on every exit.
func (in *Interp) run(f *Frame) outcome {
	vm := in.vm
	code := f.Method.Code

	for {
		if f.PC >= len(code) {
			panic(fmt.Sprintf("interp: %s: fell off end of bytecode", f.Method))
		}
		f.opPC = f.PC
		op := Opcode(code[f.PC])
		f.PC++

		switch op {
		case OpNop:

		case OpPop:
			f.pop()

		case OpDup:
			v := f.pop()
			f.push(v)
			f.push(v)

		case OpPushNil:
			f.push(Nil)
		case OpPushTrue:
			f.push(True)
		case OpPushFalse:
			f.push(False)
		case OpPushSelf:
			f.push(f.Receiver)
		case OpPushInt8:
			f.push(FromSmallInt(int64(f.readI8())))
		case OpPushInt32:
			f.push(FromSmallInt(int64(f.readI32())))
		case OpPushLiteral:
			f.push(f.literal(int(f.readU16())))

		case OpPushLocal:
			f.push(f.Locals[f.readU8()])
		case OpStoreLocal:
			f.Locals[f.readU8()] = f.pop()

		case OpGetField:
			slot := int(f.readU8())
			obj := f.pop()
			if obj.IsNil() {
				if done, exit := in.raise(f, vm.NullReferenceErrorClass, "null dereference reading field"); done {
					return exit
				}
				continue
			}
			f.push(mustInstance(f, obj).GetSlot(slot))

		case OpPutField:
			slot := int(f.readU8())
			value := f.pop()
			obj := f.pop()
			if obj.IsNil() {
				if done, exit := in.raise(f, vm.NullReferenceErrorClass, "null dereference writing field"); done {
					return exit
				}
				continue
			}
			mustInstance(f, obj).SetSlot(slot, value)

		case OpGetStatic:
			class := in.resolveClass(f, int(f.readU16()))
			slot := int(f.readU8())
			if t := vm.EnsureInitialized(in, class); t != nil {
				if done, exit := in.finishOutcome(f, throwOutcome(t)); done {
					return exit
				}
				continue
			}
			f.push(vm.Statics.Get(class, slot))

		case OpPutStatic:
			class := in.resolveClass(f, int(f.readU16()))
			slot := int(f.readU8())
			if t := vm.EnsureInitialized(in, class); t != nil {
				if done, exit := in.finishOutcome(f, throwOutcome(t)); done {
					return exit
				}
				continue
			}
			vm.Statics.Set(class, slot, f.pop())

		case OpAdd, OpSub, OpMul, OpDiv, OpLt:
			b := f.pop()
			a := f.pop()
			v, t := in.arith(op, a, b)
			if t != nil {
				if done, exit := in.finishOutcome(f, throwOutcome(t)); done {
					return exit
				}
				continue
			}
			f.push(v)

		case OpEq:
			b := f.pop()
			a := f.pop()
			f.push(FromBool(a == b))

		case OpJump:
			f.PC = int(f.readU16())

		case OpJumpFalse:
			target := int(f.readU16())
			if !f.pop().IsTruthy() {
				f.PC = target
			}

		case OpCall:
			name := f.literal(int(f.readU16())).StringOf()
			argc := int(f.readU8())
			args := f.popArgs(argc)
			recv := f.pop()
			if recv.IsNil() {
				if done, exit := in.raise(f, vm.NullReferenceErrorClass, "null dereference invoking "+name); done {
					return exit
				}
				continue
			}
			m := in.resolveMethod(f, recv, name)
			out := in.invoke(m, recv, args)
			if out.kind == outcomeThrow {
				if done, exit := in.finishOutcome(f, out); done {
					return exit
				}
				continue
			}
			f.push(out.value)

		case OpCallStatic:
			class := in.resolveClass(f, int(f.readU16()))
			name := f.literal(int(f.readU16())).StringOf()
			argc := int(f.readU8())
			args := f.popArgs(argc)
			if t := vm.EnsureInitialized(in, class); t != nil {
				if done, exit := in.finishOutcome(f, throwOutcome(t)); done {
					return exit
				}
				continue
			}
			m := class.LookupMethod(name)
			if m == nil {
				panic(fmt.Sprintf("interp: %s: no static method %s.%s", f.Method, class.Name, name))
			}
			out := in.invoke(m, Nil, args)
			if out.kind == outcomeThrow {
				if done, exit := in.finishOutcome(f, out); done {
					return exit
				}
				continue
			}
			f.push(out.value)

		case OpNew:
			class := in.resolveClass(f, int(f.readU16()))
			ctor := f.literal(int(f.readU16())).StringOf()
			argc := int(f.readU8())
			args := f.popArgs(argc)
			recv, t := vm.ConstructInstance(in, class, ctor, args)
			if t != nil {
				if done, exit := in.finishOutcome(f, throwOutcome(t)); done {
					return exit
				}
				continue
			}
			f.push(recv)

		case OpReturn:
			if done, exit := in.finishOutcome(f, returnOutcome(Nil)); done {
				return exit
			}

		case OpReturnValue:
			if done, exit := in.finishOutcome(f, returnOutcome(f.pop())); done {
				return exit
			}

		case OpThrow:
			v := f.pop()
			t := ThrowableFromValue(v)
			if t == nil {
				panic(fmt.Sprintf("interp: %s: THROW on non-throwable at pc %d", f.Method, f.opPC))
			}
			if done, exit := in.finishOutcome(f, throwOutcome(t)); done {
				return exit
			}

		case OpThrowNew:
			class := in.resolveClass(f, int(f.readU16()))
			message := f.literal(int(f.readU16())).StringOf()
			if t := vm.EnsureInitialized(in, class); t != nil {
				if done, exit := in.finishOutcome(f, throwOutcome(t)); done {
					return exit
				}
				continue
			}
			t := NewThrowable(in, class, message)
			if done, exit := in.finishOutcome(f, throwOutcome(t)); done {
				return exit
			}

		case OpEndFinally:
			region := int(f.readU16())
			if len(f.pending) == 0 {
				panic(fmt.Sprintf("interp: %s: END_FINALLY with no pending outcome at pc %d", f.Method, f.opPC))
			}
			p := f.pending[len(f.pending)-1]
			if owner := f.Method.Handlers[p.entry].Target; owner != region {
				panic(fmt.Sprintf("interp: %s: END_FINALLY closes region at %d but the pending outcome belongs to region at %d",
					f.Method, region, owner))
			}
			f.pending = f.pending[:len(f.pending)-1]
			handled, exit := in.dispatch(f, p.out, p.pc, p.entry+1)
			if !handled {
				return exit
			}

		default:
			panic(fmt.Sprintf("interp: %s: unknown opcode 0x%02x at pc %d", f.Method, byte(op), f.opPC))
		}
	}
}

// ---------------------------------------------------------------------------
// Outcome dispatch (the unwinding engine, per frame)
// ---------------------------------------------------------------------------

// finishOutcome runs a return or throw outcome through the frame's
// handler table. done=false means a handler consumed the outcome and
// execution continues inside the frame; done=true means the outcome
// leaves the frame and run must return exit.
func (in *Interp) finishOutcome(f *Frame, out outcome) (done bool, exit outcome) {
	handled, exit := in.dispatch(f, out, f.opPC, 0)
	return !handled, exit
}

// dispatch scans the handler table in declaration order, starting at
// fromEntry, for entries guarding atPC.
//
// A matching catch entry transfers control to its target with the thrown
// value as the only operand; the outcome is consumed. A matching finally
// entry suspends the outcome on the frame's pending stack and transfers
// control to the finally region; EndFinally names the region it closes
// and resumes the scan after the fired entry, panicking when the top
// pending record belongs to a different region. A return or throw
// executed inside the finally region dispatches in its own right,
// replacing the suspended outcome, whose pending record dies with the
// frame.
//
// No match: the outcome leaves the frame. For a throw, the caller
// redispatches it at the call instruction's offset; at the bottom of the
// stack it becomes the uncaught-exception terminal condition.
func (in *Interp) dispatch(f *Frame, out outcome, atPC int, fromEntry int) (handled bool, exit outcome) {
	table := f.Method.Handlers
	for idx := fromEntry; idx < len(table); idx++ {
		h := &table[idx]
		if !h.matches(atPC, out) {
			continue
		}
		f.clearStack()
		if h.Finally {
			f.pending = append(f.pending, pendingOutcome{out: out, pc: atPC, entry: idx})
			f.PC = h.Target
			return true, outcome{}
		}
		f.push(out.thrown.ToValue())
		f.PC = h.Target
		return true, outcome{}
	}
	return false, out
}

// raise constructs a throwable of the given class at the current
// instruction (capturing the stack trace now) and dispatches it.
func (in *Interp) raise(f *Frame, class *Class, message string) (done bool, exit outcome) {
	t := NewThrowable(in, class, message)
	return in.finishOutcome(f, throwOutcome(t))
}

// ---------------------------------------------------------------------------
// Resolution helpers
// ---------------------------------------------------------------------------

// resolveClass looks up the class named by a string literal. A missing
// class is a loader contract violation.
func (in *Interp) resolveClass(f *Frame, lit int) *Class {
	name := f.literal(lit).StringOf()
	c := in.vm.Classes.Lookup(name)
	if c == nil {
		panic(fmt.Sprintf("interp: %s: unknown class %q at pc %d", f.Method, name, f.opPC))
	}
	return c
}

// resolveMethod dispatches a method name against the receiver's class
// chain. A missing method is a loader contract violation.
func (in *Interp) resolveMethod(f *Frame, recv Value, name string) *Method {
	class := in.vm.ClassOf(recv)
	if class == nil {
		panic(fmt.Sprintf("interp: %s: receiver has no class for %q at pc %d", f.Method, name, f.opPC))
	}
	m := class.LookupMethod(name)
	if m == nil {
		panic(fmt.Sprintf("interp: %s: no method %s.%s", f.Method, class.Name, name))
	}
	return m
}

// popArgs pops argc arguments pushed left to right.
func (f *Frame) popArgs(argc int) []Value {
	if argc == 0 {
		return nil
	}
	args := make([]Value, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = f.pop()
	}
	return args
}

// mustInstance unwraps an instance value; anything else is a loader
// contract violation at a field access site.
func mustInstance(f *Frame, v Value) *Instance {
	inst := InstanceFromValue(v)
	if inst == nil {
		panic(fmt.Sprintf("interp: %s: field access on non-instance at pc %d", f.Method, f.opPC))
	}
	return inst
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// arith applies a binary numeric opcode. Integer division by zero raises
// ArithmeticError; mixed int/float operands promote to float.
func (in *Interp) arith(op Opcode, a, b Value) (Value, *Throwable) {
	if a.IsSmallInt() && b.IsSmallInt() {
		x, y := a.SmallInt(), b.SmallInt()
		switch op {
		case OpAdd:
			return FromSmallInt(x + y), nil
		case OpSub:
			return FromSmallInt(x - y), nil
		case OpMul:
			return FromSmallInt(x * y), nil
		case OpDiv:
			if y == 0 {
				return Nil, NewThrowable(in, in.vm.ArithmeticErrorClass, "division by zero")
			}
			return FromSmallInt(x / y), nil
		case OpLt:
			return FromBool(x < y), nil
		}
	}

	x, y := toFloat(a), toFloat(b)
	switch op {
	case OpAdd:
		return FromFloat64(x + y), nil
	case OpSub:
		return FromFloat64(x - y), nil
	case OpMul:
		return FromFloat64(x * y), nil
	case OpDiv:
		return FromFloat64(x / y), nil
	case OpLt:
		return FromBool(x < y), nil
	}
	panic("interp: arith: bad opcode")
}

func toFloat(v Value) float64 {
	if v.IsSmallInt() {
		return float64(v.SmallInt())
	}
	return v.Float64()
}
