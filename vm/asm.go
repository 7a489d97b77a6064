package vm

import "fmt"

// ---------------------------------------------------------------------------
// MethodBuilder: assembler for building methods without a front end
// ---------------------------------------------------------------------------

// Label is a forward-referenceable bytecode position.
type Label int

// MethodBuilder constructs a Method: bytecode with label fixups, the
// literal pool, handler-table entries, and line markers. Tests and the
// fixture programs use it in place of a compiler front end.
type MethodBuilder struct {
	method   *Method
	bytecode *BytecodeBuilder

	labelPos []int   // position per label, -1 if unbound
	fixups   []fixup // 16-bit target patches awaiting label binding
	handlers []handlerFixup
}

type fixup struct {
	offset int // byte offset of the u16 to patch
	label  Label
}

type handlerFixup struct {
	start, end, target Label
	catch              *Class
	finally            bool
}

// NewMethodBuilder creates a builder for a method with the given name.
func NewMethodBuilder(name string) *MethodBuilder {
	return &MethodBuilder{
		method:   &Method{Name: name},
		bytecode: NewBytecodeBuilder(),
	}
}

// Static marks the method as static.
func (b *MethodBuilder) Static() *MethodBuilder {
	b.method.Static = true
	return b
}

// Args declares the argument kinds in order.
func (b *MethodBuilder) Args(kinds ...Kind) *MethodBuilder {
	b.method.Params = kinds
	return b
}

// Local declares an additional local slot and returns its index.
// The slot starts at its kind's default value on frame entry.
func (b *MethodBuilder) Local(kind Kind) int {
	idx := len(b.method.Params) + len(b.method.Locals)
	b.method.Locals = append(b.method.Locals, kind)
	return idx
}

// Lit adds a literal to the pool and returns its index. Identical
// literals share one pool entry.
func (b *MethodBuilder) Lit(v Value) int {
	for i, existing := range b.method.Literals {
		if existing == v {
			return i
		}
	}
	b.method.Literals = append(b.method.Literals, v)
	return len(b.method.Literals) - 1
}

// MarkLine records a source line for the current bytecode position.
func (b *MethodBuilder) MarkLine(line int) *MethodBuilder {
	b.method.Lines = append(b.method.Lines, LineEntry{Offset: b.bytecode.Len(), Line: line})
	return b
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// NewLabel allocates an unbound label.
func (b *MethodBuilder) NewLabel() Label {
	b.labelPos = append(b.labelPos, -1)
	return Label(len(b.labelPos) - 1)
}

// Bind fixes the label to the current bytecode position.
func (b *MethodBuilder) Bind(l Label) *MethodBuilder {
	b.labelPos[l] = b.bytecode.Len()
	return b
}

// Here returns a label bound to the current position.
func (b *MethodBuilder) Here() Label {
	l := b.NewLabel()
	b.Bind(l)
	return l
}

func (b *MethodBuilder) emitLabelRef(l Label) {
	b.fixups = append(b.fixups, fixup{offset: b.bytecode.Len(), label: l})
	b.bytecode.RawU16(0xFFFF)
}

// ---------------------------------------------------------------------------
// Instruction emitters
// ---------------------------------------------------------------------------

// Nop, Pop and Dup emit the matching stack opcodes.
func (b *MethodBuilder) Nop() *MethodBuilder { b.bytecode.Emit(OpNop); return b }
func (b *MethodBuilder) Pop() *MethodBuilder { b.bytecode.Emit(OpPop); return b }
func (b *MethodBuilder) Dup() *MethodBuilder { b.bytecode.Emit(OpDup); return b }

// PushNil, PushTrue, PushFalse and PushSelf emit constant pushes.
func (b *MethodBuilder) PushNil() *MethodBuilder   { b.bytecode.Emit(OpPushNil); return b }
func (b *MethodBuilder) PushTrue() *MethodBuilder  { b.bytecode.Emit(OpPushTrue); return b }
func (b *MethodBuilder) PushFalse() *MethodBuilder { b.bytecode.Emit(OpPushFalse); return b }
func (b *MethodBuilder) PushSelf() *MethodBuilder  { b.bytecode.Emit(OpPushSelf); return b }

// PushInt emits the smallest integer push that fits the operand.
func (b *MethodBuilder) PushInt(n int64) *MethodBuilder {
	switch {
	case n >= -128 && n <= 127:
		b.bytecode.EmitI8(OpPushInt8, int8(n))
	case n >= -(1<<31) && n < (1<<31):
		b.bytecode.EmitI32(OpPushInt32, int32(n))
	default:
		b.PushLiteral(FromSmallInt(n))
	}
	return b
}

// PushLiteral pools the value and emits a literal push.
func (b *MethodBuilder) PushLiteral(v Value) *MethodBuilder {
	b.bytecode.EmitU16(OpPushLiteral, uint16(b.Lit(v)))
	return b
}

// PushFloat pools a float literal and emits its push.
func (b *MethodBuilder) PushFloat(f float64) *MethodBuilder {
	return b.PushLiteral(FromFloat64(f))
}

// PushStr pools an interned string literal and emits its push.
func (b *MethodBuilder) PushStr(s string) *MethodBuilder {
	return b.PushLiteral(Str(s))
}

// PushLocal and StoreLocal access frame local slots.
func (b *MethodBuilder) PushLocal(idx int) *MethodBuilder {
	b.bytecode.EmitU8(OpPushLocal, uint8(idx))
	return b
}

func (b *MethodBuilder) StoreLocal(idx int) *MethodBuilder {
	b.bytecode.EmitU8(OpStoreLocal, uint8(idx))
	return b
}

// GetField pops an object and pushes its field at the given slot.
func (b *MethodBuilder) GetField(slot int) *MethodBuilder {
	b.bytecode.EmitU8(OpGetField, uint8(slot))
	return b
}

// PutField pops a value, then an object, and stores the field.
func (b *MethodBuilder) PutField(slot int) *MethodBuilder {
	b.bytecode.EmitU8(OpPutField, uint8(slot))
	return b
}

// GetStatic and PutStatic access a static field of the named class.
func (b *MethodBuilder) GetStatic(className string, slot int) *MethodBuilder {
	b.bytecode.EmitU16(OpGetStatic, uint16(b.Lit(Str(className))))
	b.bytecode.RawU8(uint8(slot))
	return b
}

func (b *MethodBuilder) PutStatic(className string, slot int) *MethodBuilder {
	b.bytecode.EmitU16(OpPutStatic, uint16(b.Lit(Str(className))))
	b.bytecode.RawU8(uint8(slot))
	return b
}

// Add, Sub, Mul, Div, Eq and Lt emit the arithmetic/comparison opcodes.
func (b *MethodBuilder) Add() *MethodBuilder { b.bytecode.Emit(OpAdd); return b }
func (b *MethodBuilder) Sub() *MethodBuilder { b.bytecode.Emit(OpSub); return b }
func (b *MethodBuilder) Mul() *MethodBuilder { b.bytecode.Emit(OpMul); return b }
func (b *MethodBuilder) Div() *MethodBuilder { b.bytecode.Emit(OpDiv); return b }
func (b *MethodBuilder) Eq() *MethodBuilder  { b.bytecode.Emit(OpEq); return b }
func (b *MethodBuilder) Lt() *MethodBuilder  { b.bytecode.Emit(OpLt); return b }

// Jump and JumpFalse emit jumps to a label.
func (b *MethodBuilder) Jump(l Label) *MethodBuilder {
	b.bytecode.Emit(OpJump)
	b.emitLabelRef(l)
	return b
}

func (b *MethodBuilder) JumpFalse(l Label) *MethodBuilder {
	b.bytecode.Emit(OpJumpFalse)
	b.emitLabelRef(l)
	return b
}

// Call emits a dynamic method call: receiver pushed first, then argc
// arguments.
func (b *MethodBuilder) Call(name string, argc int) *MethodBuilder {
	b.bytecode.EmitU16(OpCall, uint16(b.Lit(Str(name))))
	b.bytecode.RawU8(uint8(argc))
	return b
}

// CallStatic emits a static method call on the named class.
func (b *MethodBuilder) CallStatic(className, name string, argc int) *MethodBuilder {
	b.bytecode.EmitU16(OpCallStatic, uint16(b.Lit(Str(className))))
	b.bytecode.RawU16(uint16(b.Lit(Str(name))))
	b.bytecode.RawU8(uint8(argc))
	return b
}

// New emits instance construction. An empty ctor name runs field
// initializers only.
func (b *MethodBuilder) New(className, ctor string, argc int) *MethodBuilder {
	b.bytecode.EmitU16(OpNew, uint16(b.Lit(Str(className))))
	b.bytecode.RawU16(uint16(b.Lit(Str(ctor))))
	b.bytecode.RawU8(uint8(argc))
	return b
}

// Return and ReturnValue emit method exits.
func (b *MethodBuilder) Return() *MethodBuilder      { b.bytecode.Emit(OpReturn); return b }
func (b *MethodBuilder) ReturnValue() *MethodBuilder { b.bytecode.Emit(OpReturnValue); return b }

// Throw pops a throwable and begins unwinding.
func (b *MethodBuilder) Throw() *MethodBuilder { b.bytecode.Emit(OpThrow); return b }

// ThrowNew constructs a throwable of the named class (capturing the
// stack trace at that point) and throws it.
func (b *MethodBuilder) ThrowNew(className, message string) *MethodBuilder {
	b.bytecode.EmitU16(OpThrowNew, uint16(b.Lit(Str(className))))
	b.bytecode.RawU16(uint16(b.Lit(Str(message))))
	return b
}

// EndFinally closes the finally region whose body starts at the given
// label, resuming the outcome suspended when the region fired.
func (b *MethodBuilder) EndFinally(body Label) *MethodBuilder {
	b.bytecode.Emit(OpEndFinally)
	b.emitLabelRef(body)
	return b
}

// ---------------------------------------------------------------------------
// Handler table
// ---------------------------------------------------------------------------

// Catch guards [start, end) with a typed catch entry jumping to target.
// A nil class catches any throwable.
func (b *MethodBuilder) Catch(start, end, target Label, class *Class) *MethodBuilder {
	b.handlers = append(b.handlers, handlerFixup{start: start, end: end, target: target, catch: class})
	return b
}

// Finally guards [start, end) with a finally entry jumping to target.
// The finally region must end with EndFinally.
func (b *MethodBuilder) Finally(start, end, target Label) *MethodBuilder {
	b.handlers = append(b.handlers, handlerFixup{start: start, end: end, target: target, finally: true})
	return b
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Build resolves labels and returns the finished method.
// Panics on unbound labels; the builder's caller owns table well-formedness.
func (b *MethodBuilder) Build() *Method {
	for _, f := range b.fixups {
		pos := b.labelPos[f.label]
		if pos < 0 {
			panic(fmt.Sprintf("MethodBuilder %q: unbound label %d", b.method.Name, f.label))
		}
		b.bytecode.PatchU16(f.offset, uint16(pos))
	}
	for _, h := range b.handlers {
		start, end, target := b.labelPos[h.start], b.labelPos[h.end], b.labelPos[h.target]
		if start < 0 || end < 0 || target < 0 {
			panic(fmt.Sprintf("MethodBuilder %q: unbound handler label", b.method.Name))
		}
		b.method.Handlers = append(b.method.Handlers, HandlerEntry{
			Start:   start,
			End:     end,
			Target:  target,
			Catch:   h.catch,
			Finally: h.finally,
		})
	}
	b.method.Code = b.bytecode.Bytes()
	return b.method
}
