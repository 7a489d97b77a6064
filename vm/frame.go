package vm

import "fmt"

// ---------------------------------------------------------------------------
// Frame: execution state of a single method invocation
// ---------------------------------------------------------------------------

// Frame holds one active invocation: its local slots, operand stack,
// instruction cursor, and the outcomes pending behind in-progress finally
// regions. A frame's locals are exclusively owned by the frame and are
// invalid once it is popped.
type Frame struct {
	Method   *Method
	Receiver Value

	Locals []Value

	// PC is the cursor into the method's instruction stream. opPC is the
	// offset of the instruction currently executing; handler-range checks
	// and stack traces use opPC, not the advanced cursor.
	PC   int
	opPC int

	stack []Value

	// pending stacks the outcomes suspended while their finally regions
	// run, innermost last. Each resumes at its EndFinally, unless a new
	// return or throw inside the finally replaces it.
	pending []pendingOutcome
}

type pendingOutcome struct {
	out   outcome
	pc    int // offset the outcome was dispatched from
	entry int // handler-table index that fired; resume scanning after it
}

// newFrame seeds locals with args at the leading positions and the
// remaining slots at their declared kind's default.
func newFrame(m *Method, recv Value, args []Value) *Frame {
	f := &Frame{
		Method:   m,
		Receiver: recv,
		Locals:   make([]Value, m.NumLocals()),
		stack:    make([]Value, 0, 8),
	}
	if len(args) != len(m.Params) {
		panic(fmt.Sprintf("frame %s: got %d args, want %d", m, len(args), len(m.Params)))
	}
	copy(f.Locals, args)
	for i, kind := range m.Locals {
		f.Locals[len(m.Params)+i] = DefaultValue(kind)
	}
	return f
}

// push adds a value to the operand stack.
func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

// pop removes and returns the top of the operand stack.
// An empty stack is a loader contract violation; fail fast.
func (f *Frame) pop() Value {
	if len(f.stack) == 0 {
		panic(fmt.Sprintf("frame %s: operand stack underflow at pc %d", f.Method, f.opPC))
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

// clearStack empties the operand stack; handler entry discards any
// partially evaluated expression state.
func (f *Frame) clearStack() {
	f.stack = f.stack[:0]
}

// readU8 reads an 8-bit operand and advances the cursor.
func (f *Frame) readU8() uint8 {
	v := f.Method.Code[f.PC]
	f.PC++
	return v
}

// readI8 reads a signed 8-bit operand and advances the cursor.
func (f *Frame) readI8() int8 {
	return int8(f.readU8())
}

// readU16 reads a 16-bit operand (big-endian) and advances the cursor by 2.
func (f *Frame) readU16() uint16 {
	v := uint16(f.Method.Code[f.PC])<<8 | uint16(f.Method.Code[f.PC+1])
	f.PC += 2
	return v
}

// readI32 reads a signed 32-bit operand (big-endian) and advances the cursor by 4.
func (f *Frame) readI32() int32 {
	code := f.Method.Code
	v := uint32(code[f.PC])<<24 | uint32(code[f.PC+1])<<16 | uint32(code[f.PC+2])<<8 | uint32(code[f.PC+3])
	f.PC += 4
	return int32(v)
}

// literal returns the pooled literal at the given index.
func (f *Frame) literal(idx int) Value {
	lits := f.Method.Literals
	if idx < 0 || idx >= len(lits) {
		panic(fmt.Sprintf("frame %s: literal index %d out of range", f.Method, idx))
	}
	return lits[idx]
}
