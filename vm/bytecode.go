package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNop Opcode = 0x00 // no operation
	OpPop Opcode = 0x01 // discard top of stack
	OpDup Opcode = 0x02 // duplicate top of stack
)

// Push Constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushSelf    Opcode = 0x13 // push the receiver
	OpPushInt8    Opcode = 0x14 // push 8-bit signed integer
	OpPushInt32   Opcode = 0x15 // push 32-bit signed integer
	OpPushLiteral Opcode = 0x16 // push literal from literal pool (16-bit index)
)

// Variable Operations
const (
	OpPushLocal  Opcode = 0x20 // push local slot (8-bit index)
	OpStoreLocal Opcode = 0x21 // pop into local slot (8-bit index)
	OpGetField   Opcode = 0x22 // pop object, push field (8-bit slot)
	OpPutField   Opcode = 0x23 // pop value, pop object, store field (8-bit slot)
	OpGetStatic  Opcode = 0x24 // push static field (16-bit class literal, 8-bit slot)
	OpPutStatic  Opcode = 0x25 // pop into static field (16-bit class literal, 8-bit slot)
)

// Arithmetic and Comparison
const (
	OpAdd Opcode = 0x30 // pop 2, push sum
	OpSub Opcode = 0x31 // pop 2, push difference
	OpMul Opcode = 0x32 // pop 2, push product
	OpDiv Opcode = 0x33 // pop 2, push quotient (zero divisor raises ArithmeticError)
	OpEq  Opcode = 0x34 // pop 2, push identity comparison
	OpLt  Opcode = 0x35 // pop 2, push numeric less-than
)

// Control Flow
const (
	OpJump      Opcode = 0x40 // unconditional jump (16-bit absolute target)
	OpJumpFalse Opcode = 0x41 // pop, jump if falsy (16-bit absolute target)
)

// Invocation and Construction
const (
	OpCall       Opcode = 0x50 // call method on receiver (16-bit name literal, 8-bit argc)
	OpCallStatic Opcode = 0x51 // call static method (16-bit class literal, 16-bit name literal, 8-bit argc)
	OpNew        Opcode = 0x52 // construct instance (16-bit class literal, 16-bit ctor literal, 8-bit argc)
)

// Returns
const (
	OpReturn      Opcode = 0x60 // return with no value
	OpReturnValue Opcode = 0x61 // return top of stack
)

// Exceptions
const (
	OpThrow      Opcode = 0x70 // pop throwable, begin unwinding
	OpThrowNew   Opcode = 0x71 // construct and throw (16-bit class literal, 16-bit message literal)
	OpEndFinally Opcode = 0x72 // resume the outcome suspended for the finally region starting at the operand (16-bit)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", 0},
	OpPop: {"POP", 0},
	OpDup: {"DUP", 0},

	OpPushNil:     {"PUSH_NIL", 0},
	OpPushTrue:    {"PUSH_TRUE", 0},
	OpPushFalse:   {"PUSH_FALSE", 0},
	OpPushSelf:    {"PUSH_SELF", 0},
	OpPushInt8:    {"PUSH_INT8", 1},
	OpPushInt32:   {"PUSH_INT32", 4},
	OpPushLiteral: {"PUSH_LITERAL", 2},

	OpPushLocal:  {"PUSH_LOCAL", 1},
	OpStoreLocal: {"STORE_LOCAL", 1},
	OpGetField:   {"GET_FIELD", 1},
	OpPutField:   {"PUT_FIELD", 1},
	OpGetStatic:  {"GET_STATIC", 3},
	OpPutStatic:  {"PUT_STATIC", 3},

	OpAdd: {"ADD", 0},
	OpSub: {"SUB", 0},
	OpMul: {"MUL", 0},
	OpDiv: {"DIV", 0},
	OpEq:  {"EQ", 0},
	OpLt:  {"LT", 0},

	OpJump:      {"JUMP", 2},
	OpJumpFalse: {"JUMP_FALSE", 2},

	OpCall:       {"CALL", 3},
	OpCallStatic: {"CALL_STATIC", 5},
	OpNew:        {"NEW", 5},

	OpReturn:      {"RETURN", 0},
	OpReturnValue: {"RETURN_VALUE", 0},

	OpThrow:      {"THROW", 0},
	OpThrowNew:   {"THROW_NEW", 4},
	OpEndFinally: {"END_FINALLY", 2},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitU8 appends an opcode with an 8-bit operand.
func (b *BytecodeBuilder) EmitU8(op Opcode, operand uint8) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitI8 appends an opcode with a signed 8-bit operand.
func (b *BytecodeBuilder) EmitI8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitU16 appends an opcode with a 16-bit operand (big-endian).
func (b *BytecodeBuilder) EmitU16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.BigEndian.AppendUint16(b.bytes, operand)
}

// EmitI32 appends an opcode with a signed 32-bit operand (big-endian).
func (b *BytecodeBuilder) EmitI32(op Opcode, operand int32) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(operand))
}

// RawU8 appends a raw byte.
func (b *BytecodeBuilder) RawU8(data byte) {
	b.bytes = append(b.bytes, data)
}

// RawU16 appends a raw 16-bit value (big-endian).
func (b *BytecodeBuilder) RawU16(data uint16) {
	b.bytes = binary.BigEndian.AppendUint16(b.bytes, data)
}

// PatchU16 overwrites the 16-bit value at the given offset (big-endian).
func (b *BytecodeBuilder) PatchU16(offset int, data uint16) {
	binary.BigEndian.PutUint16(b.bytes[offset:], data)
}

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// Disassemble returns a human-readable listing of the bytecode.
func Disassemble(code []byte) string {
	var sb strings.Builder
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		info := op.Info()
		fmt.Fprintf(&sb, "%04d  %s", pc, info.Name)
		for i := 0; i < info.OperandBytes; i++ {
			if pc+1+i < len(code) {
				fmt.Fprintf(&sb, " %02x", code[pc+1+i])
			}
		}
		sb.WriteByte('\n')
		pc += 1 + info.OperandBytes
	}
	return sb.String()
}
