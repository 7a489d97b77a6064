package vm

import (
	"math"
	"sync"
	"unsafe"
)

// Value represents a litevm value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-float values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish types.
//
// Encoding scheme:
//   - Float: Native IEEE 754 double (if not a NaN, it's a float)
//   - SmallInt: Quiet NaN + tagInt + 48-bit signed payload
//   - Instance: Quiet NaN + tagInstance + 48-bit pointer
//   - String: Quiet NaN + tagString + intern-table ID
//   - Throwable: Quiet NaN + tagThrowable + registry ID
//   - Special: Quiet NaN + tagSpecial + special value ID (nil/true/false)
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for pointer/int/id
	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position)
	tagInstance  uint64 = 0x0001000000000000 // Heap instance pointer
	tagInt       uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial   uint64 = 0x0003000000000000 // nil, true, false
	tagString    uint64 = 0x0004000000000000 // Interned string ID
	tagThrowable uint64 = 0x0005000000000000 // Throwable registry ID

	// Sign bit for 48-bit integer sign extension
	intSignBit uint64 = 0x0000800000000000

	// Mask for sign extension
	intSignExtend uint64 = 0xFFFF000000000000
)

// Special value payloads
const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special values
const (
	Nil   Value = Value(nanBits | tagSpecial | specialNil)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)
)

// SmallInt range (48-bit signed)
const (
	MaxSmallInt int64 = (1 << 47) - 1
	MinSmallInt int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Declared slot kinds and their defaults
// ---------------------------------------------------------------------------

// Kind is the declared type of a field or local slot. The default value of
// a slot is derived solely from its kind, so a slot never holds an
// observable "uninitialized" state.
type Kind uint8

const (
	KindRef Kind = iota
	KindBoolean
	KindChar
	KindInt
	KindLong
	KindFloat
	KindDouble
)

var kindNames = [...]string{"ref", "boolean", "char", "int", "long", "float", "double"}

// String returns the source-level name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// DefaultValue returns the defined default for a slot of the given kind:
// zero for the numeric kinds, false for boolean, nil for references.
func DefaultValue(k Kind) Value {
	switch k {
	case KindBoolean:
		return False
	case KindChar, KindInt, KindLong:
		return FromSmallInt(0)
	case KindFloat, KindDouble:
		return FromFloat64(0)
	default:
		return Nil
	}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value.
// A value is a float if it's not one of our tagged NaN values.
// This includes regular numbers, infinities, and "real" NaN values.
func (v Value) IsFloat() bool {
	bits := uint64(v)

	// Check if it's a NaN or Infinity (exponent all 1s)
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}

	// Exponent is all 1s. Infinity has mantissa == 0 (ignoring sign bit).
	mantissa := bits & 0x000FFFFFFFFFFFFF
	if mantissa == 0 {
		return true
	}

	// It's a NaN. Signaling NaNs and untagged quiet NaNs are floats.
	if (bits & nanBits) != nanBits {
		return true
	}
	tag := bits & tagMask
	if tag == 0 {
		return true
	}

	// It's one of our tagged non-float values
	return false
}

// IsSmallInt returns true if v represents a small integer.
func (v Value) IsSmallInt() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagInt)
}

// IsInstance returns true if v represents a heap instance pointer.
func (v Value) IsInstance() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagInstance)
}

// IsString returns true if v represents an interned string.
func (v Value) IsString() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagString)
}

// IsThrowable returns true if v represents a registered throwable.
func (v Value) IsThrowable() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagThrowable)
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// IsSpecial returns true if v is nil, true, or false.
func (v Value) IsSpecial() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSpecial)
}

// ---------------------------------------------------------------------------
// Float operations
// ---------------------------------------------------------------------------

// Float64 returns v as a float64.
// Panics if v is not a float.
func (v Value) Float64() float64 {
	if !v.IsFloat() {
		panic("Value.Float64: not a float")
	}
	return math.Float64frombits(uint64(v))
}

// FromFloat64 creates a Value from a float64.
func FromFloat64(f float64) Value {
	return Value(math.Float64bits(f))
}

// ---------------------------------------------------------------------------
// SmallInt operations
// ---------------------------------------------------------------------------

// SmallInt returns v as an int64.
// Panics if v is not a small integer.
func (v Value) SmallInt() int64 {
	if !v.IsSmallInt() {
		panic("Value.SmallInt: not a small integer")
	}
	payload := uint64(v) & payloadMask

	// Sign extend from 48 bits to 64 bits
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// FromSmallInt creates a Value from an int64.
// Panics if n is outside the SmallInt range.
func FromSmallInt(n int64) Value {
	if n > MaxSmallInt || n < MinSmallInt {
		panic("FromSmallInt: value out of range")
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask))
}

// ---------------------------------------------------------------------------
// Instance pointer operations
// ---------------------------------------------------------------------------

// InstancePtr returns v as an unsafe.Pointer to the heap instance.
// Panics if v is not an instance.
func (v Value) InstancePtr() unsafe.Pointer {
	if !v.IsInstance() {
		panic("Value.InstancePtr: not an instance")
	}
	ptr := uintptr(uint64(v) & payloadMask)
	return unsafe.Pointer(ptr)
}

// FromInstancePtr creates a Value from an unsafe.Pointer.
// The pointer must fit in 48 bits (true for all current architectures).
func FromInstancePtr(ptr unsafe.Pointer) Value {
	return Value(nanBits | tagInstance | uint64(uintptr(ptr)))
}

// ---------------------------------------------------------------------------
// Boolean operations
// ---------------------------------------------------------------------------

// Bool returns v as a bool.
// Panics if v is not true or false.
func (v Value) Bool() bool {
	switch v {
	case True:
		return true
	case False:
		return false
	default:
		panic("Value.Bool: not a boolean")
	}
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// IsTruthy returns true if v is considered "truthy" in conditionals.
// Only false and nil are falsy; everything else is truthy.
func (v Value) IsTruthy() bool {
	return v != False && v != Nil
}

// ---------------------------------------------------------------------------
// Interned strings
// ---------------------------------------------------------------------------

// The intern table is process-wide so that string Values compare by
// identity regardless of which VM produced them. IDs stay in the low
// payload range; the throwable registry uses its own tag.
var (
	internMu    sync.RWMutex
	internIDs   = make(map[string]uint32)
	internNames []string
)

// Str returns the interned string Value for s. Interning the same string
// twice yields the same Value.
func Str(s string) Value {
	internMu.RLock()
	id, ok := internIDs[s]
	internMu.RUnlock()
	if ok {
		return Value(nanBits | tagString | uint64(id))
	}

	internMu.Lock()
	defer internMu.Unlock()
	if id, ok = internIDs[s]; ok {
		return Value(nanBits | tagString | uint64(id))
	}
	id = uint32(len(internNames))
	internIDs[s] = id
	internNames = append(internNames, s)
	return Value(nanBits | tagString | uint64(id))
}

// StringOf returns the Go string for an interned string Value.
// Panics if v is not a string.
func (v Value) StringOf() string {
	if !v.IsString() {
		panic("Value.StringOf: not a string")
	}
	id := uint32(uint64(v) & payloadMask)
	internMu.RLock()
	defer internMu.RUnlock()
	if int(id) >= len(internNames) {
		panic("Value.StringOf: unknown string id")
	}
	return internNames[id]
}
