package vm

import (
	"unsafe"
)

// Instance represents a heap-allocated object of a user class.
//
// Instances use a hybrid slot layout optimized for common cases:
//   - 4 inline slots for classes with ≤4 instance fields (most classes)
//   - Overflow slice for classes with >4 instance fields
//
// This avoids slice allocation overhead for the common case while
// still supporting instances of arbitrary size. There is one slot per
// field in the full inheritance chain, inherited fields first.
type Instance struct {
	class *Class

	// Inline slots for the first 4 instance fields.
	slot0 Value
	slot1 Value
	slot2 Value
	slot3 Value

	// Overflow for instances with >4 fields.
	// Only allocated when needed.
	overflow []Value
}

// NumInlineSlots is the number of slots stored directly in the Instance struct.
const NumInlineSlots = 4

// ---------------------------------------------------------------------------
// Instance creation
// ---------------------------------------------------------------------------

// NewInstance allocates an instance of c with every slot set to the
// declared default of its field's kind. The slot table covers the full
// ancestor chain, so inherited fields are at their defaults too.
func NewInstance(c *Class) *Instance {
	inst := &Instance{class: c}

	numSlots := c.NumSlots
	if numSlots > NumInlineSlots {
		inst.overflow = make([]Value, numSlots-NumInlineSlots)
	}

	for _, f := range c.AllFields() {
		inst.SetSlot(f.Slot, DefaultValue(f.Kind))
	}
	// Slots beyond the declared fields stay Nil.
	for i := len(c.AllFields()); i < NumInlineSlots; i++ {
		inst.SetSlot(i, Nil)
	}
	return inst
}

// Class returns the instance's class.
func (inst *Instance) Class() *Class {
	return inst.class
}

// ---------------------------------------------------------------------------
// Slot access
// ---------------------------------------------------------------------------

// GetSlot returns the value at the given slot index.
// Panics if index is out of range.
func (inst *Instance) GetSlot(index int) Value {
	switch index {
	case 0:
		return inst.slot0
	case 1:
		return inst.slot1
	case 2:
		return inst.slot2
	case 3:
		return inst.slot3
	default:
		overflowIdx := index - NumInlineSlots
		if overflowIdx < 0 || overflowIdx >= len(inst.overflow) {
			panic("Instance.GetSlot: index out of range")
		}
		return inst.overflow[overflowIdx]
	}
}

// SetSlot sets the value at the given slot index.
// Panics if index is out of range.
func (inst *Instance) SetSlot(index int, value Value) {
	switch index {
	case 0:
		inst.slot0 = value
	case 1:
		inst.slot1 = value
	case 2:
		inst.slot2 = value
	case 3:
		inst.slot3 = value
	default:
		overflowIdx := index - NumInlineSlots
		if overflowIdx < 0 || overflowIdx >= len(inst.overflow) {
			panic("Instance.SetSlot: index out of range")
		}
		inst.overflow[overflowIdx] = value
	}
}

// GetField returns the value of the named field, searching the full
// inheritance chain. Panics if the field does not exist.
func (inst *Instance) GetField(name string) Value {
	slot := inst.class.SlotIndex(name)
	if slot < 0 {
		panic("Instance.GetField: no such field " + name)
	}
	return inst.GetSlot(slot)
}

// SetField sets the value of the named field, searching the full
// inheritance chain. Panics if the field does not exist.
func (inst *Instance) SetField(name string, value Value) {
	slot := inst.class.SlotIndex(name)
	if slot < 0 {
		panic("Instance.SetField: no such field " + name)
	}
	inst.SetSlot(slot, value)
}

// ---------------------------------------------------------------------------
// Value conversion helpers
// ---------------------------------------------------------------------------

// ToValue converts an Instance pointer to a NaN-boxed Value.
func (inst *Instance) ToValue() Value {
	return FromInstancePtr(unsafe.Pointer(inst))
}

// InstanceFromValue extracts an Instance pointer from a NaN-boxed Value.
// Returns nil if the value is not an instance.
func InstanceFromValue(v Value) *Instance {
	if !v.IsInstance() {
		return nil
	}
	return (*Instance)(v.InstancePtr())
}

// ClassName returns the name of the instance's class, or "?" if unset.
func (inst *Instance) ClassName() string {
	if inst.class == nil {
		return "?"
	}
	return inst.class.Name
}
