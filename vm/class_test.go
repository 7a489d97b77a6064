package vm

import "testing"

// ---------------------------------------------------------------------------
// Slot layout tests
// ---------------------------------------------------------------------------

func TestSlotNumberingAcrossChain(t *testing.T) {
	parent := NewClass("Parent", nil)
	parent.AddField("a", KindInt)
	parent.AddField("b", KindRef)

	child := NewClass("Child", parent)
	child.AddField("c", KindBoolean)

	if parent.NumSlots != 2 {
		t.Errorf("Parent.NumSlots = %d, want 2", parent.NumSlots)
	}
	if child.NumSlots != 3 {
		t.Errorf("Child.NumSlots = %d, want 3", child.NumSlots)
	}

	// Inherited slots come first, child slots continue the numbering.
	if got := child.SlotIndex("a"); got != 0 {
		t.Errorf("SlotIndex(a) = %d, want 0", got)
	}
	if got := child.SlotIndex("b"); got != 1 {
		t.Errorf("SlotIndex(b) = %d, want 1", got)
	}
	if got := child.SlotIndex("c"); got != 2 {
		t.Errorf("SlotIndex(c) = %d, want 2", got)
	}
	if got := child.SlotIndex("missing"); got != -1 {
		t.Errorf("SlotIndex(missing) = %d, want -1", got)
	}
}

func TestAllFieldsRootFirst(t *testing.T) {
	parent := NewClass("Parent", nil)
	parent.AddField("a", KindInt)
	child := NewClass("Child", parent)
	child.AddField("b", KindInt)

	fields := child.AllFields()
	if len(fields) != 2 {
		t.Fatalf("AllFields() returned %d fields, want 2", len(fields))
	}
	if fields[0].Name != "a" || fields[1].Name != "b" {
		t.Errorf("AllFields() order = [%s, %s], want [a, b]", fields[0].Name, fields[1].Name)
	}
	for i, f := range fields {
		if f.Slot != i {
			t.Errorf("field %s slot = %d, want %d", f.Name, f.Slot, i)
		}
	}
}

func TestStaticSlotsPerClass(t *testing.T) {
	parent := NewClass("Parent", nil)
	parent.AddStaticField("count", KindInt)
	child := NewClass("Child", parent)
	child.AddStaticField("flag", KindBoolean)

	// Static numbering restarts per declaring class.
	if parent.Statics[0].Slot != 0 {
		t.Errorf("Parent static slot = %d, want 0", parent.Statics[0].Slot)
	}
	if child.Statics[0].Slot != 0 {
		t.Errorf("Child static slot = %d, want 0", child.Statics[0].Slot)
	}

	f := child.StaticField("count")
	if f == nil || f.Class != parent {
		t.Error("StaticField should find inherited statics on the declaring class")
	}
}

// ---------------------------------------------------------------------------
// Method lookup tests
// ---------------------------------------------------------------------------

func TestMethodLookupWalksChain(t *testing.T) {
	parent := NewClass("Parent", nil)
	child := NewClass("Child", parent)

	inherited := parent.AddMethod(NewMethodBuilder("greet").Return().Build())

	if got := child.LookupMethod("greet"); got != inherited {
		t.Error("LookupMethod should find inherited methods")
	}

	override := child.AddMethod(NewMethodBuilder("greet").Return().Build())
	if got := child.LookupMethod("greet"); got != override {
		t.Error("LookupMethod should prefer the child's override")
	}
	if got := parent.LookupMethod("greet"); got != inherited {
		t.Error("override should not replace the parent's method")
	}
	if child.LookupMethod("missing") != nil {
		t.Error("LookupMethod should return nil for unknown names")
	}
}

func TestIsSubclassOf(t *testing.T) {
	a := NewClass("A", nil)
	b := NewClass("B", a)
	c := NewClass("C", b)
	other := NewClass("Other", nil)

	if !c.IsSubclassOf(a) || !c.IsSubclassOf(b) || !c.IsSubclassOf(c) {
		t.Error("IsSubclassOf should be true for ancestors and self")
	}
	if a.IsSubclassOf(c) {
		t.Error("superclass is not a subclass of its descendant")
	}
	if c.IsSubclassOf(other) {
		t.Error("unrelated classes should not be subclasses")
	}
}

func TestChainRootFirst(t *testing.T) {
	a := NewClass("A", nil)
	b := NewClass("B", a)
	c := NewClass("C", b)

	chain := c.Chain()
	if len(chain) != 3 {
		t.Fatalf("Chain() returned %d classes, want 3", len(chain))
	}
	if chain[0] != a || chain[1] != b || chain[2] != c {
		t.Error("Chain() should run from the root ancestor down to the class")
	}
}

// ---------------------------------------------------------------------------
// Class table tests
// ---------------------------------------------------------------------------

func TestClassTableRegisterLookup(t *testing.T) {
	ct := NewClassTable()
	a := NewClass("A", nil)

	if old := ct.Register(a); old != nil {
		t.Error("first Register should return nil")
	}
	if ct.Lookup("A") != a {
		t.Error("Lookup should find the registered class")
	}
	if ct.Lookup("B") != nil {
		t.Error("Lookup of an unknown name should return nil")
	}

	replacement := NewClass("A", nil)
	if old := ct.Register(replacement); old != a {
		t.Error("Register should return the displaced class")
	}
	if ct.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ct.Len())
	}
}

// ---------------------------------------------------------------------------
// Instance field tests
// ---------------------------------------------------------------------------

func TestNewInstanceDefaults(t *testing.T) {
	c := NewClass("Mixed", nil)
	c.AddField("r", KindRef)
	c.AddField("i", KindInt)
	c.AddField("b", KindBoolean)
	c.AddField("d", KindDouble)
	c.AddField("overflow1", KindInt) // spills past the inline slots
	c.AddField("overflow2", KindRef)

	inst := NewInstance(c)
	checks := []struct {
		name string
		want Value
	}{
		{"r", Nil},
		{"i", FromSmallInt(0)},
		{"b", False},
		{"d", FromFloat64(0)},
		{"overflow1", FromSmallInt(0)},
		{"overflow2", Nil},
	}
	for _, tc := range checks {
		if got := inst.GetField(tc.name); got != tc.want {
			t.Errorf("field %s default = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestInstanceFieldReadWrite(t *testing.T) {
	parent := NewClass("Parent", nil)
	parent.AddField("a", KindInt)
	child := NewClass("Child", parent)
	child.AddField("b", KindInt)

	inst := NewInstance(child)
	inst.SetField("a", FromSmallInt(10))
	inst.SetField("b", FromSmallInt(20))

	if got := inst.GetField("a"); got != FromSmallInt(10) {
		t.Errorf("inherited field a = %v, want 10", got)
	}
	if got := inst.GetField("b"); got != FromSmallInt(20) {
		t.Errorf("field b = %v, want 20", got)
	}
}
