package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Float tests
// ---------------------------------------------------------------------------

func TestFloatRoundTrip(t *testing.T) {
	tests := []float64{
		0.0,
		-0.0,
		1.0,
		-1.0,
		2.5,
		3.14159265358979,
		math.MaxFloat64,
		math.SmallestNonzeroFloat64,
		math.Inf(1),
		math.Inf(-1),
	}

	for _, f := range tests {
		v := FromFloat64(f)
		if !v.IsFloat() {
			t.Errorf("FromFloat64(%v).IsFloat() = false, want true", f)
			continue
		}
		if got := v.Float64(); got != f {
			t.Errorf("FromFloat64(%v).Float64() = %v, want %v", f, got, f)
		}
	}
}

// ---------------------------------------------------------------------------
// SmallInt tests
// ---------------------------------------------------------------------------

func TestSmallIntRoundTrip(t *testing.T) {
	tests := []int64{
		0, 1, -1, 42, -42,
		127, -128, 1 << 20, -(1 << 20),
		MaxSmallInt, MinSmallInt,
	}

	for _, n := range tests {
		v := FromSmallInt(n)
		if !v.IsSmallInt() {
			t.Errorf("FromSmallInt(%d).IsSmallInt() = false, want true", n)
			continue
		}
		if got := v.SmallInt(); got != n {
			t.Errorf("FromSmallInt(%d).SmallInt() = %d, want %d", n, got, n)
		}
	}
}

func TestSmallIntOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("FromSmallInt(MaxSmallInt+1) should panic")
		}
	}()
	FromSmallInt(MaxSmallInt + 1)
}

func TestSmallIntIsNotFloat(t *testing.T) {
	v := FromSmallInt(42)
	if v.IsFloat() {
		t.Error("SmallInt should not be a float")
	}
	if v.IsSpecial() || v.IsString() || v.IsInstance() || v.IsThrowable() {
		t.Error("SmallInt should carry only the int tag")
	}
}

// ---------------------------------------------------------------------------
// Special value tests
// ---------------------------------------------------------------------------

func TestSpecialValues(t *testing.T) {
	if !Nil.IsNil() || !Nil.IsSpecial() {
		t.Error("Nil should be nil and special")
	}
	if !True.IsBool() || !False.IsBool() {
		t.Error("True and False should be booleans")
	}
	if !True.Bool() {
		t.Error("True.Bool() should be true")
	}
	if False.Bool() {
		t.Error("False.Bool() should be false")
	}
	if FromBool(true) != True || FromBool(false) != False {
		t.Error("FromBool should return the canonical values")
	}
}

func TestTruthiness(t *testing.T) {
	falsy := []Value{False, Nil}
	truthy := []Value{True, FromSmallInt(0), FromSmallInt(1), FromFloat64(0), Str("")}

	for _, v := range falsy {
		if v.IsTruthy() {
			t.Errorf("%v should be falsy", v)
		}
	}
	for _, v := range truthy {
		if !v.IsTruthy() {
			t.Errorf("%v should be truthy", v)
		}
	}
}

// ---------------------------------------------------------------------------
// Interned string tests
// ---------------------------------------------------------------------------

func TestStringInterning(t *testing.T) {
	a := Str("hello")
	b := Str("hello")
	c := Str("world")

	if a != b {
		t.Error("interning the same string twice should yield the same Value")
	}
	if a == c {
		t.Error("different strings should intern to different Values")
	}
	if !a.IsString() {
		t.Error("interned string should have the string tag")
	}
	if got := a.StringOf(); got != "hello" {
		t.Errorf("StringOf() = %q, want %q", got, "hello")
	}
}

// ---------------------------------------------------------------------------
// Slot kind default tests
// ---------------------------------------------------------------------------

func TestDefaultValuePerKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want Value
	}{
		{KindRef, Nil},
		{KindBoolean, False},
		{KindChar, FromSmallInt(0)},
		{KindInt, FromSmallInt(0)},
		{KindLong, FromSmallInt(0)},
		{KindFloat, FromFloat64(0)},
		{KindDouble, FromFloat64(0)},
	}

	for _, tc := range tests {
		if got := DefaultValue(tc.kind); got != tc.want {
			t.Errorf("DefaultValue(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Instance boxing tests
// ---------------------------------------------------------------------------

func TestInstanceRoundTrip(t *testing.T) {
	c := NewClass("Point", nil)
	c.AddField("x", KindInt)
	inst := NewInstance(c)

	v := inst.ToValue()
	if !v.IsInstance() {
		t.Error("instance value should have the instance tag")
	}
	if got := InstanceFromValue(v); got != inst {
		t.Error("InstanceFromValue should return the original instance")
	}
	if InstanceFromValue(FromSmallInt(1)) != nil {
		t.Error("InstanceFromValue on a non-instance should return nil")
	}
}
