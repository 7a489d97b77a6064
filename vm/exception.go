package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Throwable
// ---------------------------------------------------------------------------

// Throwable represents a raised error condition: a class from the
// throwable hierarchy, an optional message, and the stack trace snapshot
// fixed at construction time. Rethrowing never recomputes the trace.
type Throwable struct {
	Class   *Class
	Message string

	// Cause carries the original throwable for wrapping conditions such
	// as initializer errors. Nil otherwise.
	Cause *Throwable

	trace StackTrace
	value Value // cached registry value
}

// StackTrace returns the frozen snapshot captured at construction.
func (t *Throwable) StackTrace() StackTrace {
	return t.trace
}

// String renders "ClassName: message" (or just the class name).
func (t *Throwable) String() string {
	name := "?"
	if t.Class != nil {
		name = t.Class.Name
	}
	if t.Message == "" {
		return name
	}
	return name + ": " + t.Message
}

// IsA returns true if the throwable's class is c or a subclass of it.
func (t *Throwable) IsA(c *Class) bool {
	return t.Class != nil && t.Class.IsSubclassOf(c)
}

// ---------------------------------------------------------------------------
// Throwable registry
// ---------------------------------------------------------------------------

// Throwables cross the NaN-boxing boundary by registry ID rather than raw
// pointer, which keeps them visible to Go's garbage collector. The
// registry is process-wide, matching the interned string table.
var (
	throwableMu  sync.RWMutex
	throwables   = make(map[uint32]*Throwable)
	throwableSeq uint32
)

func registerThrowable(t *Throwable) Value {
	throwableMu.Lock()
	defer throwableMu.Unlock()
	throwableSeq++
	id := throwableSeq
	throwables[id] = t
	t.value = Value(nanBits | tagThrowable | uint64(id))
	return t.value
}

// ThrowableFromValue returns the registered throwable for v, or nil if v
// is not a throwable value.
func ThrowableFromValue(v Value) *Throwable {
	if !v.IsThrowable() {
		return nil
	}
	id := uint32(uint64(v) & payloadMask)
	throwableMu.RLock()
	defer throwableMu.RUnlock()
	return throwables[id]
}

// ToValue returns the NaN-boxed registry value for the throwable.
func (t *Throwable) ToValue() Value {
	return t.value
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// NewThrowable constructs a throwable of the given class, capturing the
// stack trace snapshot from the interpreter's frame stack at this moment.
// This is the single capture point: throwing, catching, and rethrowing
// leave the snapshot untouched. Native bridges use this to raise
// conditions from within a bridged call.
func NewThrowable(in *Interp, class *Class, message string) *Throwable {
	t := &Throwable{
		Class:   class,
		Message: message,
		trace:   captureTrace(in),
	}
	registerThrowable(t)
	return t
}

// newCausedThrowable wraps an original throwable in a fresh condition of
// the given class. The wrapper captures its own trace; the cause keeps
// the one from its construction.
func newCausedThrowable(in *Interp, class *Class, message string, cause *Throwable) *Throwable {
	t := NewThrowable(in, class, message)
	t.Cause = cause
	return t
}

// ---------------------------------------------------------------------------
// Handler matching
// ---------------------------------------------------------------------------

// matches reports whether the handler entry applies to the outcome
// dispatched from pc. Finally entries fire for every outcome leaving
// their range; catch entries fire only for throwables whose class is the
// filter class or a subclass of it, with a nil filter catching all.
func (h *HandlerEntry) matches(pc int, out outcome) bool {
	if !h.Covers(pc) {
		return false
	}
	if h.Finally {
		return true
	}
	if out.kind != outcomeThrow {
		return false
	}
	return h.Catch == nil || out.thrown.IsA(h.Catch)
}

// ---------------------------------------------------------------------------
// Execution outcomes
// ---------------------------------------------------------------------------

// outcomeKind tags the variant an instruction region completed with.
// Exception control flow is resolved by explicit handler-table scanning
// over these variants, never by Go panic/recover, so the finally
// replacement rules hold uniformly.
type outcomeKind uint8

const (
	outcomeNormal outcomeKind = iota
	outcomeReturn
	outcomeThrow
)

type outcome struct {
	kind   outcomeKind
	value  Value      // return value for outcomeReturn
	thrown *Throwable // set for outcomeThrow
}

func returnOutcome(v Value) outcome {
	return outcome{kind: outcomeReturn, value: v}
}

func throwOutcome(t *Throwable) outcome {
	return outcome{kind: outcomeThrow, thrown: t}
}

// ---------------------------------------------------------------------------
// Uncaught exceptions
// ---------------------------------------------------------------------------

// UncaughtError is the terminal condition reported to the host when
// propagation exhausts the frame stack. It carries the throwable and its
// frozen snapshot for top-level reporting.
type UncaughtError struct {
	Thrown *Throwable
}

// Error implements the error interface.
func (e *UncaughtError) Error() string {
	return fmt.Sprintf("uncaught exception: %s", e.Thrown)
}
