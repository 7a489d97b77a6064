package vm

// ---------------------------------------------------------------------------
// Method: executable method metadata
// ---------------------------------------------------------------------------

// NativeFunc is the signature for built-in methods bridged from Go. A
// native method may construct and raise throwables by returning a non-nil
// *Throwable, which enters the unwinding engine at the call site.
type NativeFunc func(vm *VM, in *Interp, recv Value, args []Value) (Value, *Throwable)

// Method represents an executable method: either bytecode with its
// literal pool and exception handler table, or a native Go function.
type Method struct {
	Name   string
	Class  *Class // declaring class (set when added to a class)
	Static bool

	// Signature. Params gives the declared kinds of the arguments;
	// Locals gives the kinds of the additional local slots, which start
	// at their kind's default value on frame entry.
	Params []Kind
	Locals []Kind

	// Compiled code
	Code     []byte
	Literals []Value

	// Handlers is the method's exception handler table, in declaration
	// order (first declared, first tried).
	Handlers []HandlerEntry

	// Lines maps bytecode offsets to source lines for stack traces.
	Lines []LineEntry

	// Native, when non-nil, replaces bytecode execution.
	Native NativeFunc
}

// LineEntry maps a bytecode offset to a 1-based source line.
type LineEntry struct {
	Offset int
	Line   int
}

// HandlerEntry guards a contiguous instruction range [Start, End).
// A Finally entry fires unconditionally on any outcome leaving the range;
// a catch entry fires for throwables whose class is Catch or a subclass
// of it. A nil Catch on a non-finally entry catches any throwable.
// Handler code at Target lies outside the entry's own guarded range; the
// loader guarantees well-formed tables.
type HandlerEntry struct {
	Start   int
	End     int
	Target  int
	Catch   *Class
	Finally bool
}

// Covers returns true if the guarded range contains the given offset.
func (h *HandlerEntry) Covers(pc int) bool {
	return pc >= h.Start && pc < h.End
}

// NumLocals returns the frame local slot count (arguments + locals).
func (m *Method) NumLocals() int {
	return len(m.Params) + len(m.Locals)
}

// Arity returns the number of declared arguments.
func (m *Method) Arity() int {
	return len(m.Params)
}

// IsNative returns true if the method is a Go built-in.
func (m *Method) IsNative() bool {
	return m.Native != nil
}

// LineAt returns the source line for a bytecode offset: the most recent
// entry at or before the offset, or 0 if unmapped.
func (m *Method) LineAt(offset int) int {
	line := 0
	for i := range m.Lines {
		if m.Lines[i].Offset <= offset {
			line = m.Lines[i].Line
		} else {
			break
		}
	}
	return line
}

// String returns "Class.name" for diagnostics.
func (m *Method) String() string {
	className := "?"
	if m.Class != nil {
		className = m.Class.Name
	}
	return className + "." + m.Name
}

// NewNativeMethod creates a native method with the given arity.
func NewNativeMethod(name string, arity int, fn NativeFunc) *Method {
	return &Method{
		Name:   name,
		Params: make([]Kind, arity),
		Native: fn,
	}
}
