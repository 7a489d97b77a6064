package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Stack trace recorder
// ---------------------------------------------------------------------------

// TraceElement identifies one frame in a captured stack trace.
type TraceElement struct {
	ClassName  string
	MethodName string
	Line       int // 0 when the method carries no line mapping
}

// String formats the element the way the CLI prints it.
func (e TraceElement) String() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s.%s:%d", e.ClassName, e.MethodName, e.Line)
	}
	return fmt.Sprintf("%s.%s", e.ClassName, e.MethodName)
}

// StackTrace is an immutable snapshot of frame identities, innermost
// call first. It is captured exactly once, when a throwable is
// constructed, and is never recomputed: unwinding that later pops the
// frames it describes does not touch the snapshot.
type StackTrace []TraceElement

// captureTrace copies the identities of every active frame into an owned
// sequence. Frames are copied, never referenced, so the snapshot outlives
// them. Two captures never share backing storage.
func captureTrace(in *Interp) StackTrace {
	if in == nil {
		return StackTrace{}
	}
	trace := make(StackTrace, 0, len(in.frames))
	for i := len(in.frames) - 1; i >= 0; i-- {
		f := in.frames[i]
		className := "?"
		if f.Method.Class != nil {
			className = f.Method.Class.Name
		}
		trace = append(trace, TraceElement{
			ClassName:  className,
			MethodName: f.Method.Name,
			Line:       f.Method.LineAt(f.opPC),
		})
	}
	return trace
}

// Depth returns the number of frames in the snapshot.
func (t StackTrace) Depth() int {
	return len(t)
}

// String renders the snapshot as "at" lines, innermost first.
func (t StackTrace) String() string {
	var sb strings.Builder
	for _, e := range t {
		sb.WriteString("  at ")
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
