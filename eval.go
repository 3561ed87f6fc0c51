package jsengine

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// anonymousScriptName is the origin used to compile client-submitted
// code, matching the convention familiar from other embedders'
// "<anonymous>" default script name.
const anonymousScriptName = "<anonymous>"

// evaluator is the Code Evaluator operation module. It always
// runs on the owner thread, inside a task body submitted by the
// Context façade via the Cancelable Task Manager.
type evaluator struct {
	im  *Isolate
	mon *Monitor
	f   *Factory
}

func newEvaluator(im *Isolate, mon *Monitor, f *Factory) *evaluator {
	return &evaluator{im: im, mon: mon, f: f}
}

// Eval compiles and runs code, returning a Value that is either the
// script's result or one of the error-tagged Values describes.
func (e *evaluator) Eval(rt *goja.Runtime, code *Value) *Value {
	if code.Type() != TypeString {
		return e.f.FromException(TypeValueException,
			fmt.Sprintf("Bad argument: eval expects a string, got %s", code.Type()))
	}

	if !e.im.allowsJS() {
		return e.f.FromException(TypeTerminatedException, "context is no longer accepting script execution")
	}

	prog, err := goja.Compile(anonymousScriptName, code.String(), false)
	if err != nil {
		return e.f.FromException(TypeParseException, summarizeCompileError(err))
	}

	result, runErr := rt.RunProgram(prog)
	if runErr != nil {
		return e.classifyRunError(runErr)
	}

	v, err := e.f.FromAny(result)
	if err != nil {
		return e.f.FromException(TypeExecuteException, err.Error())
	}
	return v
}

// classifyRunError maps a run failure to the right error tag, per the
// ordered cause inspection in: hard memory limit first, then
// cooperative termination, then a plain script exception.
func (e *evaluator) classifyRunError(runErr error) *Value {
	if e.mon != nil && e.mon.IsHardReached() {
		e.im.clearInterrupt()
		return e.f.FromException(TypeOOMException, "")
	}

	if _, ok := runErr.(*goja.InterruptedError); ok {
		e.im.clearInterrupt()
		return e.f.FromException(TypeTerminatedException, "execution was terminated")
	}

	return e.f.FromException(TypeExecuteException, summarizeRuntimeError(runErr))
}

// summarizeCompileError renders a compile failure as goja's own
// error message followed by a newline, for a *goja.CompilerSyntaxError
// and for any other error alike. It does not produce the
// "<script>:<line>: <msg>\n<source>\n<caret>\n\n<stack>\n" layout: no
// source line and no caret underline are emitted.
func summarizeCompileError(err error) string {
	if pe, ok := err.(*goja.CompilerSyntaxError); ok {
		return fmt.Sprintf("%s\n", pe.Error())
	}
	return fmt.Sprintf("%s\n", err.Error())
}

// summarizeRuntimeError renders a thrown JS exception. When goja
// provides a *goja.Exception (the common case for `throw`), its own
// Error() already includes the message and a stack trace; we fold
// that into the tail of the format specifies. For any other
// error shape we emit just the message, matching "When the engine
// provides no Message, emit just <exception-string>\n".
func summarizeRuntimeError(err error) string {
	exc, ok := err.(*goja.Exception)
	if !ok {
		return fmt.Sprintf("%s\n", err.Error())
	}

	full := exc.Error()
	lines := strings.SplitN(full, "\n", 2)
	head := lines[0]
	var stack string
	if len(lines) > 1 {
		stack = lines[1]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", anonymousScriptName, head)
	if stack != "" {
		b.WriteString("\n")
		b.WriteString(stack)
		b.WriteString("\n")
	}
	return b.String()
}
