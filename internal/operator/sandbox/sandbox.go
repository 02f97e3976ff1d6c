// Package sandbox provides a goja-backed JavaScript evaluator for the
// `filter` predicate and the `code`/`code_polars` operator classes (§4.3).
// Grounded on the teacher's tee script engine: a fresh goja.Runtime per
// invocation (never shared across goroutines), a small set of builtin
// helpers injected into global scope, and a compile/runtime error
// distinction surfaced to callers.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/chunk"
)

// CompileError wraps a script that failed to parse/compile.
type CompileError struct{ Err error }

func (e CompileError) Error() string { return fmt.Sprintf("sandbox: compile error: %v", e.Err) }
func (e CompileError) Unwrap() error { return e.Err }

// RuntimeError wraps a script that parsed but failed during execution.
type RuntimeError struct{ Err error }

func (e RuntimeError) Error() string { return fmt.Sprintf("sandbox: runtime error: %v", e.Err) }
func (e RuntimeError) Unwrap() error { return e.Err }

// builtinHelpers is injected into every sandbox runtime's global scope: a
// minimal JS standard-library subset the teacher's engine also provided
// (console.log capture, basic string/JSON helpers) without reaching for a
// larger embedded polyfill.
const builtinHelpers = `
var console = {
  _log: [],
  log: function() {
    var parts = [];
    for (var i = 0; i < arguments.length; i++) { parts.push(String(arguments[i])); }
    console._log.push(parts.join(" "));
  }
};
`

// Evaluator compiles and runs user scripts in isolated goja runtimes.
type Evaluator struct {
	timeout time.Duration
}

// New returns an Evaluator with the given per-invocation timeout (zero
// disables the timeout).
func New(timeout time.Duration) *Evaluator {
	return &Evaluator{timeout: timeout}
}

// newRuntime builds a fresh goja.Runtime with builtins installed. A new
// runtime per call is required: goja.Runtime is not safe for concurrent use,
// and chunks may be processed by different goroutines.
func (e *Evaluator) newRuntime() (*goja.Runtime, error) {
	vm := goja.New()
	if _, err := vm.RunString(builtinHelpers); err != nil {
		return nil, CompileError{Err: err}
	}
	return vm, nil
}

// EvalPredicate compiles and runs a boolean JS expression against one row's
// columns exposed as a plain object named `row`, returning its truthiness.
// Used by the `filter` operator class.
func (e *Evaluator) EvalPredicate(ctx context.Context, expression string, row chunk.Row) (bool, error) {
	vm, err := e.newRuntime()
	if err != nil {
		return false, err
	}
	if err := vm.Set("row", map[string]any(row)); err != nil {
		return false, RuntimeError{Err: err}
	}

	program, err := goja.Compile("<filter>", "("+expression+")", false)
	if err != nil {
		return false, CompileError{Err: err}
	}

	done := make(chan struct{})
	var value goja.Value
	var runErr error
	go func() {
		defer close(done)
		value, runErr = vm.RunProgram(program)
	}()

	select {
	case <-ctx.Done():
		vm.Interrupt("cancelled")
		return false, ctx.Err()
	case <-done:
	case <-e.timeoutChan():
		vm.Interrupt("timeout")
		<-done
		return false, RuntimeError{Err: context.DeadlineExceeded}
	}

	if runErr != nil {
		return false, RuntimeError{Err: runErr}
	}
	return value.ToBoolean(), nil
}

func (e *Evaluator) timeoutChan() <-chan time.Time {
	if e.timeout <= 0 {
		return nil
	}
	return time.After(e.timeout)
}

// TransformResult is what a compiled `code`/`code_polars` function returns:
// a new set of rows (the lazy_chunk result materialized) plus any
// console.log lines captured during execution.
type TransformResult struct {
	Rows       []chunk.Row
	ConsoleLog []string
}

// EvalTransform compiles `function transform(rows) { ... return rows; }`
// (or an equivalent expression assigning a `transform` function) once, then
// invokes it against the chunk's rows serialized as plain JS objects.
// Compile errors are distinguished from runtime errors per §7.
func (e *Evaluator) EvalTransform(ctx context.Context, script string, rows []chunk.Row) (*TransformResult, error) {
	vm, err := e.newRuntime()
	if err != nil {
		return nil, err
	}
	if _, err := vm.RunString(script); err != nil {
		return nil, CompileError{Err: err}
	}

	transformFn, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return nil, CompileError{Err: fmt.Errorf("script does not define a transform(rows) function")}
	}

	in := make([]any, len(rows))
	for i, r := range rows {
		in[i] = map[string]any(r)
	}

	done := make(chan struct{})
	var result goja.Value
	var runErr error
	go func() {
		defer close(done)
		result, runErr = transformFn(goja.Undefined(), vm.ToValue(in))
	}()

	select {
	case <-ctx.Done():
		vm.Interrupt("cancelled")
		return nil, ctx.Err()
	case <-done:
	case <-e.timeoutChan():
		vm.Interrupt("timeout")
		<-done
		return nil, RuntimeError{Err: context.DeadlineExceeded}
	}

	if runErr != nil {
		return nil, RuntimeError{Err: runErr}
	}

	exported := result.Export()
	outRows, err := exportRows(exported)
	if err != nil {
		return nil, RuntimeError{Err: err}
	}

	var logLines []string
	if logVal := vm.Get("console"); logVal != nil {
		if obj := logVal.ToObject(vm); obj != nil {
			if raw := obj.Get("_log"); raw != nil {
				if arr, ok := raw.Export().([]any); ok {
					for _, l := range arr {
						logLines = append(logLines, fmt.Sprint(l))
					}
				}
			}
		}
	}

	return &TransformResult{Rows: outRows, ConsoleLog: logLines}, nil
}

func exportRows(exported any) ([]chunk.Row, error) {
	list, ok := exported.([]any)
	if !ok {
		return nil, fmt.Errorf("transform() must return an array of row objects")
	}
	out := make([]chunk.Row, 0, len(list))
	for _, item := range list {
		rowMap, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("transform() result rows must be objects")
		}
		out = append(out, chunk.Row(rowMap))
	}
	return out, nil
}

// ToTransformationError classifies err as a compile-time (non-retryable) or
// runtime (retryable) TransformationError per §7.
func ToTransformationError(operatorClass string, err error) *apperrors.Error {
	var compileErr CompileError
	if asCompile(err, &compileErr) {
		return apperrors.TransformationCompile(operatorClass, err)
	}
	return apperrors.TransformationRuntime(operatorClass, err)
}

func asCompile(err error, target *CompileError) bool {
	for err != nil {
		if ce, ok := err.(CompileError); ok {
			*target = ce
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
