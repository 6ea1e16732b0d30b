package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const maxCallStackSize = 1024

// JSEvaluator runs JavaScript in a goja runtime created per evaluation.
type JSEvaluator struct {
	Timeout time.Duration
}

// NewJSEvaluator returns a JSEvaluator with the given per-evaluation timeout.
func NewJSEvaluator(timeout time.Duration) *JSEvaluator {
	return &JSEvaluator{Timeout: timeout}
}

// Evaluate runs p.Code. The runtime exposes render(value), which sets the
// preview (strings are markup, anything else is shown as JSON text), and
// console.log, whose lines are the preview when render is never called.
func (e *JSEvaluator) Evaluate(ctx context.Context, p Program) Result {
	ctx, span := startSpan(ctx, "sandbox.JSEvaluator.Evaluate", p)
	start := time.Now()
	res := e.evaluate(ctx, p)
	res.Duration = time.Since(start)
	endSpan(span, res)
	return res
}

func (e *JSEvaluator) evaluate(ctx context.Context, p Program) Result {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return Result{Err: contextErr(err)}
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)

	out := &jsOutput{}
	if err := out.install(vm); err != nil {
		return Result{Err: fmt.Errorf("failed to prepare runtime: %w", err)}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	src := p.Code
	if !p.NoInline {
		src = "(" + strings.TrimRight(strings.TrimSpace(src), ";") + "\n)"
	}

	v, err := vm.RunString(src)
	if err != nil {
		return Result{Err: jsError(err)}
	}

	if !p.NoInline && !out.rendered {
		if err := out.render(vm, v); err != nil {
			return Result{Err: err}
		}
	}

	switch {
	case out.rendered:
		return Result{Output: out.value, HTML: out.html}
	case len(out.logs) > 0:
		return Result{Output: strings.Join(out.logs, "\n")}
	default:
		return Result{Err: ErrNoRender}
	}
}

type jsOutput struct {
	rendered bool
	html     bool
	value    string
	logs     []string
}

func (o *jsOutput) install(vm *goja.Runtime) error {
	if err := vm.Set("render", func(call goja.FunctionCall) goja.Value {
		if err := o.render(vm, call.Argument(0)); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	console := vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		o.logs = append(o.logs, strings.Join(parts, " "))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	return vm.Set("console", console)
}

// render keeps the last rendered value.
func (o *jsOutput) render(vm *goja.Runtime, v goja.Value) error {
	o.rendered = true
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		o.value, o.html = "", false
		return nil
	}
	if s, ok := v.Export().(string); ok {
		o.value, o.html = s, true
		return nil
	}
	if _, isFunc := goja.AssertFunction(v); isFunc {
		return errors.New("render: cannot render a function")
	}
	data, err := json.Marshal(v.Export())
	if err != nil {
		o.value, o.html = v.String(), false
		return nil
	}
	o.value, o.html = string(data), false
	return nil
}

func jsError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return errors.New(ex.Value().String())
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return contextErr(cause)
		}
		return ErrTimeout
	}
	return err
}

func contextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
