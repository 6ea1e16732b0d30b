// Package sandbox evaluates user-edited code in isolated contexts.
//
// Every evaluation gets a fresh interpreter or module instance. The only
// capabilities a program receives are the ones an Evaluator injects
// explicitly (for JavaScript, render and console.log); nothing from the
// host process leaks in.
package sandbox

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNoRender is reported when a module body finishes without producing output.
	ErrNoRender = errors.New("no output: call render(value) to show a preview")
	// ErrUnsupportedLanguage is reported when no evaluator handles a language.
	ErrUnsupportedLanguage = errors.New("unsupported sandbox language")
	// ErrTimeout is reported when evaluation exceeds its time budget.
	ErrTimeout = errors.New("evaluation timed out")
)

var tracer = otel.Tracer("github.com/livetemplate/tinkerblog/internal/sandbox")

// Program is a unit of code to evaluate.
type Program struct {
	Language string
	Code     string
	// NoInline evaluates Code as a full module body. When false Code is a
	// single expression whose value becomes the output.
	NoInline bool
}

// Result is the outcome of one evaluation. Err carries evaluation failures;
// they are part of the result, not a failure of the sandbox itself.
type Result struct {
	Output   string
	HTML     bool // Output is markup rather than plain text
	Err      error
	Duration time.Duration
}

// ErrorText returns the error message, or "" on success.
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Evaluator runs programs of one or more languages.
type Evaluator interface {
	Evaluate(ctx context.Context, p Program) Result
}

func startSpan(ctx context.Context, name string, p Program) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("sandbox.language", p.Language),
		attribute.Bool("sandbox.no_inline", p.NoInline),
		attribute.Int("sandbox.code_size", len(p.Code)),
	))
}

func endSpan(span trace.Span, res Result) {
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
