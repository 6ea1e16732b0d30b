// Package code renders a code block either as static, syntax highlighted
// markup or as a live sandbox with an editor, an error region and a preview.
package code

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog/internal/highlight"
	"github.com/livetemplate/tinkerblog/internal/sandbox"
)

var tracer = otel.Tracer("github.com/livetemplate/tinkerblog/internal/code")

// Options are the recognised code block flags.
type Options struct {
	Interactive bool
}

// interactiveFlags are the fenced block info words that turn on live mode.
var interactiveFlags = map[string]bool{
	"react-live":  true,
	"live":        true,
	"interactive": true,
}

// ParseOptions reads Options from the words following the language in a
// fenced code block info string. Unknown words are ignored.
func ParseOptions(words []string) Options {
	var opts Options
	for _, w := range words {
		if interactiveFlags[strings.ToLower(w)] {
			opts.Interactive = true
		}
	}
	return opts
}

// ParseInfo splits a fenced code block info string such as "js react-live"
// into the language and its Options.
func ParseInfo(info string) (string, Options) {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return "", Options{}
	}
	return fields[0], ParseOptions(fields[1:])
}

// Request is one code block to render.
type Request struct {
	Source   string
	Language string
	Options  Options
}

// SessionStore keeps live blocks reachable for later edits. Blocks are keyed
// by sandbox.BlockID, so rendering a page again reuses the stored block and
// its first result instead of evaluating it anew.
type SessionStore interface {
	Get(id string) (*sandbox.Session, bool)
	Add(s *sandbox.Session)
}

// Renderer dispatches a Request to static or interactive rendering.
type Renderer struct {
	highlighter highlight.Tokenizer
	sandboxes   *sandbox.Registry
	sessions    SessionStore
	sanitizer   *bluemonday.Policy
	logger      *zap.Logger
}

// NewRenderer creates a Renderer. sandboxes and sessions may be nil, in which
// case interactive requests are rendered statically.
func NewRenderer(h highlight.Tokenizer, sandboxes *sandbox.Registry, sessions SessionStore, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		highlighter: h,
		sandboxes:   sandboxes,
		sessions:    sessions,
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      logger,
	}
}

// Render writes the markup for req to w. Evaluation errors in interactive
// mode are part of the output; only write and tokenizer failures are returned.
func (r *Renderer) Render(ctx context.Context, w io.Writer, req Request) error {
	interactive := req.Options.Interactive && r.sandboxes != nil && r.sandboxes.Supports(req.Language)
	if req.Options.Interactive && !interactive {
		r.logger.Debug("live mode unavailable, rendering statically", zap.String("language", req.Language))
	}

	ctx, span := tracer.Start(ctx, "code.Render", trace.WithAttributes(
		attribute.String("code.language", req.Language),
		attribute.Bool("code.interactive", interactive),
	))
	defer span.End()

	var err error
	if interactive {
		err = r.renderInteractive(ctx, w, req)
	} else {
		err = r.renderStatic(w, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// RenderHTML renders req into a string.
func (r *Renderer) RenderHTML(ctx context.Context, req Request) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.Render(ctx, &buf, req); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

type tokenView struct {
	Content string
	highlight.Props
}

type lineView struct {
	highlight.Props
	Tokens []tokenView
}

type staticView struct {
	Pre   highlight.Props
	Lines []lineView
}

func (r *Renderer) renderStatic(w io.Writer, req Request) error {
	res, err := r.highlighter.Tokenize(req.Source, req.Language)
	if err != nil {
		return err
	}

	view := staticView{Pre: res.PreProps(), Lines: make([]lineView, len(res.Lines))}
	for i, line := range res.Lines {
		lv := lineView{Props: res.LineProps(i), Tokens: make([]tokenView, len(line))}
		for j, tok := range line {
			lv.Tokens[j] = tokenView{Content: tok.Content, Props: res.TokenProps(i, j)}
		}
		view.Lines[i] = lv
	}

	if err := staticTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("failed to render code block: %w", err)
	}
	return nil
}

type interactiveView struct {
	ID       string
	Language string
	Code     string
	Rows     int
	Error    string
	Preview  template.HTML
}

func (r *Renderer) renderInteractive(ctx context.Context, w io.Writer, req Request) error {
	s, res := r.block(ctx, req)

	view := interactiveView{
		ID:       s.ID,
		Language: req.Language,
		Code:     req.Source,
		Rows:     strings.Count(req.Source, "\n") + 1,
		Error:    res.ErrorText(),
		Preview:  r.Preview(res),
	}
	if err := interactiveTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("failed to render live block: %w", err)
	}
	return nil
}

// block returns the stored session for req, evaluating and storing a new one
// when none exists.
func (r *Renderer) block(ctx context.Context, req Request) (*sandbox.Session, sandbox.Result) {
	if r.sessions != nil {
		if s, ok := r.sessions.Get(sandbox.BlockID(req.Language, req.Source)); ok {
			return s, s.Result()
		}
	}
	s := sandbox.NewBlockSession(r.sandboxes, req.Language, req.Source, true)
	res := s.Run(ctx)
	if r.sessions != nil {
		r.sessions.Add(s)
	}
	return s, res
}

// Preview converts a sandbox result to safe markup for the preview region.
// HTML output is sanitized; text output is escaped inside a <pre>.
func (r *Renderer) Preview(res sandbox.Result) template.HTML {
	if res.Err != nil || res.Output == "" {
		return ""
	}
	if res.HTML {
		return template.HTML(r.sanitizer.Sanitize(res.Output))
	}
	return template.HTML("<pre>" + template.HTMLEscapeString(res.Output) + "</pre>")
}

var staticTemplate = template.Must(template.New("static").Parse(
	`<pre class="{{.Pre.Class}}"{{with .Pre.Style}} style="{{.}}"{{end}}>` +
		`{{range $i, $line := .Lines}}<div class="{{$line.Class}}" data-line="{{$i}}">` +
		`{{range $j, $tok := $line.Tokens}}<span class="{{$tok.Class}}"{{with $tok.Style}} style="{{.}}"{{end}} data-token="{{$j}}">{{$tok.Content}}</span>{{end}}` +
		"</div>\n{{end}}</pre>\n"))

var interactiveTemplate = template.Must(template.New("interactive").Parse(`<div class="live" data-live-session="{{.ID}}" data-live-language="{{.Language}}">
<textarea class="live-editor" data-live-editor spellcheck="false" autocapitalize="off" rows="{{.Rows}}">{{.Code}}</textarea>
<pre class="live-error" data-live-error role="alert"{{if not .Error}} hidden{{end}}>{{.Error}}</pre>
<div class="live-preview" data-live-preview>{{.Preview}}</div>
</div>
`))
