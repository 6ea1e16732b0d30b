package tinkerblog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/livetemplate/tinkerblog/internal/code"
)

// CodeRenderer renders one code block.
type CodeRenderer interface {
	Render(ctx context.Context, w io.Writer, req code.Request) error
}

// Markdown converts post bodies to HTML, sending code blocks to a
// CodeRenderer.
type Markdown struct {
	code CodeRenderer
}

// NewMarkdown creates a Markdown converter.
func NewMarkdown(c CodeRenderer) *Markdown {
	return &Markdown{code: c}
}

func (m *Markdown) converter(ctx context.Context) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(
				util.Prioritized(&codeBlockRenderer{ctx: ctx, code: m.code}, 100),
			),
		),
	)
}

// Render writes the HTML of post's body to w.
func (m *Markdown) Render(ctx context.Context, w io.Writer, post *Post) error {
	if err := m.converter(ctx).Convert(post.Body, w); err != nil {
		return NewParseError(post.SourceFile, post.BodyLine(), "failed to render markdown").WithCause(err)
	}
	return nil
}

// Excerpt returns the text of the first paragraph of the body, cut at limit
// runes on a word boundary.
func (m *Markdown) Excerpt(post *Post, limit int) string {
	doc := goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser().Parse(text.NewReader(post.Body))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Kind() != ast.KindParagraph {
			return ast.WalkContinue, nil
		}
		collectText(&b, n, post.Body)
		return ast.WalkStop, nil
	})

	return truncateWords(strings.TrimSpace(b.String()), limit)
}

func collectText(b *strings.Builder, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			collectText(b, c, source)
		}
	}
}

func truncateWords(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

// codeBlockRenderer renders fenced and indented code blocks with a
// CodeRenderer in place of goldmark's <pre><code>.
type codeBlockRenderer struct {
	ctx  context.Context
	code CodeRenderer
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var info string
	if n.Info != nil {
		info = string(n.Info.Segment.Value(source))
	}
	lang, opts := code.ParseInfo(info)

	return r.render(w, code.Request{
		Source:   blockSource(n, source),
		Language: lang,
		Options:  opts,
	})
}

func (r *codeBlockRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	return r.render(w, code.Request{Source: blockSource(node, source), Language: "text"})
}

func (r *codeBlockRenderer) render(w util.BufWriter, req code.Request) (ast.WalkStatus, error) {
	if err := r.code.Render(r.ctx, w, req); err != nil {
		return ast.WalkStop, fmt.Errorf("failed to render %s code block: %w", req.Language, err)
	}
	return ast.WalkSkipChildren, nil
}

func blockSource(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}
