package tinkerblog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/tinkerblog/internal/code"
	"github.com/livetemplate/tinkerblog/internal/highlight"
	"github.com/livetemplate/tinkerblog/internal/sandbox"
)

type recordingRenderer struct {
	requests []code.Request
	err      error
}

func (r *recordingRenderer) Render(_ context.Context, w io.Writer, req code.Request) error {
	if r.err != nil {
		return r.err
	}
	r.requests = append(r.requests, req)
	_, err := fmt.Fprintf(w, `<div class="code-block" data-lang="%s"></div>`, req.Language)
	return err
}

func renderBody(t *testing.T, m *Markdown, body string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, m.Render(context.Background(), &buf, &Post{Body: []byte(body)}))
	return buf.String()
}

func TestMarkdownRoutesCodeBlocks(t *testing.T) {
	rec := &recordingRenderer{}
	m := NewMarkdown(rec)

	body := "# Title\n\n```js react-live\nrender('hi');\n```\n\n```go\nfmt.Println(1)\n```\n\n    indented\n"
	out := renderBody(t, m, body)

	require.Len(t, rec.requests, 3)
	assert.Equal(t, code.Request{Source: "render('hi');\n", Language: "js", Options: code.Options{Interactive: true}}, rec.requests[0])
	assert.Equal(t, code.Request{Source: "fmt.Println(1)\n", Language: "go"}, rec.requests[1])
	assert.Equal(t, "text", rec.requests[2].Language)
	assert.Equal(t, "indented\n", rec.requests[2].Source)

	assert.Equal(t, 3, strings.Count(out, `class="code-block"`))
	assert.NotContains(t, out, "<code", "goldmark's own code block markup is replaced")
	assert.Contains(t, out, `<h1 id="title">Title</h1>`)
}

func TestMarkdownRenderError(t *testing.T) {
	m := NewMarkdown(&recordingRenderer{err: errors.New("tokenizer exploded")})

	var buf bytes.Buffer
	err := m.Render(context.Background(), &buf, &Post{SourceFile: "p.md", Body: []byte("```js\nx\n```\n")})
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "p.md", pe.File)
	assert.Contains(t, err.Error(), "tokenizer exploded")
}

func TestMarkdownWithCodeRenderer(t *testing.T) {
	h, err := highlight.New("")
	require.NoError(t, err)
	reg := sandbox.NewRegistry()
	reg.Register(sandbox.NewJSEvaluator(time.Second), "js")
	m := NewMarkdown(code.NewRenderer(h, reg, nil, nil))

	out := renderBody(t, m, "Intro\n\n```javascript\nconst x = 1;\n```\n\n```js live\nrender('<em>live</em>')\n```\n")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find("pre.prism-code div.token-line").Length())
	assert.Equal(t, "live", doc.Find("div.live div.live-preview em").Text())
}

func TestMarkdownExcerpt(t *testing.T) {
	m := NewMarkdown(&recordingRenderer{})

	post := &Post{Body: []byte("# Heading\n\nThe *first* paragraph\nspans `two` lines.\n\nSecond paragraph.")}
	assert.Equal(t, "The first paragraph spans two lines.", m.Excerpt(post, 0))

	assert.Equal(t, "The first…", m.Excerpt(post, 14))

	assert.Empty(t, m.Excerpt(&Post{Body: []byte("```js\nx\n```\n")}, 10))
}
