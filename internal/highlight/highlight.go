// Package highlight tokenizes source code with chroma and maps every line and
// token to the class names and inline styles of a theme.
//
// The markup produced from a Result mirrors prism-react-renderer: a
// <pre class="prism-code language-x"> with one token-line per line and one
// span per token. Line and token indexes are stable keys.
package highlight

import (
	"errors"
	"fmt"
	"html/template"
	"strings"
	"unicode"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// ErrUnknownTheme is returned when a theme name is not registered with chroma.
var ErrUnknownTheme = errors.New("unknown highlight theme")

// Tokenizer splits source code into classified, themed lines.
type Tokenizer interface {
	Tokenize(code, language string) (*Result, error)
}

// Token is one classified span of source text.
type Token struct {
	Content string
	Type    chroma.TokenType
	Classes []string
}

// Line is the ordered tokens of one source line, without the newline.
type Line []Token

// Props are the attributes applied to a rendered element.
type Props struct {
	Class string
	Style template.CSS
}

// Result is the output of Tokenize.
type Result struct {
	Language string
	Theme    string
	Lines    []Line
	Fallback bool // true when no grammar matched and the text was left plain

	style *chroma.Style
}

// Highlighter is a Tokenizer bound to one theme.
type Highlighter struct {
	theme string
	style *chroma.Style
}

// New returns a Highlighter for the named chroma style. An empty name selects
// DefaultTheme.
func New(theme string) (*Highlighter, error) {
	if theme == "" {
		theme = DefaultTheme
	}
	style, ok := styles.Registry[strings.ToLower(theme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTheme, theme)
	}
	return &Highlighter{theme: style.Name, style: style}, nil
}

// Theme returns the style name.
func (h *Highlighter) Theme() string {
	return h.theme
}

// Tokenize lexes code with the grammar named by language. Unknown grammars
// use chroma's plain text fallback and set Result.Fallback.
func (h *Highlighter) Tokenize(code, language string) (*Result, error) {
	lexer, fallback := lookupLexer(language)
	lexer = chroma.Coalesce(lexer)

	// trailing newlines would produce an empty last line
	code = strings.TrimRight(code, "\n")

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize %s: %w", language, err)
	}

	split := chroma.SplitTokensIntoLines(it.Tokens())
	lines := make([]Line, 0, len(split))
	for _, raw := range split {
		line := make(Line, 0, len(raw))
		for _, tok := range raw {
			content := strings.TrimSuffix(tok.Value, "\n")
			if content == "" {
				continue
			}
			line = append(line, Token{
				Content: content,
				Type:    tok.Type,
				Classes: Classes(tok.Type),
			})
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, Line{})
	}

	return &Result{
		Language: language,
		Theme:    h.theme,
		Lines:    lines,
		Fallback: fallback,
		style:    h.style,
	}, nil
}

func lookupLexer(language string) (chroma.Lexer, bool) {
	if language != "" {
		if l := lexers.Get(language); l != nil {
			return l, false
		}
	}
	return lexers.Fallback, true
}

// Classes returns the class names for a token type: "token" followed by the
// kebab-cased category, sub-category and type, most general first.
func Classes(t chroma.TokenType) []string {
	classes := []string{"token"}
	types := []chroma.TokenType{t}
	if t > 0 {
		types = []chroma.TokenType{t.Category(), t.SubCategory(), t}
	}
	seen := map[chroma.TokenType]bool{}
	for _, tt := range types {
		if seen[tt] {
			continue
		}
		seen[tt] = true
		classes = append(classes, kebab(tt.String()))
	}
	return classes
}

func kebab(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PreProps returns the attributes of the enclosing <pre>.
func (r *Result) PreProps() Props {
	bg := r.style.Get(chroma.Background)
	return Props{
		Class: "prism-code language-" + r.Language,
		Style: entryCSS(bg, true),
	}
}

// LineProps returns the attributes of line i.
func (r *Result) LineProps(i int) Props {
	return Props{Class: "token-line"}
}

// TokenProps returns the attributes of token j on line i.
func (r *Result) TokenProps(i, j int) Props {
	if i < 0 || i >= len(r.Lines) || j < 0 || j >= len(r.Lines[i]) {
		return Props{Class: "token"}
	}
	tok := r.Lines[i][j]
	return Props{
		Class: strings.Join(tok.Classes, " "),
		Style: entryCSS(r.style.Get(tok.Type), false),
	}
}

// Colour returns the theme colour for a token type as #rrggbb, or "" when the
// theme does not set one.
func (r *Result) Colour(t chroma.TokenType) string {
	e := r.style.Get(t)
	if !e.Colour.IsSet() {
		return ""
	}
	return e.Colour.String()
}

func entryCSS(e chroma.StyleEntry, background bool) template.CSS {
	var decls []string
	if e.Colour.IsSet() {
		decls = append(decls, "color: "+e.Colour.String())
	}
	if background && e.Background.IsSet() {
		decls = append(decls, "background-color: "+e.Background.String())
	}
	if e.Bold == chroma.Yes {
		decls = append(decls, "font-weight: bold")
	}
	if e.Italic == chroma.Yes {
		decls = append(decls, "font-style: italic")
	}
	if e.Underline == chroma.Yes {
		decls = append(decls, "text-decoration: underline")
	}
	return template.CSS(strings.Join(decls, "; "))
}
