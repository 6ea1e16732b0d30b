// Package layout wraps page content with the site heading and footer.
package layout

import (
	"context"
	"html/template"
	"io"
	"strings"
	"time"
)

// HeadingVariant selects how the site title is shown.
type HeadingVariant int

const (
	// HeadingTitle is the large tier-1 heading used on the root page.
	HeadingTitle HeadingVariant = iota
	// HeadingCompact is the smaller tier-3 heading used everywhere else.
	HeadingCompact
)

func (v HeadingVariant) String() string {
	if v == HeadingTitle {
		return "title"
	}
	return "compact"
}

// RootPath returns the site root for a path prefix: "/" when there is no
// prefix, "/blog/" for "/blog".
func RootPath(prefix string) string {
	return strings.TrimRight(prefix, "/") + "/"
}

// HeadingFor picks the heading variant for currentPath. Only one trailing
// slash is ignored, so "/blog" and "/blog/" are both the root while "" and
// "//" are never the root "/".
func HeadingFor(currentPath, rootPath string) HeadingVariant {
	if currentPath != "" && strings.TrimSuffix(currentPath, "/") == strings.TrimSuffix(rootPath, "/") {
		return HeadingTitle
	}
	return HeadingCompact
}

// Link renders a hyperlink to an internal path.
func Link(to, text string) template.HTML {
	return template.HTML(`<a href="` + template.HTMLEscapeString(to) + `">` + template.HTMLEscapeString(text) + `</a>`)
}

// Heading renders the site title for variant, linked to root.
func Heading(variant HeadingVariant, root, title string) template.HTML {
	if variant == HeadingTitle {
		return `<h1 class="font-bold text-6xl">` + Link(root, title) + `</h1>`
	}
	return `<h3 class="font-bold text-3xl">` + Link(root, title) + `</h3>`
}

// Attribution is the footer's "Built with" link.
type Attribution struct {
	Name string
	URL  string
}

// Props are the inputs of one Layout render.
type Props struct {
	CurrentPath string
	Title       string
	Children    template.HTML
}

// Layout renders the page chrome.
type Layout struct {
	PathPrefix string
	BuiltWith  Attribution
	// Clock supplies the footer year. Defaults to time.Now.
	Clock func() time.Time
}

type layoutView struct {
	Heading   template.HTML
	Children  template.HTML
	Year      int
	BuiltWith Attribution
}

// Render writes the heading, the children unchanged and the footer.
func (l *Layout) Render(_ context.Context, w io.Writer, p Props) error {
	clock := l.Clock
	if clock == nil {
		clock = time.Now
	}
	root := RootPath(l.PathPrefix)

	return layoutTemplate.Execute(w, layoutView{
		Heading:   Heading(HeadingFor(p.CurrentPath, root), root, p.Title),
		Children:  p.Children,
		Year:      clock().Year(),
		BuiltWith: l.BuiltWith,
	})
}

// HTML renders into a string.
func (l *Layout) HTML(ctx context.Context, p Props) (template.HTML, error) {
	var b strings.Builder
	if err := l.Render(ctx, &b, p); err != nil {
		return "", err
	}
	return template.HTML(b.String()), nil
}

var layoutTemplate = template.Must(template.New("layout").Parse(`<div class="flex justify-center">
<div class="w-8/12">
{{.Heading}}
{{.Children}}
<footer class="mt-6">© {{.Year}}, Built with{{with .BuiltWith}}{{if .URL}} <a href="{{.URL}}">{{.Name}}</a>{{else}} {{.Name}}{{end}}{{end}}</footer>
</div>
</div>
`))
