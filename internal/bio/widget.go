package bio

import (
	"context"
	"html/template"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const twitterBase = "https://twitter.com/"

// TwitterURL returns the profile URL for handle. Surrounding whitespace and a
// leading "@" are ignored. It reports false when there is no handle, in which
// case no link should be rendered.
func TwitterURL(handle string) (string, bool) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return "", false
	}
	return twitterBase + url.PathEscape(handle), true
}

// Widget renders the bio.
type Widget struct {
	Querier  Querier
	Request  Request
	Summary  string // text following the author name
	LinkText string
	Logger   *zap.Logger
}

type widgetView struct {
	Author   string
	Image    FixedImage
	Summary  string
	Link     string
	LinkText string
}

// Render queries the bio data and writes the widget. A failed query is
// logged and renders nothing.
func (w *Widget) Render(ctx context.Context, out io.Writer) error {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	resp, err := w.Querier.QueryBio(ctx, w.Request)
	if err != nil {
		logger.Warn("bio query failed", zap.Error(err))
		return nil
	}

	meta := resp.Site.SiteMetadata
	view := widgetView{
		Author:   meta.Author,
		Image:    resp.Avatar.Image,
		Summary:  w.Summary,
		LinkText: w.LinkText,
	}
	if link, ok := TwitterURL(meta.Social.Twitter); ok {
		view.Link = link
	}
	if view.LinkText == "" {
		view.LinkText = "Follow on Twitter"
	}

	return widgetTemplate.Execute(out, view)
}

// HTML renders the widget into a string.
func (w *Widget) HTML(ctx context.Context) (template.HTML, error) {
	var b strings.Builder
	if err := w.Render(ctx, &b); err != nil {
		return "", err
	}
	return template.HTML(b.String()), nil
}

var widgetTemplate = template.Must(template.New("bio").Parse(`<div class="bio flex items-center my-6">
<div class="h-16 w-16 mr-10">{{with .Image}}{{if .Src}}<img class="rounded-full" src="{{.Src}}" srcset="{{.SrcSet}}" width="{{.Width}}" height="{{.Height}}" alt="{{$.Author}}">{{end}}{{end}}</div>
<p>Written by <strong>{{.Author}}</strong>{{.Summary}}{{if .Link}} <a class="inline-block link" href="{{.Link}}">{{.LinkText}}</a>{{end}}</p>
</div>
`))
