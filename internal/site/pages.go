package site

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog"
	"github.com/livetemplate/tinkerblog/internal/assets"
	"github.com/livetemplate/tinkerblog/internal/bio"
	"github.com/livetemplate/tinkerblog/internal/cache"
	"github.com/livetemplate/tinkerblog/internal/config"
	"github.com/livetemplate/tinkerblog/internal/layout"
)

// excerptLength is the length of generated post summaries in the index.
const excerptLength = 160

// PageOptions control client behaviour of rendered pages.
type PageOptions struct {
	Live      bool // live blocks may send edits back to a server
	HotReload bool // the page listens for reload notifications
}

// Pages renders complete HTML documents for the index and posts.
type Pages struct {
	config   *config.Config
	site     *Manager
	markdown *tinkerblog.Markdown
	layout   *layout.Layout
	bio      *bio.Widget
	options  PageOptions
	logger   *zap.Logger
}

// NewPages creates a page renderer.
func NewPages(cfg *config.Config, site *Manager, md *tinkerblog.Markdown, widget *bio.Widget, opts PageOptions, logger *zap.Logger) *Pages {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pages{
		config:   cfg,
		site:     site,
		markdown: md,
		layout: &layout.Layout{
			PathPrefix: cfg.PathPrefix,
			BuiltWith: layout.Attribution{
				Name: cfg.Layout.BuiltWith.Name,
				URL:  cfg.Layout.BuiltWith.URL,
			},
		},
		bio:     widget,
		options: opts,
		logger:  logger,
	}
}

// SetClock overrides the layout clock, mostly for tests.
func (p *Pages) SetClock(clock func() time.Time) {
	p.layout.Clock = clock
}

// NewBioWidget builds the bio widget from configuration, answering queries
// from the static directory through a cache. The returned func stops the
// cache.
func NewBioWidget(cfg *config.Config, staticDir string, logger *zap.Logger) (*bio.Widget, func()) {
	var querier bio.Querier = &bio.ConfigQuerier{
		Metadata: bio.SiteMetadata{
			Author: cfg.SiteMetadata.Author,
			Social: bio.Social{Twitter: cfg.SiteMetadata.Social.Twitter},
		},
		StaticDir: staticDir,
		StaticURL: layout.RootPath(cfg.PathPrefix) + "static",
	}

	stop := func() {}
	if ttl := cfg.Bio.GetCacheTTL(); ttl > 0 {
		c := cache.NewMemoryCache[*bio.Response]()
		querier = bio.NewCachedQuerier(querier, c, ttl)
		stop = c.Stop
	}

	return &bio.Widget{
		Querier:  querier,
		Request:  bio.Request{AvatarPattern: cfg.Bio.Avatar, Width: bio.DefaultWidth, Height: bio.DefaultHeight},
		Summary:  cfg.Bio.Summary,
		LinkText: cfg.Bio.LinkText,
		Logger:   logger,
	}, stop
}

type postLink struct {
	Title       string
	URL         string
	Date        string
	Description string
}

type documentView struct {
	Title       string
	Description string
	Root        string
	AssetsVer   string
	Live        bool
	HotReload   bool
	Body        template.HTML
}

func (p *Pages) root() string {
	return layout.RootPath(p.config.PathPrefix)
}

func (p *Pages) link(post *tinkerblog.Post) postLink {
	desc := post.Description
	if desc == "" && p.markdown != nil {
		desc = p.markdown.Excerpt(post, excerptLength)
	}
	return postLink{
		Title:       post.Title,
		URL:         post.URLPath(p.config.PathPrefix),
		Date:        post.FormattedDate(),
		Description: desc,
	}
}

// RenderIndex writes the home page: layout with the large heading, the bio
// and the post list.
func (p *Pages) RenderIndex(ctx context.Context, w io.Writer) error {
	posts := p.site.Posts()
	links := make([]postLink, len(posts))
	for i, post := range posts {
		links[i] = p.link(post)
	}

	bioHTML, err := p.bio.HTML(ctx)
	if err != nil {
		return err
	}

	var content bytes.Buffer
	if err := indexTemplate.Execute(&content, struct {
		Bio   template.HTML
		Posts []postLink
	}{bioHTML, links}); err != nil {
		return fmt.Errorf("failed to render index: %w", err)
	}

	return p.document(ctx, w, p.root(), p.config.Title, p.config.SiteMetadata.Description, template.HTML(content.String()))
}

// RenderPost writes a post page.
func (p *Pages) RenderPost(ctx context.Context, w io.Writer, post *tinkerblog.Post) error {
	var body bytes.Buffer
	if err := p.markdown.Render(ctx, &body, post); err != nil {
		return err
	}

	bioHTML, err := p.bio.HTML(ctx)
	if err != nil {
		return err
	}

	view := struct {
		Post       postLink
		Body       template.HTML
		Bio        template.HTML
		Prev, Next *postLink
	}{
		Post: p.link(post),
		Body: template.HTML(body.String()),
		Bio:  bioHTML,
	}
	prev, next := p.site.PrevNext(post.Slug)
	if prev != nil {
		l := p.link(prev)
		view.Prev = &l
	}
	if next != nil {
		l := p.link(next)
		view.Next = &l
	}

	var content bytes.Buffer
	if err := postTemplate.Execute(&content, view); err != nil {
		return fmt.Errorf("failed to render post %s: %w", post.Slug, err)
	}

	title := post.Title + " | " + p.config.Title
	return p.document(ctx, w, post.URLPath(p.config.PathPrefix), title, view.Post.Description, template.HTML(content.String()))
}

// RenderNotFound writes the 404 page for path. An empty path renders the
// generic page written by Export.
func (p *Pages) RenderNotFound(ctx context.Context, w io.Writer, path string) error {
	content := template.HTML(`<h1>Not found</h1>`)
	if path != "" {
		content += template.HTML(`<p>There is nothing at <code>` + template.HTMLEscapeString(path) + `</code>.</p>`)
	} else {
		path = p.root() + "404.html"
	}
	return p.document(ctx, w, path, "Not found | "+p.config.Title, "", content)
}

// InvalidateBio drops cached bio data, e.g. after the avatar changed.
func (p *Pages) InvalidateBio() {
	if inv, ok := p.bio.Querier.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}

// Site returns the post manager the pages are built from.
func (p *Pages) Site() *Manager {
	return p.site
}

func (p *Pages) document(ctx context.Context, w io.Writer, currentPath, title, description string, content template.HTML) error {
	body, err := p.layout.HTML(ctx, layout.Props{
		CurrentPath: currentPath,
		Title:       p.config.Title,
		Children:    content,
	})
	if err != nil {
		return fmt.Errorf("failed to render layout: %w", err)
	}

	return documentTemplate.Execute(w, documentView{
		Title:       title,
		Description: description,
		Root:        p.root(),
		AssetsVer:   assets.Version(),
		Live:        p.options.Live,
		HotReload:   p.options.HotReload,
		Body:        body,
	})
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{with .Description}}<meta name="description" content="{{.}}">
{{end}}<link rel="stylesheet" href="{{.Root}}assets/tinkerblog.css?v={{.AssetsVer}}">
</head>
<body data-base="{{.Root}}" data-live="{{.Live}}" data-reload="{{.HotReload}}">
{{.Body}}
<script src="{{.Root}}assets/tinkerblog.js?v={{.AssetsVer}}" defer></script>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`{{.Bio}}
<ul class="post-list">
{{range .Posts}}<li>
<article>
<header>
<h2><a href="{{.URL}}">{{.Title}}</a></h2>
{{with .Date}}<small class="post-date">{{.}}</small>{{end}}
</header>
{{with .Description}}<p>{{.}}</p>{{end}}
</article>
</li>
{{end}}</ul>
`))

var postTemplate = template.Must(template.New("post").Parse(`<article class="post">
<header>
<h1>{{.Post.Title}}</h1>
{{with .Post.Date}}<p class="post-date">{{.}}</p>{{end}}
</header>
<section class="post-body">
{{.Body}}
</section>
<hr>
</article>
{{.Bio}}
<nav>
<ul class="post-nav">
<li>{{with .Prev}}<a href="{{.URL}}" rel="prev">← {{.Title}}</a>{{end}}</li>
<li>{{with .Next}}<a href="{{.URL}}" rel="next">{{.Title}} →</a>{{end}}</li>
</ul>
</nav>
`))
