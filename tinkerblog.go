// Package tinkerblog renders a markdown blog whose code blocks can be either
// syntax highlighted or live, editable sandboxes.
//
// Posts are markdown files with YAML frontmatter. Fenced code blocks are
// handed to a CodeRenderer; an info string such as "js react-live" turns a
// block into a live sandbox.
package tinkerblog

import (
	"path"
	"strings"
	"time"
)

// Post is one blog post.
type Post struct {
	Slug        string
	Title       string
	Description string
	Date        time.Time
	Draft       bool
	Body        []byte // markdown following the frontmatter
	SourceFile  string // path of the source file, for error messages

	bodyLine int // line of SourceFile where Body starts
}

// Frontmatter is the YAML header of a post.
type Frontmatter struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
	Draft       bool   `yaml:"draft"`
}

// URLPath returns the path the post is served at under prefix, e.g.
// "/blog/hello-world/".
func (p *Post) URLPath(prefix string) string {
	return path.Join("/", strings.TrimRight(prefix, "/"), p.Slug) + "/"
}

// FormattedDate returns the date as shown in post lists, or "" when unset.
func (p *Post) FormattedDate() string {
	if p.Date.IsZero() {
		return ""
	}
	return p.Date.Format("January 2, 2006")
}

// BodyLine returns the line of SourceFile where the markdown body starts.
func (p *Post) BodyLine() int {
	return p.bodyLine
}
