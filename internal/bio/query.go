// Package bio renders the author bio: avatar, name, a short summary and a
// link to the author's social profile.
package bio

import (
	"context"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/livetemplate/tinkerblog/internal/cache"
)

// Default avatar size in logical pixels.
const (
	DefaultWidth  = 75
	DefaultHeight = 75
)

// Request selects the avatar and its fixed size.
type Request struct {
	AvatarPattern string // regular expression matched against static file names
	Width         int
	Height        int
}

func (r Request) size() (int, int) {
	w, h := r.Width, r.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

// FixedImage describes a pre-sized image.
type FixedImage struct {
	Src    string
	SrcSet string
	Width  int
	Height int
}

// Avatar is the avatar part of a Response.
type Avatar struct {
	Image FixedImage
}

// Social holds social network handles.
type Social struct {
	Twitter string
}

// SiteMetadata is the author information.
type SiteMetadata struct {
	Author string
	Social Social
}

// Site is the site part of a Response.
type Site struct {
	SiteMetadata SiteMetadata
}

// Response is the data the widget renders.
type Response struct {
	Avatar Avatar
	Site   Site
}

// Querier answers bio queries.
type Querier interface {
	QueryBio(ctx context.Context, req Request) (*Response, error)
}

// ConfigQuerier answers from static site metadata and the files of a static
// directory served under StaticURL.
type ConfigQuerier struct {
	Metadata  SiteMetadata
	StaticDir string
	StaticURL string // URL prefix of StaticDir, "/static" by default
}

// QueryBio implements Querier. A missing avatar is not an error: the
// response carries an empty image.
func (q *ConfigQuerier) QueryBio(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &Response{Site: Site{SiteMetadata: q.Metadata}}
	if req.AvatarPattern == "" {
		return resp, nil
	}

	re, err := regexp.Compile(req.AvatarPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid avatar pattern %q: %w", req.AvatarPattern, err)
	}

	name, err := q.findAvatar(re)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return resp, nil
	}

	w, h := req.size()
	base := q.StaticURL
	if base == "" {
		base = "/static"
	}
	src := path.Join(base, name)
	resp.Avatar.Image = FixedImage{
		Src:    src,
		SrcSet: src + " 1x, " + src + " 2x",
		Width:  w,
		Height: h,
	}
	return resp, nil
}

// findAvatar returns the first file name, in lexical order, matching re.
func (q *ConfigQuerier) findAvatar(re *regexp.Regexp) (string, error) {
	if q.StaticDir == "" {
		return "", nil
	}
	entries, err := os.ReadDir(q.StaticDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read static dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && re.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return names[0], nil
}

// CachedQuerier caches another Querier's responses per request.
type CachedQuerier struct {
	next  Querier
	cache cache.Cache[*Response]
	ttl   time.Duration
}

// NewCachedQuerier wraps next. A non-positive ttl disables caching.
func NewCachedQuerier(next Querier, c cache.Cache[*Response], ttl time.Duration) *CachedQuerier {
	return &CachedQuerier{next: next, cache: c, ttl: ttl}
}

// QueryBio implements Querier.
func (q *CachedQuerier) QueryBio(ctx context.Context, req Request) (*Response, error) {
	if q.ttl <= 0 || q.cache == nil {
		return q.next.QueryBio(ctx, req)
	}

	key := cacheKey(req)
	if resp, found, _ := q.cache.Get(key); found {
		return resp, nil
	}

	resp, err := q.next.QueryBio(ctx, req)
	if err != nil {
		return nil, err
	}
	q.cache.Set(key, resp, q.ttl)
	return resp, nil
}

// Invalidate drops every cached response, e.g. after static files change.
func (q *CachedQuerier) Invalidate() {
	if q.cache != nil {
		q.cache.InvalidateAll()
	}
}

func cacheKey(req Request) string {
	w, h := req.size()
	return req.AvatarPattern + "|" + strconv.Itoa(w) + "x" + strconv.Itoa(h)
}
