// Package site discovers posts and assembles the index and post pages.
package site

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog"
	"github.com/livetemplate/tinkerblog/internal/config"
)

// skipDirs are never searched for posts.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"public":       true,
}

// Manager holds the posts of a site, newest first.
type Manager struct {
	rootDir string
	config  *config.Config
	logger  *zap.Logger

	mu     sync.RWMutex
	posts  []*tinkerblog.Post
	bySlug map[string]*tinkerblog.Post
}

// New creates a new site manager
func New(rootDir string, cfg *config.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		rootDir: rootDir,
		config:  cfg,
		logger:  logger,
		bySlug:  make(map[string]*tinkerblog.Post),
	}
}

// ContentDir returns the absolute directory searched for posts.
func (m *Manager) ContentDir() string {
	if filepath.IsAbs(m.config.ContentDir) {
		return m.config.ContentDir
	}
	return filepath.Join(m.rootDir, m.config.ContentDir)
}

// Discover scans the content directory for markdown posts. Files that fail
// to parse are logged and skipped; drafts are skipped unless enabled.
func (m *Manager) Discover() error {
	contentDir := m.ContentDir()

	var posts []*tinkerblog.Post
	bySlug := make(map[string]*tinkerblog.Post)

	err := filepath.WalkDir(contentDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == contentDir && errors.Is(err, fs.ErrNotExist) {
				m.logger.Warn("content directory does not exist", zap.String("dir", contentDir))
				return filepath.SkipDir
			}
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path != contentDir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.EqualFold(filepath.Ext(name), ".md") {
			return nil
		}

		relPath, err := filepath.Rel(contentDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if strings.HasPrefix(name, "_") || m.ignored(relPath) {
			return nil
		}

		post, err := tinkerblog.ParseFile(path)
		if err != nil {
			m.logger.Warn("skipping post", zap.String("file", relPath), zap.Error(err))
			return nil
		}
		if post.Draft && !m.config.Features.Drafts {
			m.logger.Debug("skipping draft", zap.String("file", relPath))
			return nil
		}
		if existing, dup := bySlug[post.Slug]; dup {
			m.logger.Warn("duplicate slug, keeping first",
				zap.String("slug", post.Slug),
				zap.String("kept", existing.SourceFile),
				zap.String("skipped", post.SourceFile))
			return nil
		}

		bySlug[post.Slug] = post
		posts = append(posts, post)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to discover posts in %s: %w", contentDir, err)
	}

	sortPosts(posts)

	m.mu.Lock()
	m.posts = posts
	m.bySlug = bySlug
	m.mu.Unlock()

	m.logger.Info("discovered posts", zap.Int("count", len(posts)), zap.String("dir", contentDir))
	return nil
}

// sortPosts orders newest first; undated posts go last, ties by title.
func sortPosts(posts []*tinkerblog.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.Title < b.Title
	})
}

// ignored reports whether relPath matches one of the configured ignore
// patterns. A trailing "/**" matches everything below a directory.
func (m *Manager) ignored(relPath string) bool {
	for _, pattern := range m.config.Ignore {
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(pattern, relPath); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(relPath)); ok {
			return true
		}
	}
	return false
}

// Posts returns all posts, newest first.
func (m *Manager) Posts() []*tinkerblog.Post {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*tinkerblog.Post, len(m.posts))
	copy(out, m.posts)
	return out
}

// Post returns a post by slug.
func (m *Manager) Post(slug string) (*tinkerblog.Post, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	post, ok := m.bySlug[slug]
	return post, ok
}

// PrevNext returns the neighbours of slug: previous is the older post,
// next the newer one.
func (m *Manager) PrevNext(slug string) (prev, next *tinkerblog.Post) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, post := range m.posts {
		if post.Slug != slug {
			continue
		}
		if i+1 < len(m.posts) {
			prev = m.posts[i+1]
		}
		if i > 0 {
			next = m.posts[i-1]
		}
		return prev, next
	}
	return nil, nil
}

// Reload re-discovers posts after filePath changed.
func (m *Manager) Reload(filePath string) error {
	m.logger.Debug("reloading posts", zap.String("changed", filePath))
	return m.Discover()
}

// StaticDir returns the absolute directory served under /static/.
func (m *Manager) StaticDir() string {
	if m.config.StaticDir == "" || filepath.IsAbs(m.config.StaticDir) {
		return m.config.StaticDir
	}
	return filepath.Join(m.rootDir, m.config.StaticDir)
}
