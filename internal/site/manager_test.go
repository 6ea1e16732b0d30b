package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func slugs(m *Manager) []string {
	var out []string
	for _, p := range m.Posts() {
		out = append(out, p.Slug)
	}
	return out
}

func TestDiscoverOrdersNewestFirst(t *testing.T) {
	root := writeSite(t, map[string]string{
		"content/blog/hello-world/index.md": "---\ntitle: Hello World\ndate: 2015-05-01\n---\nHi.\n",
		"content/blog/my-second-post.md":    "---\ntitle: My Second Post!\ndate: 2015-05-06\n---\nMore.\n",
		"content/blog/new-beginnings.md":    "---\ntitle: New Beginnings\ndate: 2015-05-28\n---\nFar.\n",
		"content/blog/undated.md":           "No frontmatter at all.\n",
		"content/blog/notes.txt":            "not a post",
	})

	m := New(root, testConfig(), nil)
	require.NoError(t, m.Discover())

	assert.Equal(t, []string{"new-beginnings", "my-second-post", "hello-world", "undated"}, slugs(m))

	post, ok := m.Post("hello-world")
	require.True(t, ok)
	assert.Equal(t, "Hello World", post.Title)

	_, ok = m.Post("notes")
	assert.False(t, ok)
}

func TestDiscoverSkipsIgnoredAndDrafts(t *testing.T) {
	root := writeSite(t, map[string]string{
		"content/blog/published.md":    "---\ntitle: Published\ndate: 2020-01-01\n---\n",
		"content/blog/wip.md":          "---\ntitle: WIP\ndraft: true\n---\n",
		"content/blog/_partial.md":     "partial\n",
		"content/blog/drafts/later.md": "later\n",
		"content/blog/_hidden/a.md":    "hidden\n",
		"content/blog/.git/b.md":       "hidden\n",
	})

	cfg := testConfig()
	m := New(root, cfg, nil)
	require.NoError(t, m.Discover())
	assert.Equal(t, []string{"published"}, slugs(m))

	cfg.Features.Drafts = true
	require.NoError(t, m.Discover())
	assert.ElementsMatch(t, []string{"published", "wip"}, slugs(m))
}

func TestDiscoverLogsBrokenPosts(t *testing.T) {
	root := writeSite(t, map[string]string{
		"content/blog/good.md":   "---\ntitle: Good\n---\n",
		"content/blog/broken.md": "---\ntitle: [unclosed\n---\n",
		"content/blog/dup.md":    "---\nslug: good\n---\n",
	})

	core, logs := observer.New(zap.WarnLevel)
	m := New(root, testConfig(), zap.New(core))
	require.NoError(t, m.Discover())

	assert.Equal(t, []string{"good"}, slugs(m))
	assert.Equal(t, 1, logs.FilterMessage("skipping post").Len())
	assert.Equal(t, 1, logs.FilterMessage("duplicate slug, keeping first").Len())
}

func TestDiscoverMissingContentDir(t *testing.T) {
	m := New(t.TempDir(), testConfig(), nil)
	require.NoError(t, m.Discover())
	assert.Empty(t, m.Posts())
}

func TestPrevNext(t *testing.T) {
	root := writeSite(t, map[string]string{
		"content/blog/a.md": "---\ndate: 2020-01-01\n---\n",
		"content/blog/b.md": "---\ndate: 2020-01-02\n---\n",
		"content/blog/c.md": "---\ndate: 2020-01-03\n---\n",
	})
	m := New(root, testConfig(), nil)
	require.NoError(t, m.Discover())

	tests := []struct {
		slug, prev, next string
	}{
		{"c", "b", ""},
		{"b", "a", "c"},
		{"a", "", "b"},
		{"missing", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			prev, next := m.PrevNext(tt.slug)
			if tt.prev == "" {
				assert.Nil(t, prev)
			} else {
				require.NotNil(t, prev)
				assert.Equal(t, tt.prev, prev.Slug)
			}
			if tt.next == "" {
				assert.Nil(t, next)
			} else {
				require.NotNil(t, next)
				assert.Equal(t, tt.next, next.Slug)
			}
		})
	}
}

func TestIgnored(t *testing.T) {
	m := New("", testConfig(), nil)
	m.config.Ignore = []string{"drafts/**", "_*.md", "old/*.md"}

	assert.True(t, m.ignored("drafts"))
	assert.True(t, m.ignored("drafts/x/y.md"))
	assert.True(t, m.ignored("_x.md"))
	assert.True(t, m.ignored("sub/_x.md"))
	assert.True(t, m.ignored("old/post.md"))
	assert.False(t, m.ignored("draftsman.md"))
	assert.False(t, m.ignored("post.md"))
}

func TestContentAndStaticDir(t *testing.T) {
	cfg := testConfig()
	m := New("/site", cfg, nil)
	assert.Equal(t, "/site/content/blog", m.ContentDir())
	assert.Equal(t, "/site/static", m.StaticDir())

	cfg.ContentDir = "/abs/posts"
	cfg.StaticDir = ""
	assert.Equal(t, "/abs/posts", m.ContentDir())
	assert.Equal(t, "", m.StaticDir())
}
