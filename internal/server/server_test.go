package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/tinkerblog/internal/assets"
	"github.com/livetemplate/tinkerblog/internal/config"
	"github.com/livetemplate/tinkerblog/internal/sandbox"
)

var testFiles = map[string]string{
	"content/blog/hello-world/index.md": "---\ntitle: Hello World\ndate: 2015-05-01\n---\nThis is my first post.\n\n```js\nconst x = 1;\n```\n",
	"content/blog/playground.md":        "---\ntitle: Playground\ndate: 2015-05-06\n---\nEdit me.\n\n```js react-live\nrender('<em>start</em>')\n```\n",
	"static/profile-pic.png":            "png",
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, testFiles)

	cfg := config.DefaultConfig()
	cfg.Title = "Test Blog"
	cfg.SiteMetadata.Author = "Alice"
	cfg.SiteMetadata.Social.Twitter = "alice"
	cfg.Bio.Avatar = `^profile-pic\.png$`
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(root, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Discover())
	t.Cleanup(func() { _ = srv.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ts := httptest.NewServer(srv.Handler(ctx))
	t.Cleanup(ts.Close)
	return srv, ts, root
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func document(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestServeIndex(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	resp, body := get(t, ts.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))

	doc := document(t, body)
	assert.Equal(t, "Test Blog", doc.Find("h1.text-6xl a").Text())
	assert.Equal(t, 2, doc.Find("ul.post-list li").Length())
	assert.Equal(t, "true", doc.Find("body").AttrOr("data-live", ""))
	assert.Equal(t, "https://twitter.com/alice", doc.Find(".bio a").AttrOr("href", ""))
}

func TestServePost(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	resp, body := get(t, ts.URL+"/hello-world/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := document(t, body)
	assert.Equal(t, "Hello World", doc.Find("article.post h1").Text())
	assert.Equal(t, 1, doc.Find("pre.prism-code").Length())

	resp, _ = get(t, ts.URL+"/hello-world")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/hello-world/", resp.Header.Get("Location"))
}

func TestServeNotFound(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	for _, p := range []string{"/nope/", "/nope", "/a/b/c"} {
		resp, body := get(t, ts.URL+p)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, p)
		assert.Contains(t, body, "Not found", p)
	}
}

func TestServeAssets(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	js, err := assets.GetClientJS()
	require.NoError(t, err)

	resp, body := get(t, ts.URL+"/assets/"+assets.ScriptName+"?v="+assets.Version())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(js), body)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "immutable")

	resp, _ = get(t, ts.URL+"/assets/"+assets.StylesheetName)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	resp, _ = get(t, ts.URL+"/assets/missing.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeStatic(t *testing.T) {
	_, ts, root := newTestServer(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "static", "sub"), 0755))

	resp, body := get(t, ts.URL+"/static/profile-pic.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png", body)

	resp, _ = get(t, ts.URL+"/static/sub")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "directories are not listed")

	resp, _ = get(t, ts.URL+"/static/../tinkerblog.yaml")
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestServeHealth(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	resp, body := get(t, ts.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(2), health["posts"])
}

func TestServePathPrefix(t *testing.T) {
	_, ts, _ := newTestServer(t, func(cfg *config.Config) { cfg.PathPrefix = "/blog" })

	resp, _ := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/blog/", resp.Header.Get("Location"))

	resp, body := get(t, ts.URL+"/blog/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := document(t, body)
	assert.Equal(t, "/blog/hello-world/", doc.Find("ul.post-list li").Last().Find("a").AttrOr("href", ""))
	assert.Equal(t, "/blog/", doc.Find("body").AttrOr("data-base", ""))

	resp, body = get(t, ts.URL+"/blog/hello-world/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/blog/", document(t, body).Find("h3.text-3xl a").AttrOr("href", ""))

	resp, _ = get(t, ts.URL+"/blog/static/profile-pic.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// liveSession loads the playground post and returns the id of its live block.
func liveSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, body := get(t, ts.URL+"/playground/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	block := document(t, body).Find("div.live")
	require.Equal(t, 1, block.Length())
	assert.Equal(t, "start", block.Find("[data-live-preview] em").Text())
	id := block.AttrOr("data-live-session", "")
	require.NotEmpty(t, id)
	return id
}

func postEval(t *testing.T, ts *httptest.Server, id string, req EvalRequest) (int, EvalResponse) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/live/"+id+"/eval", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out EvalResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestLiveEvalUpdatesPreview(t *testing.T) {
	srv, ts, _ := newTestServer(t, nil)
	id := liveSession(t, ts)

	code, out := postEval(t, ts, id, EvalRequest{Code: "render('<strong>edited</strong>')", Seq: 3})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "<strong>edited</strong>", out.Preview)
	assert.Empty(t, out.Error)
	assert.Equal(t, 3, out.Seq)

	block, ok := srv.Sessions().Get(id)
	require.True(t, ok)
	assert.Equal(t, "render('<em>start</em>')", strings.TrimSpace(block.Code()), "edits do not change the stored block")

	liveSession(t, ts)
}

func TestRepeatedPageViewsReuseLiveBlock(t *testing.T) {
	srv, ts, _ := newTestServer(t, nil)
	id := liveSession(t, ts)

	for i := 0; i < 50; i++ {
		assert.Equal(t, id, liveSession(t, ts))
	}
	assert.Equal(t, 1, srv.Sessions().Len())
}

func TestLiveBlocksAreCapped(t *testing.T) {
	srv, ts, root := newTestServer(t, func(cfg *config.Config) { cfg.Sandbox.MaxSessions = 2 })

	for i := 0; i < 4; i++ {
		writeFiles(t, root, map[string]string{
			fmt.Sprintf("content/blog/live-%d.md", i): fmt.Sprintf("---\ntitle: Live %d\n---\n\n```js react-live\nrender(%d)\n```\n", i, i),
		})
	}
	require.NoError(t, srv.Discover())

	for i := 0; i < 4; i++ {
		resp, _ := get(t, fmt.Sprintf("%s/live-%d/", ts.URL, i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, 2, srv.Sessions().Len())

	_, ok := srv.Sessions().Get(sandbox.BlockID("js", "render(0)\n"))
	assert.False(t, ok, "least recently used block is evicted")
	_, ok = srv.Sessions().Get(sandbox.BlockID("js", "render(3)\n"))
	assert.True(t, ok)
}

func TestLiveEvalShowsErrors(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)
	id := liveSession(t, ts)

	code, out := postEval(t, ts, id, EvalRequest{Code: "throw new Error('x')"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Error: x", out.Error)
	assert.Empty(t, out.Preview)
}

func TestLiveEvalSanitizesPreview(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)
	id := liveSession(t, ts)

	_, out := postEval(t, ts, id, EvalRequest{Code: `render('<b onclick="x()">hi</b><script>alert(1)</script>')`})
	assert.Equal(t, "<b>hi</b>", out.Preview)
}

func TestLiveEvalRejects(t *testing.T) {
	_, ts, _ := newTestServer(t, func(cfg *config.Config) { cfg.Sandbox.MaxCodeSize = 64 })
	id := liveSession(t, ts)

	code, _ := postEval(t, ts, "unknown", EvalRequest{Code: "render(1)"})
	assert.Equal(t, http.StatusNotFound, code)

	code, out := postEval(t, ts, id, EvalRequest{Code: strings.Repeat("x", 65)})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, out.Error, "code too large")

	resp, err := http.Post(ts.URL+"/live/"+id+"/eval", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLiveEvalRateLimited(t *testing.T) {
	_, ts, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimit.RequestsPerSecond = 0.001
		cfg.Server.RateLimit.Burst = 1
	})
	id := liveSession(t, ts)

	code, _ := postEval(t, ts, id, EvalRequest{Code: "render(1)"})
	require.Equal(t, http.StatusOK, code)
	code, _ = postEval(t, ts, id, EvalRequest{Code: "render(2)"})
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestOnChangeRediscoversPosts(t *testing.T) {
	srv, ts, root := newTestServer(t, nil)

	writeFiles(t, root, map[string]string{
		"content/blog/third.md": "---\ntitle: Third\ndate: 2016-01-01\n---\nNew.\n",
	})
	require.NoError(t, srv.onChange(ChangePost, "third.md"))

	resp, body := get(t, ts.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Third", document(t, body).Find("ul.post-list h2 a").First().Text())

	resp, _ = get(t, ts.URL+"/third/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOnChangeInvalidatesBio(t *testing.T) {
	srv, ts, root := newTestServer(t, nil)

	_, body := get(t, ts.URL+"/")
	assert.Equal(t, "/static/profile-pic.png", document(t, body).Find(".bio img").AttrOr("src", ""))

	require.NoError(t, os.Remove(filepath.Join(root, "static", "profile-pic.png")))
	_, body = get(t, ts.URL+"/")
	assert.Equal(t, 1, document(t, body).Find(".bio img").Length(), "bio data is cached")

	require.NoError(t, srv.onChange(ChangeStatic, "profile-pic.png"))
	_, body = get(t, ts.URL+"/")
	assert.Equal(t, 0, document(t, body).Find(".bio img").Length())
}

func TestSessionStoreExpire(t *testing.T) {
	store := NewSessionStore(time.Minute, 10, nil)
	sess := sandbox.NewSession(sandbox.NewJSEvaluator(time.Second), "js", "render(1)", true)

	store.Add(sess)
	assert.Equal(t, 1, store.Len())
	assert.Zero(t, store.Expire())

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, store.Expire())
	_, ok := store.Get(sess.ID)
	assert.False(t, ok)
}

func TestSessionStoreRunStops(t *testing.T) {
	store := NewSessionStore(time.Millisecond, 10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx)
		close(done)
	}()

	store.Add(sandbox.NewSession(sandbox.NewJSEvaluator(time.Second), "js", "render(1)", true))
	assert.Eventually(t, func() bool { return store.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
