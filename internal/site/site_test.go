package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livetemplate/tinkerblog/internal/config"
)

// writeSite creates a site root with the given files, relative to root.
func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Title = "Gatsby Starter Blog"
	cfg.SiteMetadata.Author = "Kyle Mathews"
	cfg.SiteMetadata.Social.Twitter = "kylemathews"
	cfg.Bio.Summary = " who lives and works in San Francisco building useful things."
	cfg.Bio.CacheTTL = ""
	return cfg
}
