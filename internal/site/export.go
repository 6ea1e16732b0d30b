package site

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog/internal/assets"
)

// Export writes the site as static files to outDir: index.html, one
// <slug>/index.html per post, 404.html, the client assets and a copy of the
// static directory. Live blocks in exported pages are read-only.
func (p *Pages) Export(ctx context.Context, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := p.exportPage(outDir, "index.html", func(buf *bytes.Buffer) error {
		return p.RenderIndex(ctx, buf)
	}); err != nil {
		return err
	}

	for _, post := range p.site.Posts() {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(post.Slug, "index.html")
		if err := p.exportPage(outDir, target, func(buf *bytes.Buffer) error {
			return p.RenderPost(ctx, buf, post)
		}); err != nil {
			return err
		}
	}

	if err := p.exportPage(outDir, "404.html", func(buf *bytes.Buffer) error {
		return p.RenderNotFound(ctx, buf, "")
	}); err != nil {
		return err
	}

	if err := copyTree(assets.ClientFS(), filepath.Join(outDir, "assets")); err != nil {
		return fmt.Errorf("failed to write assets: %w", err)
	}

	if dir := p.site.StaticDir(); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			if err := copyTree(os.DirFS(dir), filepath.Join(outDir, "static")); err != nil {
				return fmt.Errorf("failed to copy static files: %w", err)
			}
		}
	}

	p.logger.Info("exported site",
		zap.String("dir", outDir),
		zap.Int("posts", len(p.site.Posts())))
	return nil
}

func (p *Pages) exportPage(outDir, name string, render func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	target := filepath.Join(outDir, name)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(target, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	p.logger.Debug("wrote page", zap.String("file", target))
	return nil
}

// copyTree copies every regular file of src into dst, skipping hidden
// entries.
func copyTree(src fs.FS, dst string) error {
	return fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		data, err := fs.ReadFile(src, path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}
