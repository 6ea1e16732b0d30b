package tinkerblog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// dateLayouts are the accepted frontmatter date formats.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

var yamlLineRe = regexp.MustCompile(`line (\d+):`)

// ParseFile reads and parses the post at path.
func ParseFile(path string) (*Post, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParsePost(path, content)
}

// ParsePost parses a post from content. file names the source for error
// messages and supplies the slug when the frontmatter has none: either the
// file name without extension, or the directory name for index.md files.
func ParsePost(file string, content []byte) (*Post, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))

	fm, body, bodyLine, err := extractFrontmatter(file, content)
	if err != nil {
		return nil, err
	}

	post := &Post{
		Slug:        fm.Slug,
		Title:       fm.Title,
		Description: fm.Description,
		Draft:       fm.Draft,
		Body:        body,
		SourceFile:  file,
		bodyLine:    bodyLine,
	}
	if post.Slug == "" {
		post.Slug = SlugFromPath(file)
	}
	if post.Title == "" {
		post.Title = titleFromSlug(post.Slug)
	}

	if fm.Date != "" {
		date, err := parseDate(fm.Date)
		if err != nil {
			return nil, NewParseError(file, keyLine(content, "date"), fmt.Sprintf("invalid date %q", fm.Date)).
				WithHint("Use YYYY-MM-DD, e.g. date: 2019-03-01")
		}
		post.Date = date
	}

	return post, nil
}

// extractFrontmatter splits the YAML header from the markdown body. It returns
// the 1-indexed line where the body starts.
func extractFrontmatter(file string, content []byte) (*Frontmatter, []byte, int, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, 1, nil
	}

	rest := content[4:]
	var yamlContent []byte
	switch {
	case bytes.HasPrefix(rest, []byte("---\n")):
		rest = rest[4:]
	default:
		endIdx := bytes.Index(rest, []byte("\n---\n"))
		if endIdx == -1 {
			if bytes.HasSuffix(rest, []byte("\n---")) {
				endIdx = len(rest) - 4
			} else {
				return nil, nil, 0, NewParseError(file, 1, "unclosed frontmatter").
					WithHint("Close the YAML header with a line containing only ---")
			}
		}
		yamlContent = rest[:endIdx]
		rest = rest[min(len(rest), endIdx+5):]
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlContent, &fm); err != nil {
		line := 1
		if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
			n, _ := strconv.Atoi(m[1])
			line = n + 1 // the opening --- is line 1
		}
		return nil, nil, 0, NewParseError(file, line, "invalid frontmatter").
			WithHint("Check the YAML syntax of the header").
			WithCause(err)
	}

	bodyLine := bytes.Count(content[:len(content)-len(rest)], []byte("\n")) + 1
	return &fm, rest, bodyLine, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// keyLine returns the line of the first "key:" in the frontmatter.
func keyLine(content []byte, key string) int {
	for i, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), key+":") {
			return i + 1
		}
	}
	return 1
}

// SlugFromPath derives a slug from a post file path: "hello-world.md" and
// "hello-world/index.md" both give "hello-world".
func SlugFromPath(p string) string {
	base := filepath.Base(p)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.EqualFold(name, "index") {
		name = filepath.Base(filepath.Dir(p))
	}
	return slugify(name)
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func titleFromSlug(slug string) string {
	// a Caser keeps state, so each call gets its own
	return cases.Title(language.English).String(strings.ReplaceAll(slug, "-", " "))
}
