// Package assets matches scraped display names against the images shipped in
// the site's public asset directory.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-gamewiki/parser"
)

// DefaultPrefix is the public URL path the asset directory is served under.
const DefaultPrefix = "/assets/"

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".svg":  {},
	".avif": {},
}

// FindLocalAsset returns DefaultPrefix+file for the first file in files whose
// lower-cased name contains the slug of name or any of its hyphen-delimited
// tokens, or "" when nothing matches. Tokens match as substrings, so "wo"
// matches "merc-wolf.jpg".
func FindLocalAsset(name string, files []string) string {
	return findWithPrefix(name, files, DefaultPrefix)
}

func findWithPrefix(name string, files []string, prefix string) string {
	slug := parser.Slugify(name)
	if slug == "" || len(files) == 0 {
		return ""
	}
	tokens := parser.SlugTokens(slug)

	for _, file := range files {
		lower := strings.ToLower(file)
		if strings.Contains(lower, slug) {
			return prefix + file
		}
		for _, token := range tokens {
			if strings.Contains(lower, token) {
				return prefix + file
			}
		}
	}
	return ""
}

// ListImages returns the image file names directly inside dir, in directory
// order. A missing directory yields an empty list.
func ListImages(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open asset dir: %w", err)
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("read asset dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

// Catalog caches the asset directory listing. The listing is computed on first
// use; concurrent first calls may each compute it and the last one wins.
type Catalog struct {
	dir    string
	prefix string

	mu     sync.RWMutex
	files  []string
	loaded bool
}

// NewCatalog builds a catalog over dir, served under prefix ("" means DefaultPrefix).
func NewCatalog(dir, prefix string) *Catalog {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Catalog{dir: dir, prefix: prefix}
}

// GetOrInit returns the cached listing, reading the directory if needed.
// Read failures are treated like an empty directory.
func (c *Catalog) GetOrInit() []string {
	c.mu.RLock()
	if c.loaded {
		files := c.files
		c.mu.RUnlock()
		return files
	}
	c.mu.RUnlock()

	files, err := ListImages(c.dir)
	if err != nil {
		slog.Warn("asset listing failed", slog.String("dir", c.dir), slog.Any("error", err))
		files = nil
	}

	c.mu.Lock()
	c.files = files
	c.loaded = true
	c.mu.Unlock()
	return files
}

// Reset drops the cached listing so the next call re-reads the directory.
func (c *Catalog) Reset() {
	c.mu.Lock()
	c.files = nil
	c.loaded = false
	c.mu.Unlock()
}

// Match returns the public path of the asset best matching name, or "".
func (c *Catalog) Match(name string) string {
	if c == nil {
		return ""
	}
	return findWithPrefix(name, c.GetOrInit(), c.prefix)
}
