package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hkjang/codelens/internal/analysis"
)

// DefaultMaxFileSize is the largest file the collector will read.
const DefaultMaxFileSize = 1 << 20 // 1 MiB

// Collector gathers source files for one pipeline execution.
// Implementations: FSCollector (production), test stubs.
type Collector interface {
	// Collect walks root and returns the analyzable files, sorted by path.
	// A readable root with no matching files returns an empty slice, not an
	// error.
	Collect(ctx context.Context, root string) ([]analysis.SourceFile, error)
}

// FSCollector collects files from the local filesystem. Include and Exclude
// are doublestar glob patterns matched against slash-separated paths relative
// to the root; an empty Include admits every supported file.
type FSCollector struct {
	Include     []string
	Exclude     []string
	MaxFileSize int64

	log *slog.Logger
}

var _ Collector = (*FSCollector)(nil)

// NewFSCollector builds a filesystem collector with the given glob filters.
func NewFSCollector(include, exclude []string, logger *slog.Logger) *FSCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSCollector{
		Include:     include,
		Exclude:     exclude,
		MaxFileSize: DefaultMaxFileSize,
		log:         logger,
	}
}

// Collect implements Collector.
func (c *FSCollector) Collect(ctx context.Context, root string) ([]analysis.SourceFile, error) {
	if root == "" {
		return nil, fmt.Errorf("collect: root is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("collect: %s is not a directory", root)
	}

	maxSize := c.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var files []analysis.SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || c.excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if !c.wanted(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > maxSize {
			c.log.Debug("skipping oversized file", "path", rel, "size", fi.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		if bytes.IndexByte(content, 0) >= 0 {
			return nil // binary
		}

		files = append(files, analysis.SourceFile{
			Path:     rel,
			Language: DetectLanguage(rel),
			Content:  content,
			Lines:    CountLines(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	c.log.Debug("collected source files", "root", root, "count", len(files))
	return files, nil
}

// wanted applies manifest, language, include and exclude filters to a
// relative path.
func (c *FSCollector) wanted(rel string) bool {
	if c.excluded(rel) {
		return false
	}
	if IsManifest(rel) {
		return true
	}
	if DetectLanguage(rel) == analysis.LangUnknown {
		return false
	}
	if len(c.Include) == 0 {
		return true
	}
	for _, pattern := range c.Include {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (c *FSCollector) excluded(rel string) bool {
	for _, pattern := range c.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
