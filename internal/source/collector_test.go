package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkjang/codelens/internal/analysis"
)

// writeFile creates a file under dir, creating parent directories as needed.
func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want analysis.Language
	}{
		{"main.go", analysis.LangGo},
		{"src/app.ts", analysis.LangTypeScript},
		{"src/App.tsx", analysis.LangTypeScript},
		{"lib/util.js", analysis.LangJavaScript},
		{"scripts/run.py", analysis.LangPython},
		{"src/lib.rs", analysis.LangRust},
		{"README.md", analysis.LangUnknown},
		{"Makefile", analysis.LangUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), "path %s", tt.path)
	}
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, CountLines(nil))
	assert.Equal(t, 1, CountLines([]byte("one")))
	assert.Equal(t, 1, CountLines([]byte("one\n")))
	assert.Equal(t, 3, CountLines([]byte("a\nb\nc")))
}

func TestFSCollector_CollectsSupportedAndManifests(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "src/app.ts", "const x = 1\n")
	writeFile(t, dir, "package.json", `{"name":"demo"}`)
	writeFile(t, dir, "README.md", "# demo\n")
	writeFile(t, dir, "node_modules/dep/index.js", "module.exports = {}\n")
	writeFile(t, dir, ".git/config", "[core]\n")

	c := NewFSCollector(nil, nil, nil)
	files, err := c.Collect(context.Background(), dir)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"main.go", "package.json", "src/app.ts"}, paths)
}

func TestFSCollector_IncludeExcludeGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/app.ts", "const a = 1\n")
	writeFile(t, dir, "src/app.test.ts", "const b = 2\n")
	writeFile(t, dir, "tools/gen.go", "package tools\n")

	c := NewFSCollector([]string{"src/**/*.ts"}, []string{"**/*.test.ts"}, nil)
	files, err := c.Collect(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "src/app.ts", files[0].Path)
}

func TestFSCollector_SkipsBinaryAndOversized(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bin.go", "package main\x00binary\n")
	writeFile(t, dir, "ok.go", "package main\n")

	c := NewFSCollector(nil, nil, nil)
	c.MaxFileSize = 4 // bytes; excludes ok.go too once lowered

	files, err := c.Collect(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, files)

	c.MaxFileSize = DefaultMaxFileSize
	files, err = c.Collect(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "ok.go", files[0].Path)
}

func TestFSCollector_EmptyRootIsError(t *testing.T) {
	c := NewFSCollector(nil, nil, nil)
	_, err := c.Collect(context.Background(), "")
	assert.Error(t, err)

	_, err = c.Collect(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFSCollector_EmptyProjectIsNotError(t *testing.T) {
	c := NewFSCollector(nil, nil, nil)
	files, err := c.Collect(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFSCollector_LinesAndLanguageAnnotated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "util.py", "def a():\n    pass\n")

	c := NewFSCollector(nil, nil, nil)
	files, err := c.Collect(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, analysis.LangPython, files[0].Language)
	assert.Equal(t, 2, files[0].Lines)
}
