// Package source collects project files for analysis and detects their
// languages. Collection is the first pipeline stage; everything downstream
// operates on the snapshot it produces.
package source

import (
	"path/filepath"
	"strings"

	"github.com/hkjang/codelens/internal/analysis"
)

// skipDirs is the set of directory names never descended into when walking
// a project tree.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
	".codelens":    true,
}

// extToLanguage maps file extensions to analysis languages.
var extToLanguage = map[string]analysis.Language{
	".go":  analysis.LangGo,
	".ts":  analysis.LangTypeScript,
	".tsx": analysis.LangTypeScript,
	".js":  analysis.LangJavaScript,
	".jsx": analysis.LangJavaScript,
	".py":  analysis.LangPython,
	".rs":  analysis.LangRust,
}

// manifestNames are dependency manifests collected regardless of language
// support; the dependency analyzer keys on their base names.
var manifestNames = map[string]bool{
	"package.json":     true,
	"go.mod":           true,
	"requirements.txt": true,
	"Cargo.toml":       true,
}

// DetectLanguage maps a file path to its language by extension.
// Unrecognized extensions yield LangUnknown.
func DetectLanguage(path string) analysis.Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extToLanguage[ext]; ok {
		return lang
	}
	return analysis.LangUnknown
}

// IsManifest reports whether path names a dependency manifest.
func IsManifest(path string) bool {
	return manifestNames[filepath.Base(path)]
}

// CountLines returns the number of lines in content. An empty file has zero
// lines; a missing trailing newline still counts the final line.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	lines := 0
	for _, b := range content {
		if b == '\n' {
			lines++
		}
	}
	if content[len(content)-1] != '\n' {
		lines++
	}
	return lines
}
