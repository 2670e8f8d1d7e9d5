package source

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MaxFileSize is the per-file size cap for inclusion in the context.
const MaxFileSize = 1024 * 1024

// DefaultExcludes lists directories and file patterns skipped during
// ingestion. Segment entries match path components; entries containing a
// glob meta character are matched per-segment with doublestar.
var DefaultExcludes = []string{
	"node_modules", ".git", "dist", "build", "coverage", ".next", ".nuxt",
	".cache", "*.log", "*.tmp", ".DS_Store", "Thumbs.db", "*.min.js",
	"*.min.css", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"bun.lockb", ".env*", ".vscode", ".idea", "*.md", "LICENSE",
	"README*", ".gitignore", ".eslintrc*", ".prettierrc*", "tsconfig.json",
	"vite.config.*", "webpack.config.*", "rollup.config.*", "jest.config.*",
	"vitest.config.*", "cypress", "e2e", "__tests__", "test", "tests",
	"spec", "specs", "docs", "documentation", "assets", "images", "public", "static",
}

// sourceExtensions is the allowlist of file extensions considered source
// code or relevant configuration.
var sourceExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".py": true,
	".java": true, ".cpp": true, ".c": true, ".cs": true, ".php": true,
	".rb": true, ".go": true, ".rs": true, ".swift": true, ".kt": true,
	".vue": true, ".svelte": true, ".html": true, ".css": true,
	".scss": true, ".sass": true, ".less": true, ".json": true,
	".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".env": true,
	".sql": true, ".sh": true, ".bat": true, ".ps1": true,
}

// importantBasenames are extension-less files included regardless of the
// extension allowlist (matched as a substring of the lowercased basename).
var importantBasenames = []string{
	"dockerfile", "makefile", "readme", "license", "changelog",
	"contributing", "docker-compose", "package", "composer",
	"requirements", "pom", "gradle", "gemfile", "cargo", "go.mod", "go.sum",
}

// Filter decides which repository files participate in context generation.
type Filter struct {
	Excludes    []string
	MaxFileSize int64
}

// NewFilter returns a Filter with the default exclude list and size cap.
func NewFilter() *Filter {
	return &Filter{Excludes: DefaultExcludes, MaxFileSize: MaxFileSize}
}

// Excluded reports whether the given slash-separated relative path matches
// any exclude pattern.
func (f *Filter) Excluded(path string) bool {
	segments := strings.Split(path, "/")
	for _, pattern := range f.Excludes {
		for _, seg := range segments {
			if strings.ContainsAny(pattern, "*?[") {
				if ok, err := doublestar.Match(pattern, seg); err == nil && ok {
					return true
				}
			} else if seg == pattern || strings.HasPrefix(seg, pattern) {
				return true
			}
		}
	}
	return false
}

// Relevant reports whether a file at the given relative path looks like
// source code or important configuration.
func (f *Filter) Relevant(path string) bool {
	if sourceExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	base := strings.ToLower(filepath.Base(path))
	for _, name := range importantBasenames {
		if strings.Contains(base, name) {
			return true
		}
	}
	return false
}

// Includes reports whether a file should be part of the generated context:
// not excluded, relevant, and within the size cap.
func (f *Filter) Includes(path string, size int64) bool {
	if size > f.maxSize() {
		return false
	}
	if f.Excluded(path) {
		return false
	}
	return f.Relevant(path)
}

func (f *Filter) maxSize() int64 {
	if f.MaxFileSize > 0 {
		return f.MaxFileSize
	}
	return MaxFileSize
}

// IsBinary sniffs content for a NUL byte in the first 8000 bytes, the same
// heuristic git uses.
func IsBinary(content []byte) bool {
	n := min(len(content), 8000)
	for _, b := range content[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
