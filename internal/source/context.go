package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File is a repository file selected for context generation.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int    `json:"size"`
}

const (
	contextHeader = `=== REPOSITORY CODE CONTEXT FOR TEST GENERATION ===

This context contains all source code files from the repository.
Generate comprehensive test cases based on the functions, methods, and logic found in these files.

=== FILES ===

`
	contextFooter = `
=== END OF CONTEXT ===
Generate comprehensive test cases for the functions and methods found in the above code.
`
)

// BuildContext assembles the prompt context document from the selected
// files. Files are grouped into Go sources, configuration, and everything
// else, in that order.
func BuildContext(files []File) string {
	var b strings.Builder
	b.WriteString(contextHeader)

	var goFiles, configFiles, otherFiles []File
	for _, f := range files {
		switch {
		case strings.ToLower(filepath.Ext(f.Path)) == ".go":
			goFiles = append(goFiles, f)
		case isConfigFile(f.Path):
			configFiles = append(configFiles, f)
		default:
			otherFiles = append(otherFiles, f)
		}
	}

	writeGroup(&b, "=== GO SOURCE FILES ===", goFiles)
	writeGroup(&b, "=== CONFIGURATION FILES ===", configFiles)
	writeGroup(&b, "=== OTHER FILES ===", otherFiles)

	b.WriteString(contextFooter)
	return b.String()
}

func writeGroup(b *strings.Builder, header string, files []File) {
	if len(files) == 0 {
		return
	}
	b.WriteString(header + "\n\n")
	for _, f := range files {
		fmt.Fprintf(b, "// File: %s\n%s\n\n---\n", f.Path, f.Content)
	}
}

func isConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".toml", ".ini", ".env":
		return true
	}
	lower := strings.ToLower(path)
	return strings.Contains(lower, "go.mod") || strings.Contains(lower, "go.sum")
}
