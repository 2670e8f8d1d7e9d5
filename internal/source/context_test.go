package source

import (
	"strings"
	"testing"
)

func TestBuildContext_GroupsFiles(t *testing.T) {
	files := []File{
		{Path: "main.go", Content: "package main", Size: 12},
		{Path: "config.yaml", Content: "addr: :8080", Size: 11},
		{Path: "index.html", Content: "<html></html>", Size: 13},
	}

	out := BuildContext(files)

	if !strings.Contains(out, "=== REPOSITORY CODE CONTEXT FOR TEST GENERATION ===") {
		t.Error("missing context header")
	}
	if !strings.Contains(out, "=== END OF CONTEXT ===") {
		t.Error("missing context footer")
	}

	goIdx := strings.Index(out, "=== GO SOURCE FILES ===")
	cfgIdx := strings.Index(out, "=== CONFIGURATION FILES ===")
	otherIdx := strings.Index(out, "=== OTHER FILES ===")
	if goIdx == -1 || cfgIdx == -1 || otherIdx == -1 {
		t.Fatalf("missing group headers: go=%d cfg=%d other=%d", goIdx, cfgIdx, otherIdx)
	}
	if !(goIdx < cfgIdx && cfgIdx < otherIdx) {
		t.Errorf("groups out of order: go=%d cfg=%d other=%d", goIdx, cfgIdx, otherIdx)
	}

	for _, want := range []string{
		"// File: main.go\npackage main",
		"// File: config.yaml\naddr: :8080",
		"// File: index.html\n<html></html>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestBuildContext_OmitsEmptyGroups(t *testing.T) {
	out := BuildContext([]File{{Path: "main.go", Content: "package main", Size: 12}})

	if strings.Contains(out, "=== CONFIGURATION FILES ===") {
		t.Error("empty configuration group should be omitted")
	}
	if strings.Contains(out, "=== OTHER FILES ===") {
		t.Error("empty other group should be omitted")
	}
}

func TestBuildContext_NoFiles(t *testing.T) {
	out := BuildContext(nil)

	if !strings.Contains(out, "=== REPOSITORY CODE CONTEXT FOR TEST GENERATION ===") {
		t.Error("header should be present even with no files")
	}
	if strings.Contains(out, "// File:") {
		t.Error("no file blocks expected")
	}
}

func TestIsConfigFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"config.yaml", true},
		{"settings.json", true},
		{"app.toml", true},
		{"go.mod", true},
		{"go.sum", true},
		{"main.go", false},
		{"index.html", false},
	}
	for _, tt := range tests {
		if got := isConfigFile(tt.path); got != tt.want {
			t.Errorf("isConfigFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
