package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"testforge/internal/events"
	"testforge/internal/github"
	"testforge/internal/source"
)

type recordingHandler struct {
	events []events.Event
}

func (h *recordingHandler) Handle(e events.Event) { h.events = append(h.events, e) }

// fakeGitHub serves the three endpoints the APIFetcher touches for a
// repository containing the given files.
func fakeGitHub(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v3/repos/octocat/hello":
			json.NewEncoder(w).Encode(map[string]any{
				"name":           "hello",
				"default_branch": "main",
			})

		case strings.HasPrefix(r.URL.Path, "/api/v3/repos/octocat/hello/git/trees/"):
			var entries []map[string]any
			for path, content := range files {
				entries = append(entries, map[string]any{
					"path": path,
					"type": "blob",
					"sha":  "sha-" + path,
					"size": len(content),
				})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"sha": "treesha", "truncated": false, "tree": entries,
			})

		case strings.HasPrefix(r.URL.Path, "/api/v3/repos/octocat/hello/git/blobs/sha-"):
			path := strings.TrimPrefix(r.URL.Path, "/api/v3/repos/octocat/hello/git/blobs/sha-")
			content, ok := files[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"sha":      "sha-" + path,
				"content":  base64.StdEncoding.EncodeToString([]byte(content)),
				"encoding": "base64",
			})

		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestAPIFetcher_Fetch(t *testing.T) {
	srv := fakeGitHub(t, map[string]string{
		"main.go":     "package main",
		"app.min.js":  "var x=1",
		"photo.png":   "\x00\x01binary",
		"config.yaml": "addr: :8080",
	})
	defer srv.Close()

	gh, err := github.New("", github.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	h := &recordingHandler{}
	f := &APIFetcher{Client: gh}
	result, err := f.Fetch(context.Background(), "octocat", "hello", h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Branch != "main" {
		t.Errorf("unexpected branch: %s", result.Branch)
	}
	// .min.js is excluded, .png is irrelevant.
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files, got %v", result.Files)
	}
	if result.Files[0].Path != "config.yaml" || result.Files[1].Path != "main.go" {
		t.Errorf("unexpected files: %v", result.Files)
	}
	if !strings.Contains(result.Context, "// File: main.go") {
		t.Error("context should contain main.go")
	}

	var sawStart, sawTree, sawBuilt bool
	fetched := 0
	for _, e := range h.events {
		switch ev := e.(type) {
		case events.FetchStarted:
			sawStart = ev.Source == "api"
		case events.TreeResolved:
			sawTree = ev.Branch == "main"
		case events.FileFetched:
			fetched++
		case events.ContextBuilt:
			sawBuilt = ev.Files == 2
		}
	}
	if !sawStart || !sawTree || !sawBuilt || fetched != 2 {
		t.Errorf("unexpected event stream: %+v", h.events)
	}
}

func TestAPIFetcher_MaxFilesCap(t *testing.T) {
	srv := fakeGitHub(t, map[string]string{
		"a.go": "package a",
		"b.go": "package b",
		"c.go": "package c",
	})
	defer srv.Close()

	gh, _ := github.New("", github.WithBaseURL(srv.URL+"/"))
	f := &APIFetcher{Client: gh, MaxFiles: 2}

	result, err := f.Fetch(context.Background(), "octocat", "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files (capped), got %d", len(result.Files))
	}
}

func TestAPIFetcher_ContextBytesCap(t *testing.T) {
	// All contents are 9 bytes, so an 18-byte budget fits exactly two
	// files whatever order the tree lists them in.
	srv := fakeGitHub(t, map[string]string{
		"a.go": "package a",
		"b.go": "package b",
		"c.go": "package c",
	})
	defer srv.Close()

	gh, _ := github.New("", github.WithBaseURL(srv.URL+"/"))
	f := &APIFetcher{Client: gh, MaxContextBytes: 18}

	result, err := f.Fetch(context.Background(), "octocat", "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files (byte-capped), got %d", len(result.Files))
	}
}

func TestCapToBudget(t *testing.T) {
	files := []source.File{
		{Path: "a.go", Content: "aaaa", Size: 4},
		{Path: "b.go", Content: "bbbb", Size: 4},
		{Path: "c.go", Content: "cccc", Size: 4},
	}

	tests := []struct {
		name   string
		budget int64
		want   int
	}{
		{"fits all", 100, 3},
		{"fits exactly two", 8, 2},
		{"cuts mid-file", 10, 2},
		{"fits none", 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := capToBudget(files, tt.budget)
			if len(got) != tt.want {
				t.Fatalf("expected %d files, got %d", tt.want, len(got))
			}
		})
	}
}

func TestAPIFetcher_SkipsBinaryBlobs(t *testing.T) {
	srv := fakeGitHub(t, map[string]string{
		"data.sql": "\x00\x01\x02",
		"main.go":  "package main",
	})
	defer srv.Close()

	gh, _ := github.New("", github.WithBaseURL(srv.URL+"/"))
	f := &APIFetcher{Client: gh}

	result, err := f.Fetch(context.Background(), "octocat", "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0].Path != "main.go" {
		t.Fatalf("expected only main.go, got %v", result.Files)
	}
}

func TestAPIFetcher_RepoNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	}))
	defer srv.Close()

	gh, _ := github.New("", github.WithBaseURL(srv.URL+"/"))
	f := &APIFetcher{Client: gh}

	if _, err := f.Fetch(context.Background(), "octocat", "missing", nil); err == nil {
		t.Fatal("expected error for missing repo")
	}
}

func TestAPIFetcher_CanceledContext(t *testing.T) {
	srv := fakeGitHub(t, map[string]string{"main.go": "package main"})
	defer srv.Close()

	gh, _ := github.New("", github.WithBaseURL(srv.URL+"/"))
	f := &APIFetcher{Client: gh}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, "octocat", "hello", nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
