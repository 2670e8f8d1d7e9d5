// Package ingest turns a GitHub repository into a set of filtered source
// files plus the generated context document. Two fetchers exist: APIFetcher
// reads through the GitHub REST API, CloneFetcher shallow-clones with git
// and walks the working tree.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"testforge/internal/events"
	"testforge/internal/github"
	"testforge/internal/gitops"
	"testforge/internal/shell"
	"testforge/internal/source"
)

// DefaultMaxFiles caps how many files a single ingestion may pull.
const DefaultMaxFiles = 400

// DefaultMaxContextBytes caps the total file content a single ingestion may
// accumulate, so the context document stays within what the model can take.
const DefaultMaxContextBytes = 4 * 1024 * 1024

// Result is the outcome of a repository ingestion.
type Result struct {
	Branch  string
	Files   []source.File
	Context string
}

// APIFetcher ingests a repository via the GitHub REST API.
type APIFetcher struct {
	Client          *github.Client
	Filter          *source.Filter
	MaxFiles        int
	MaxContextBytes int64
}

// Fetch lists the repository tree at the default branch, downloads the
// files selected by the filter, and builds the context document. Progress
// is reported to h (nil-safe).
func (f *APIFetcher) Fetch(ctx context.Context, owner, repo string, h events.EventHandler) (Result, error) {
	emit(h, events.FetchStarted{Owner: owner, Repo: repo, Source: "api"})

	info, err := f.Client.FetchRepoInfo(ctx, owner, repo)
	if err != nil {
		return Result{}, err
	}

	tree, err := f.Client.FetchTree(ctx, owner, repo, info.DefaultBranch)
	if err != nil {
		return Result{}, err
	}
	emit(h, events.TreeResolved{Branch: info.DefaultBranch, Entries: len(tree.Entries), Truncated: tree.Truncated})

	filter := f.Filter
	if filter == nil {
		filter = source.NewFilter()
	}
	maxFiles := f.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	budget := f.MaxContextBytes
	if budget <= 0 {
		budget = DefaultMaxContextBytes
	}

	var files []source.File
	var total int64
	for _, entry := range tree.Entries {
		if len(files) >= maxFiles {
			break
		}
		if !filter.Includes(entry.Path, int64(entry.Size)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		content, err := f.Client.FetchBlob(ctx, owner, repo, entry.SHA)
		if err != nil {
			return Result{}, err
		}
		if source.IsBinary(content) {
			continue
		}
		if total+int64(len(content)) > budget {
			break
		}
		total += int64(len(content))

		files = append(files, source.File{Path: entry.Path, Content: string(content), Size: len(content)})
		emit(h, events.FileFetched{Path: entry.Path, Size: len(content)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	contextText := source.BuildContext(files)
	emit(h, events.ContextBuilt{Files: len(files), Bytes: len(contextText)})

	return Result{Branch: info.DefaultBranch, Files: files, Context: contextText}, nil
}

// CloneFetcher ingests a repository by shallow-cloning it locally and
// walking the working tree. The clone is removed afterwards.
type CloneFetcher struct {
	// WorkDir is where temporary clones are created.
	WorkDir         string
	Filter          *source.Filter
	MaxContextBytes int64
}

// Fetch clones owner/repo, scans the tree, builds the context, and removes
// the clone.
func (f *CloneFetcher) Fetch(ctx context.Context, owner, repo string, h events.EventHandler) (Result, error) {
	emit(h, events.FetchStarted{Owner: owner, Repo: repo, Source: "clone"})

	if err := os.MkdirAll(f.WorkDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating work dir: %w", err)
	}

	dest := filepath.Join(f.WorkDir, fmt.Sprintf("%s-%s", owner, repo))
	runner := &shell.Runner{Dir: f.WorkDir}

	if err := gitops.Clone(ctx, runner, owner, repo, dest); err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(dest)

	branch, err := gitops.HeadBranch(ctx, runner, dest)
	if err != nil {
		branch = ""
	}

	files, err := source.ScanDir(dest, f.Filter)
	if err != nil {
		return Result{}, fmt.Errorf("scanning clone: %w", err)
	}
	budget := f.MaxContextBytes
	if budget <= 0 {
		budget = DefaultMaxContextBytes
	}
	files = capToBudget(files, budget)
	for _, file := range files {
		emit(h, events.FileFetched{Path: file.Path, Size: file.Size})
	}

	contextText := source.BuildContext(files)
	emit(h, events.ContextBuilt{Files: len(files), Bytes: len(contextText)})

	return Result{Branch: branch, Files: files, Context: contextText}, nil
}

// capToBudget returns the longest prefix of files whose total content fits
// within the byte budget.
func capToBudget(files []source.File, budget int64) []source.File {
	var total int64
	for i, file := range files {
		if total+int64(len(file.Content)) > budget {
			return files[:i]
		}
		total += int64(len(file.Content))
	}
	return files
}

func emit(h events.EventHandler, e events.Event) {
	if h != nil {
		h.Handle(e)
	}
}
