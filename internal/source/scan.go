package source

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// ScanDir walks root and returns the files selected by the filter, with
// paths relative to root. Unreadable and binary files are skipped.
func ScanDir(root string, filter *Filter) ([]File, error) {
	if filter == nil {
		filter = NewFilter()
	}

	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			rel, relErr := filepath.Rel(root, path)
			if relErr == nil && rel != "." && filter.Excluded(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !filter.Includes(rel, info.Size()) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable file", "path", rel, "error", err)
			return nil
		}
		if IsBinary(content) {
			return nil
		}

		files = append(files, File{Path: rel, Content: string(content), Size: len(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
