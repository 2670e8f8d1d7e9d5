package github

import (
	"fmt"
	"regexp"
	"strings"
)

var repoURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)$`)

// ParseRepoURL extracts the owner and repository name from a GitHub URL.
// File paths, branch segments (/blob/..., /tree/...), trailing slashes,
// and a .git suffix are tolerated and stripped.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	clean := raw

	if idx := strings.Index(clean, "/blob/"); idx >= 0 {
		clean = clean[:idx]
	}
	if idx := strings.Index(clean, "/tree/"); idx >= 0 {
		clean = clean[:idx]
	}
	clean = strings.TrimSuffix(clean, "/")
	clean = strings.TrimSuffix(clean, ".git")

	matches := repoURLPattern.FindStringSubmatch(clean)
	if len(matches) != 3 {
		return "", "", fmt.Errorf("invalid GitHub URL: %s", raw)
	}

	owner = strings.TrimSpace(matches[1])
	repo = strings.TrimSpace(matches[2])
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("invalid GitHub URL: %s", raw)
	}

	return owner, repo, nil
}
