package gitops

import (
	"context"
	"fmt"
	"os"

	"testforge/internal/shell"
)

// Clone performs a shallow clone of the repository into dest. An existing
// directory at dest is removed first.
func Clone(ctx context.Context, r *shell.Runner, owner, repo, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("removing existing clone %s: %w", dest, err)
		}
	}

	url := fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
	if _, err := r.Run(ctx, "git", "clone", "--depth", "1", url, dest); err != nil {
		return fmt.Errorf("cloning %s/%s: %w", owner, repo, err)
	}
	return nil
}

// HeadBranch returns the currently checked-out branch of a local clone.
func HeadBranch(ctx context.Context, r *shell.Runner, dir string) (string, error) {
	repoRunner := &shell.Runner{Dir: dir, Env: r.Env}
	out, err := repoRunner.Run(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD branch: %w", err)
	}
	return trimNewline(out), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
