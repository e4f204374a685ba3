package snapshot

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/RogWilco/jacob/pkg/utils"
)

// GitCloner checks repositories out with a shallow `git clone`.
type GitCloner struct {
	// BaseDir holds the checkouts; empty means the OS temp dir.
	BaseDir string
	// RemoteBase is prefixed to "<owner>/<repo>.git".
	RemoteBase string

	logger utils.ExtendedLogger
}

func NewGitCloner(baseDir string, logger utils.ExtendedLogger) *GitCloner {
	return &GitCloner{BaseDir: baseDir, RemoteBase: "https://github.com", logger: logger}
}

// SplitRepo splits "owner/name".
func SplitRepo(repoFullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repoFullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repo name %q", repoFullName)
	}
	return owner, name, nil
}

func (g *GitCloner) remoteURL(repoFullName, credential string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(g.RemoteBase, "/") + "/" + repoFullName + ".git")
	if err != nil {
		return "", err
	}
	if credential != "" && (u.Scheme == "https" || u.Scheme == "http") {
		u.User = url.UserPassword("x-access-token", credential)
	}
	return u.String(), nil
}

func (g *GitCloner) Acquire(ctx context.Context, repoFullName, credential string) (*Snapshot, error) {
	owner, name, err := SplitRepo(repoFullName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	remote, err := g.remoteURL(repoFullName, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}

	if g.BaseDir != "" {
		if err := os.MkdirAll(g.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
		}
	}
	dir, err := os.MkdirTemp(g.BaseDir, fmt.Sprintf("jacob-%s-%s-", owner, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--quiet", remote, dir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if output, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		msg := strings.TrimSpace(string(output))
		if credential != "" {
			msg = strings.ReplaceAll(msg, credential, "***")
		}
		return nil, fmt.Errorf("%w: clone %s: %v: %s", ErrAcquire, repoFullName, err, msg)
	}

	g.logger.Debugf("cloned %s into %s", repoFullName, dir)
	return New(dir, func() error {
		g.logger.Debugf("removing checkout %s", dir)
		return os.RemoveAll(dir)
	}), nil
}
