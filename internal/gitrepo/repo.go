// Package gitrepo reads the state of the plugin checkout that is being
// released: its root, current branch and commit, whether the working tree
// is clean, and which GitHub repository the origin remote points to.
//
// Design decisions:
//   - We shell out to `git` instead of using a Go Git library. The release
//     flow only needs a handful of read-only queries, and the git CLI honours
//     the user's config (credential helpers, url.insteadOf rewrites) exactly.
//   - All errors from Git commands are wrapped in model.CLIError with
//     ExitGitError so the CLI can exit with the git-specific code.
package gitrepo

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// Repo runs git queries against one working tree.
type Repo struct {
	// Dir is any directory inside the working tree. Git resolves the
	// repository from it via -C.
	Dir string
}

// Open returns a Repo for dir after checking that dir is inside a git
// working tree.
func Open(ctx context.Context, dir string) (*Repo, error) {
	r := &Repo{Dir: dir}
	if _, err := r.Root(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Root returns the absolute path of the working tree's top-level directory,
// as reported by `git rev-parse --show-toplevel`.
func (r *Repo) Root(ctx context.Context) (string, error) {
	out, err := runGit(ctx, r.Dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the short name of the checked-out branch. It returns
// "HEAD" in a detached HEAD state.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := runGit(ctx, r.Dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HeadCommit returns the full SHA of HEAD.
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	out, err := runGit(ctx, r.Dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RemoteURL returns the fetch URL of the named remote.
func (r *Repo) RemoteURL(ctx context.Context, name string) (string, error) {
	out, err := runGit(ctx, r.Dir, "remote", "get-url", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IsClean reports whether the working tree has no staged, unstaged or
// untracked changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := runGit(ctx, r.Dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

// GitHubRepo resolves the owner and name of the GitHub repository behind the
// named remote.
func (r *Repo) GitHubRepo(ctx context.Context, remote string) (owner, name string, err error) {
	url, err := r.RemoteURL(ctx, remote)
	if err != nil {
		return "", "", err
	}
	return ParseGitHubRemote(url)
}

// githubRemoteRegex matches the SSH, SCP-like and HTTPS forms of a GitHub
// remote:
//
//	git@github.com:owner/repo.git
//	ssh://git@github.com/owner/repo.git
//	https://github.com/owner/repo(.git)
var githubRemoteRegex = regexp.MustCompile(`^(?:https?://(?:[^@/]+@)?|ssh://git@|git@)github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseGitHubRemote extracts the owner and repository name from a GitHub
// remote URL.
func ParseGitHubRemote(url string) (owner, repo string, err error) {
	m := githubRemoteRegex.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", fmt.Errorf("not a GitHub remote: %q", url)
	}
	return m[1], m[2], nil
}

// runGit executes a git command with the given arguments in the specified
// directory.
//
// It captures both stdout and stderr. On success (exit code 0), it returns
// the stdout output. On failure, it returns a model.CLIError with
// ExitGitError, including the stderr output in the message.
//
// The directory is passed to git via the -C flag rather than
// exec.Cmd.Dir, so git resolves it exactly as it would on the command line.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204: args are constructed internally
	cmd := exec.CommandContext(ctx, "git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}

	return stdout.String(), nil
}
