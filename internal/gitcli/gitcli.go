// Package gitcli wraps the git and gh command-line tools for the
// code-generation orchestrator: shallow clone, branch, commit, push,
// and pull-request creation.
package gitcli

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// Git runs git operations through the system git binary.
type Git struct {
	gitPath      string
	cloneTimeout time.Duration
	commitName   string
	commitEmail  string
}

// Options configure the wrapper.
type Options struct {
	CloneTimeout time.Duration
	CommitName   string
	CommitEmail  string
}

// New creates a Git wrapper and verifies git is available.
func New(ctx context.Context, opts Options) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	cloneTimeout := opts.CloneTimeout
	if cloneTimeout == 0 {
		cloneTimeout = 2 * time.Minute
	}
	commitName := opts.CommitName
	if commitName == "" {
		commitName = "Echo Agent"
	}
	commitEmail := opts.CommitEmail
	if commitEmail == "" {
		commitEmail = "agent@echohq.dev"
	}

	return &Git{
		gitPath:      gitPath,
		cloneTimeout: cloneTimeout,
		commitName:   commitName,
		commitEmail:  commitEmail,
	}, nil
}

// run executes git with -C workDir and returns combined output.
func (g *Git) run(ctx context.Context, workDir string, args ...string) (string, error) {
	full := append([]string{"-C", workDir}, args...)
	cmd := exec.CommandContext(ctx, g.gitPath, full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// Clone performs a shallow clone into dest. The clone has its own
// timeout independent of the caller's context.
func (g *Git) Clone(ctx context.Context, repoURL, token, dest string) error {
	cloneCtx, cancel := context.WithTimeout(ctx, g.cloneTimeout)
	defer cancel()

	authURL, err := withToken(repoURL, token)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(cloneCtx, g.gitPath, "clone", "--depth", "1", authURL, dest)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// Scrub the token from surfaced output.
		msg := strings.TrimSpace(string(output))
		if token != "" {
			msg = strings.ReplaceAll(msg, token, "***")
		}
		return fmt.Errorf("git clone failed: %w: %s", err, msg)
	}
	return nil
}

// CheckoutBranch creates and switches to a new branch.
func (g *Git) CheckoutBranch(ctx context.Context, repoPath, branch string) error {
	_, err := g.run(ctx, repoPath, "checkout", "-b", branch)
	return err
}

// CommitAll stages everything and commits with the configured identity.
// Returns an error when there is nothing to commit.
func (g *Git) CommitAll(ctx context.Context, repoPath, message string) error {
	if _, err := g.run(ctx, repoPath, "config", "user.name", g.commitName); err != nil {
		return err
	}
	if _, err := g.run(ctx, repoPath, "config", "user.email", g.commitEmail); err != nil {
		return err
	}
	if _, err := g.run(ctx, repoPath, "add", "-A"); err != nil {
		return err
	}

	status, err := g.run(ctx, repoPath, "status", "--porcelain")
	if err != nil {
		return err
	}
	if status == "" {
		return fmt.Errorf("nothing to commit")
	}

	_, err = g.run(ctx, repoPath, "commit", "-m", message)
	return err
}

// Push pushes the branch to origin.
func (g *Git) Push(ctx context.Context, repoPath, branch string) error {
	_, err := g.run(ctx, repoPath, "push", "-u", "origin", branch)
	return err
}

// withToken embeds an access token into an https remote URL. Non-https
// URLs and empty tokens pass through unchanged.
func withToken(repoURL, token string) (string, error) {
	if token == "" || !strings.HasPrefix(repoURL, "https://") {
		return repoURL, nil
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}
