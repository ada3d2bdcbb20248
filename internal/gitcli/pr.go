package gitcli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PRCreator opens pull requests through the gh CLI.
type PRCreator struct {
	ghPath string
}

// NewPRCreator verifies gh is available.
func NewPRCreator() (*PRCreator, error) {
	ghPath, err := exec.LookPath("gh")
	if err != nil {
		return nil, fmt.Errorf("gh not found in PATH: %w", err)
	}
	return &PRCreator{ghPath: ghPath}, nil
}

// Create opens a PR from the current branch and returns its URL. token
// overrides ambient gh authentication when set.
func (p *PRCreator) Create(ctx context.Context, repoPath, title, body, baseBranch, token string) (string, error) {
	args := []string{"pr", "create", "--title", title, "--body", body}
	if baseBranch != "" {
		args = append(args, "--base", baseBranch)
	}

	cmd := exec.CommandContext(ctx, p.ghPath, args...)
	cmd.Dir = repoPath
	if token != "" {
		cmd.Env = append(cmd.Environ(), "GH_TOKEN="+token)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("gh pr create failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	// gh prints the PR URL as the last line.
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	url := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(url, "http") {
		return "", fmt.Errorf("unexpected gh output: %s", strings.TrimSpace(string(output)))
	}
	return url, nil
}
