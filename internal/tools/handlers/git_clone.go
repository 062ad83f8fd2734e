package handlers

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"task-agent/internal/sandbox"
	"task-agent/internal/tools"
)

// GitCloneHandler 克隆仓库到根目录下，写入时间戳文件并提交。
type GitCloneHandler struct {
	Runner    sandbox.Runner
	UserEmail string
}

func (GitCloneHandler) Name() string { return "git_clone_commit" }

func (GitCloneHandler) Description() string {
	return "Clone a git repository into the data directory, update a timestamp file, and commit the change."
}

func (GitCloneHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "repo_url", Type: tools.TypeString, Required: true, Kind: tools.URLParam,
			Schemes: []string{"https", "git"}, Pattern: `^(https|git)://.*\.git$`,
			Description: "Repository URL ending in .git."},
		{Name: "commit_message", Type: tools.TypeString, Default: "Automated commit by the agent",
			Description: "Commit message."},
	}
}

func (h GitCloneHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	repoURL := inv.Args.String("repo_url")
	name, err := repoName(repoURL)
	if err != nil {
		return tools.Result{}, err
	}
	dest, err := inv.Root.Resolve(name)
	if err != nil {
		return tools.Result{}, err
	}
	if _, err := os.Stat(dest); err == nil {
		return tools.Result{}, fmt.Errorf("repository %s already exists", name)
	}

	if _, err := runCommand(ctx, h.Runner, "", "git", "clone", "--", repoURL, dest); err != nil {
		return tools.Result{}, err
	}
	stamp := fmt.Sprintf("Last modified: %s\n", time.Now().UTC().Format(time.RFC3339))
	if err := writeFile(filepath.Join(dest, "timestamp.txt"), []byte(stamp)); err != nil {
		return tools.Result{}, err
	}
	if _, err := runCommand(ctx, h.Runner, dest, "git", "add", "."); err != nil {
		return tools.Result{}, err
	}
	email := h.UserEmail
	if email == "" {
		email = defaultUserEmail
	}
	out, err := runCommand(ctx, h.Runner, dest, "git",
		"-c", "user.name=task-agent", "-c", "user.email="+email,
		"commit", "-m", inv.Args.String("commit_message"))
	if err != nil {
		return tools.Result{}, err
	}
	return tools.Success("cloned and committed "+name, map[string]any{
		"path":   name,
		"commit": out.Output,
	}), nil
}

func repoName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}
	name := strings.TrimSuffix(path.Base(u.Path), ".git")
	if name == "" || name == "." || name == ".." || name == "/" || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("cannot derive a directory name from %q", raw)
	}
	return name, nil
}
