package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner 以 argv 形式执行外部命令（uv、npx、git、vosk-transcriber），不经过 shell。
type Runner interface {
	Run(ctx context.Context, workdir string, name string, args ...string) (string, int, error)
}

// SafeRunner 要求工作目录位于沙箱根目录内，并为每条命令附加超时。
type SafeRunner struct {
	root    Root
	timeout time.Duration
}

func NewRunner(root Root, timeout time.Duration) SafeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return SafeRunner{root: root, timeout: timeout}
}

func (r SafeRunner) Run(ctx context.Context, workdir string, name string, args ...string) (string, int, error) {
	if strings.TrimSpace(name) == "" {
		return "", -1, errors.New("empty command")
	}
	if workdir == "" {
		workdir = r.root.Path()
	}
	dir, err := r.root.Resolve(workdir)
	if err != nil {
		return "", -1, err
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", -1, fmt.Errorf("%s not available: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	out, code, err := runWrapped(cmd)
	if ctx.Err() == context.DeadlineExceeded {
		return out, code, fmt.Errorf("%s timed out after %s", name, r.timeout)
	}
	if err != nil {
		return out, code, fmt.Errorf("%s failed (exit %d): %s", name, code, strings.TrimSpace(out))
	}
	return out, code, nil
}

// runWrapped 执行已准备好的命令，返回合并输出与退出码。
func runWrapped(cmd *exec.Cmd) (string, int, error) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := stdout.String() + stderr.String()
	if err != nil {
		return out, exitCode(err), err
	}
	return out, 0, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
