package handlers

import (
	"context"
	"errors"
	"strings"

	"task-agent/internal/sandbox"
)

var errNoRunner = errors.New("command runner not configured")

type commandOutput struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

// runCommand 在沙箱根目录下执行外部命令，失败时错误中带有退出码与输出。
func runCommand(ctx context.Context, runner sandbox.Runner, workdir string, name string, args ...string) (commandOutput, error) {
	res := commandOutput{Command: strings.Join(append([]string{name}, args...), " ")}
	if runner == nil {
		return res, errNoRunner
	}
	out, code, err := runner.Run(ctx, workdir, name, args...)
	res.ExitCode = code
	res.Output = strings.TrimSpace(out)
	return res, err
}
