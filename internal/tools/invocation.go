package tools

import (
	"task-agent/internal/sandbox"
)

// Invocation 提供 handler 执行所需的上下文。
// 所有 PathParam 参数在此之前已经过沙箱校验，handler 无需重复检查。
type Invocation struct {
	Call        Call
	Args        Args
	Root        sandbox.Root
	Instruction string
}

// Path 返回已校验参数在根目录下的绝对路径。
// 校验之后路径被替换为越界的符号链接时，返回 sandbox_violation。
func (inv Invocation) Path(name string) (string, error) {
	p, err := inv.Root.Resolve(inv.Args.String(name))
	if err != nil {
		return "", NewError(KindSandboxViolation, inv.Call.Name, err, name+": "+err.Error())
	}
	return p, nil
}
