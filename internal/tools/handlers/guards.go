package handlers

import (
	"context"

	"task-agent/internal/policy"
	"task-agent/internal/tools"
)

// DataAccessHandler 只做判断：任务描述是否引用了根目录以外的路径。
type DataAccessHandler struct{}

func (DataAccessHandler) Name() string { return "check_data_access" }

func (DataAccessHandler) Description() string {
	return "Check that a task description only references data inside the data directory; never read or write outside it."
}

func (DataAccessHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "task_description", Type: tools.TypeString, Required: true,
			Description: "The task to check."},
	}
}

func (DataAccessHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	d := policy.CheckDataAccess(inv.Args.String("task_description"), inv.Root.Path())
	if !d.Allowed {
		return tools.Refusal(d.Reason, map[string]string{"error": d.Reason}), nil
	}
	return tools.Success("Task executed successfully.", nil), nil
}

// NoDeletionHandler 只做判断：任务描述是否带有删除意图。
type NoDeletionHandler struct{}

func (NoDeletionHandler) Name() string { return "check_no_deletion" }

func (NoDeletionHandler) Description() string {
	return "Check that a task never deletes files or directories anywhere, even when explicitly asked to."
}

func (NoDeletionHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "task_description", Type: tools.TypeString, Required: true,
			Description: "The task to check."},
	}
}

func (NoDeletionHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	d := policy.CheckNoDeletion(inv.Args.String("task_description"))
	if !d.Allowed {
		return tools.Refusal(d.Reason, map[string]string{"error": d.Reason}), nil
	}
	return tools.Success("No deletion requested.", nil), nil
}
