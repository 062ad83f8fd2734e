package handlers

import (
	"context"

	"task-agent/internal/sandbox"
	"task-agent/internal/tools"
)

// DatagenScriptHandler 用 uv 运行远程 Python 脚本，生成后续任务需要的数据文件。
type DatagenScriptHandler struct {
	Runner    sandbox.Runner
	UserEmail string
}

func (DatagenScriptHandler) Name() string { return "run_datagen_script" }

func (DatagenScriptHandler) Description() string {
	return "Install uv if needed and run a Python script from a URL, passing the user's email as its only argument. The script generates the data files used by the other operations."
}

func (h DatagenScriptHandler) Params() tools.Schema {
	email := h.UserEmail
	if email == "" {
		email = defaultUserEmail
	}
	return tools.Schema{
		{Name: "script_url", Type: tools.TypeString, Required: true, Kind: tools.URLParam,
			Pattern: `^https?://.*\.py$`, Description: "URL of the Python script to run."},
		{Name: "email", Type: tools.TypeString, Default: email,
			Pattern: emailPattern.String(), Description: "Email address passed to the script."},
	}
}

func (h DatagenScriptHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args struct {
		ScriptURL string `json:"script_url"`
		Email     string `json:"email"`
	}
	if err := inv.Args.Into(&args); err != nil {
		return tools.Result{}, err
	}
	out, err := runCommand(ctx, h.Runner, "", "uv", "run", args.ScriptURL, args.Email)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.Success("script finished", out), nil
}
