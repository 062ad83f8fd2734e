package handlers

import (
	"context"

	"task-agent/internal/sandbox"
	"task-agent/internal/tools"
)

type FormatMarkdownHandler struct {
	Runner sandbox.Runner
}

func (FormatMarkdownHandler) Name() string { return "format_markdown" }

func (FormatMarkdownHandler) Description() string {
	return "Format a markdown file in place using a specific version of Prettier."
}

func (FormatMarkdownHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "prettier_version", Type: tools.TypeString, Default: "prettier@3.4.2",
			Pattern: `^prettier@\d+\.\d+\.\d+$`, Description: "Prettier package spec, e.g. prettier@3.4.2."},
		{Name: "filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.md$`, Description: "Markdown file to format."},
	}
}

func (h FormatMarkdownHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	path, err := inv.Path("filename")
	if err != nil {
		return tools.Result{}, err
	}
	if err := requireFile(path); err != nil {
		return tools.Result{}, err
	}
	out, err := runCommand(ctx, h.Runner, "", "npx", inv.Args.String("prettier_version"), "--write", path)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.Success("formatted "+inv.Root.Rel(path), out), nil
}
