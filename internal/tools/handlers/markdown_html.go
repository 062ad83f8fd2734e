package handlers

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"task-agent/internal/tools"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type MarkdownHTMLHandler struct{}

func (MarkdownHTMLHandler) Name() string { return "markdown_to_html" }

func (MarkdownHTMLHandler) Description() string {
	return "Convert a Markdown file to HTML and save the result."
}

func (MarkdownHTMLHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "input_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.md$`, Description: "Markdown source."},
		{Name: "output_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.html$`, Description: "HTML destination."},
	}
}

func (MarkdownHTMLHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "input_filename", "output_filename")
	if err != nil {
		return tools.Result{}, err
	}
	src, err := os.ReadFile(paths[0])
	if err != nil {
		return tools.Result{}, err
	}
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return tools.Result{}, fmt.Errorf("convert markdown: %w", err)
	}
	if err := writeFile(paths[1], buf.Bytes()); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(wrote(inv, paths[1]), nil), nil
}
