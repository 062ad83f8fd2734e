package handlers

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"task-agent/internal/tools"

	"github.com/bmatcuk/doublestar/v4"
)

// MarkdownTitlesHandler 为目录下所有 Markdown 文件建立 “相对路径 → 第一个 H1” 索引。
type MarkdownTitlesHandler struct{}

func (MarkdownTitlesHandler) Name() string { return "index_markdown_titles" }

func (MarkdownTitlesHandler) Description() string {
	return "Find every Markdown file under a directory, extract the first H1 title of each, and write a JSON index mapping relative path to title."
}

func (MarkdownTitlesHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "doc_dir", Type: tools.TypeString, Default: "docs", Kind: tools.PathParam,
			Description: "Directory to scan recursively for .md files."},
		{Name: "output_file", Type: tools.TypeString, Default: "docs/index.json", Kind: tools.PathParam,
			Description: "JSON file receiving the index."},
	}
}

func (MarkdownTitlesHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "doc_dir", "output_file")
	if err != nil {
		return tools.Result{}, err
	}
	dir, output := paths[0], paths[1]

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
	if err != nil {
		return tools.Result{}, fmt.Errorf("list %s: %w", inv.Root.Rel(dir), err)
	}
	index := make(map[string]string, len(matches))
	for _, m := range matches {
		p, err := inv.Root.Resolve(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil {
			continue
		}
		title, ok, err := firstH1(p)
		if err != nil {
			return tools.Result{}, fmt.Errorf("read %s: %w", m, err)
		}
		if ok {
			index[m] = title
		}
	}

	if err := writeJSON(output, index); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(fmt.Sprintf("indexed %d files; %s", len(index), wrote(inv, output)), index), nil
}

func firstH1(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:]), true, nil
		}
	}
	return "", false, sc.Err()
}
