package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"task-agent/internal/tools"

	"github.com/bmatcuk/doublestar/v4"
)

type RecentLogLinesHandler struct{}

func (RecentLogLinesHandler) Name() string { return "recent_log_lines" }

func (RecentLogLinesHandler) Description() string {
	return "Write the first line of the N most recently modified .log files in a directory, newest first."
}

func (RecentLogLinesHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "log_dir", Type: tools.TypeString, Default: "logs", Kind: tools.PathParam,
			Description: "Directory containing .log files."},
		{Name: "output_file", Type: tools.TypeString, Default: "logs-recent.txt", Kind: tools.PathParam,
			Description: "File receiving the lines."},
		{Name: "num_files", Type: tools.TypeInteger, Default: 10, Min: tools.Int(1), Max: tools.Int(1000),
			Description: "How many log files to include."},
	}
}

type logFile struct {
	path    string
	name    string
	modTime time.Time
}

func (RecentLogLinesHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "log_dir", "output_file")
	if err != nil {
		return tools.Result{}, err
	}
	dir, output := paths[0], paths[1]
	limit := int(inv.Args.Int("num_files"))

	matches, err := doublestar.Glob(os.DirFS(dir), "*.log")
	if err != nil {
		return tools.Result{}, fmt.Errorf("list %s: %w", inv.Root.Rel(dir), err)
	}
	var files []logFile
	for _, m := range matches {
		// 目录中的符号链接可能指向根目录之外。
		p, err := inv.Root.Resolve(filepath.Join(dir, m))
		if err != nil {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, logFile{path: p, name: m, modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].name < files[j].name
	})
	if len(files) > limit {
		files = files[:limit]
	}

	var sb strings.Builder
	names := make([]string, 0, len(files))
	for _, f := range files {
		line, err := firstLine(f.path)
		if err != nil {
			return tools.Result{}, fmt.Errorf("read %s: %w", f.name, err)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
		names = append(names, f.name)
	}
	if err := writeFile(output, []byte(sb.String())); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(fmt.Sprintf("%d log files; %s", len(files), wrote(inv, output)),
		map[string]any{"files": names}), nil
}
