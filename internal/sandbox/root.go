package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Violation 标记路径越出沙箱根目录。dispatcher 将其映射为 sandbox_violation。
type Violation struct {
	Path   string
	Reason string
}

func (e *Violation) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Path)
}

// IsViolation 判断错误链中是否包含 *Violation。
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}

// Root 是唯一允许读写的目录，启动时解析一次后按值传递。
type Root struct {
	path string
}

// NewRoot 解析为绝对路径并展开符号链接；目录必须存在。
func NewRoot(dir string) (Root, error) {
	if strings.TrimSpace(dir) == "" {
		return Root{}, errors.New("sandbox root is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, fmt.Errorf("resolve sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Root{}, fmt.Errorf("resolve sandbox root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Root{}, fmt.Errorf("stat sandbox root: %w", err)
	}
	if !info.IsDir() {
		return Root{}, fmt.Errorf("sandbox root %s is not a directory", resolved)
	}
	return Root{path: filepath.Clean(resolved)}, nil
}

// Path 返回根目录的绝对路径。
func (r Root) Path() string { return r.path }

// Contains reports whether path stays inside the root after cleaning and symlink resolution.
func (r Root) Contains(path string) bool {
	_, err := r.Resolve(path)
	return err == nil
}

// Resolve 返回 path 在根目录下的绝对形式。相对路径相对于根目录。
// 最长的已存在前缀会展开符号链接后再次检查，目标文件可以尚不存在。
func (r Root) Resolve(path string) (string, error) {
	if r.path == "" {
		return "", &Violation{Path: path, Reason: "sandbox root not configured"}
	}
	if strings.TrimSpace(path) == "" {
		return "", &Violation{Path: path, Reason: "empty path"}
	}
	if strings.ContainsRune(path, 0) {
		return "", &Violation{Path: path, Reason: "path contains NUL byte"}
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(r.path, target)
	}
	target = filepath.Clean(target)
	if !within(target, r.path) {
		return "", &Violation{Path: path, Reason: "path outside sandbox root"}
	}
	resolved, err := resolveExisting(target)
	if err != nil {
		return "", &Violation{Path: path, Reason: "cannot resolve path"}
	}
	if !within(resolved, r.path) {
		return "", &Violation{Path: path, Reason: "path escapes sandbox root via symlink"}
	}
	return target, nil
}

// Rel 返回相对根目录的斜杠分隔路径，供输出展示。
func (r Root) Rel(abs string) string {
	rel, err := filepath.Rel(r.path, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// resolveExisting 展开最长已存在前缀的符号链接，再拼回不存在的尾部。
func resolveExisting(target string) (string, error) {
	existing := target
	var tail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return target, nil
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, tail...)...), nil
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
