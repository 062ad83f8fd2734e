package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"task-agent/internal/tools"
)

var emailPattern = regexp.MustCompile(`^[\w.+-]+@[\w.-]+\.\w+$`)

// writeFile 写入文件，必要时创建父目录。
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON 以 4 空格缩进写出 JSON，不转义 HTML 字符。
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return writeFile(path, bytes.TrimRight(buf.Bytes(), "\n"))
}

// writeIndented 重新缩进一段原始 JSON 后写出，保留键顺序。
func writeIndented(path string, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return fmt.Errorf("indent json: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// readLines 返回去掉行尾空白的全部行。
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), " \t\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return lines, nil
}

// firstLine 读取文件首行（去除首尾空白）。
func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// resolvePaths 解析若干路径参数，返回对应的绝对路径。
func resolvePaths(inv tools.Invocation, names ...string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		p, err := inv.Path(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist", filepath.Base(path))
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filepath.Base(path))
	}
	return nil
}

func wrote(inv tools.Invocation, path string) string {
	return "wrote " + inv.Root.Rel(path)
}

// fetch 发起 GET 请求，检查状态码并限制响应大小。
func fetch(req *http.Request, client *http.Client, maxBytes int64) ([]byte, *http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, resp, fmt.Errorf("read response from %s: %w", req.URL.Redacted(), err)
	}
	if int64(len(body)) > maxBytes {
		return nil, resp, fmt.Errorf("response from %s exceeds %d bytes", req.URL.Redacted(), maxBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp, fmt.Errorf("fetch %s: http_%d", req.URL.Redacted(), resp.StatusCode)
	}
	return body, resp, nil
}
