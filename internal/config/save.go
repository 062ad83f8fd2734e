package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const fileHeader = "# task-agent configuration.\n# AIPROXY_TOKEN, OPENAI_API_KEY, OPENAI_BASE_URL, TASK_AGENT_DATA_ROOT and TASK_AGENT_LISTEN override these values at load time.\n\n"

// Save 校验后写入配置文件。data_root 必须是绝对路径：服务可能从任意工作目录启动。
// 文件包含 token，权限固定为 0600。
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return errors.New("config path is empty and $HOME is not set")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save %s: %w", path, err)
	}
	if !filepath.IsAbs(cfg.DataRoot) {
		return fmt.Errorf("refusing to save %s: data_root %q must be absolute", path, cfg.DataRoot)
	}
	cfg.DataRoot = filepath.Clean(cfg.DataRoot)

	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	buf.Write(data)
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
