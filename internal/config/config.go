package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// 模型提供方。
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config 持久化配置文件结构。
type Config struct {
	DataRoot    string   `toml:"data_root"`
	Listen      string   `toml:"listen"`
	CORSOrigins []string `toml:"cors_origins"`

	// TrustedProxies 允许设置 X-Forwarded-For 的代理地址或网段。
	TrustedProxies []string `toml:"trusted_proxies"`

	Model    ModelConfig    `toml:"model"`
	Handlers HandlersConfig `toml:"handlers"`
	Log      LogConfig      `toml:"log"`

	Source string `toml:"-"`
}

// ModelConfig 描述分类器及模型类操作使用的服务端点。
type ModelConfig struct {
	Provider              string `toml:"provider"`
	URL                   string `toml:"url"`
	Token                 string `toml:"token"`
	Model                 string `toml:"model"`
	EmbeddingModel        string `toml:"embedding_model"`
	TranscriptionModel    string `toml:"transcription_model"`
	VisionModel           string `toml:"vision_model"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// HandlersConfig 控制各操作的超时与容量上限。
type HandlersConfig struct {
	FetchTimeoutSeconds   int    `toml:"fetch_timeout_seconds"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
	MaxFetchBytes         int64  `toml:"max_fetch_bytes"`
	SimilarityParallelism int    `toml:"similarity_parallelism"`
	UserEmail             string `toml:"user_email"`
}

type LogConfig struct {
	Path      string `toml:"path"`
	ToolsPath string `toml:"tools_path"`
	LLMPath   string `toml:"llm_path"`
	Level     string `toml:"level"`
}

func Default() Config {
	return Config{
		DataRoot:       "/data",
		Listen:         ":8000",
		CORSOrigins:    []string{"*"},
		TrustedProxies: []string{"127.0.0.1", "::1"},
		Model: ModelConfig{
			Provider:              ProviderOpenAI,
			URL:                   "https://aiproxy.sanand.workers.dev/openai/v1",
			Model:                 "gpt-4o-mini",
			EmbeddingModel:        "text-embedding-3-small",
			TranscriptionModel:    "whisper-1",
			VisionModel:           "gpt-4o-mini",
			RequestTimeoutSeconds: 20,
		},
		Handlers: HandlersConfig{
			FetchTimeoutSeconds:   30,
			CommandTimeoutSeconds: 120,
			MaxFetchBytes:         10 << 20,
			SimilarityParallelism: 8,
			UserEmail:             "user@example.com",
		},
		Log: LogConfig{
			Path:      "logs/task-agent.log",
			ToolsPath: "logs/tools.log",
			LLMPath:   "logs/llm.log",
			Level:     "info",
		},
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".task-agent", "config.toml")
}

// Load 读取 .env 与 TOML 配置文件，再叠加环境变量。配置文件缺失时使用默认值。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	// .env 不覆盖已有环境变量。
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	// AIPROXY_TOKEN 优先于 OPENAI_API_KEY。
	if env := firstEnv("AIPROXY_TOKEN", "OPENAI_API_KEY"); env != "" {
		cfg.Model.Token = env
	}
	if env := firstEnv("OPENAI_BASE_URL"); env != "" {
		cfg.Model.URL = env
	}
	if env := firstEnv("TASK_AGENT_DATA_ROOT"); env != "" {
		cfg.DataRoot = env
	}
	if env := firstEnv("TASK_AGENT_LISTEN"); env != "" {
		cfg.Listen = env
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return ""
}

// RequestTimeout 返回模型请求超时，非正数时回落到 20s。
func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Model.RequestTimeoutSeconds, 20)
}

func (c Config) FetchTimeout() time.Duration {
	return seconds(c.Handlers.FetchTimeoutSeconds, 30)
}

func (c Config) CommandTimeout() time.Duration {
	return seconds(c.Handlers.CommandTimeoutSeconds, 120)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// Validate 检查启动所必需的字段。
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataRoot) == "" {
		return errors.New("data_root is required")
	}
	switch c.Model.Provider {
	case "", ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown model.provider %q", c.Model.Provider)
	}
	return nil
}
