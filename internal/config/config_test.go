package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"AIPROXY_TOKEN", "OPENAI_API_KEY", "OPENAI_BASE_URL", "TASK_AGENT_DATA_ROOT", "TASK_AGENT_LISTEN"} {
		t.Setenv(key, "")
	}
	// godotenv 读取当前目录的 .env，切到空目录避免干扰。
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_MissingFile_UsesDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != path {
		t.Fatalf("cfg.Source = %q, want %q", cfg.Source, path)
	}
	if cfg.DataRoot != "/data" {
		t.Fatalf("cfg.DataRoot = %q, want /data", cfg.DataRoot)
	}
	if cfg.Model.Provider != ProviderOpenAI || cfg.Model.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model defaults: %+v", cfg.Model)
	}
	if cfg.RequestTimeout() != 20*time.Second {
		t.Fatalf("RequestTimeout() = %v", cfg.RequestTimeout())
	}
}

func TestLoad_TOMLAndEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
data_root = "/srv/data"
cors_origins = ["https://a.test"]

[model]
provider = "anthropic"
model = "claude-test"
token = "file-token"
request_timeout_seconds = 5

[handlers]
max_fetch_bytes = 1024
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("AIPROXY_TOKEN", "env-token")
	t.Setenv("TASK_AGENT_LISTEN", "127.0.0.1:9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataRoot != "/srv/data" {
		t.Fatalf("DataRoot = %q", cfg.DataRoot)
	}
	if cfg.Model.Provider != ProviderAnthropic || cfg.Model.Model != "claude-test" {
		t.Fatalf("unexpected model: %+v", cfg.Model)
	}
	if cfg.Model.Token != "env-token" {
		t.Fatalf("env token should win, got %q", cfg.Model.Token)
	}
	if cfg.Listen != "127.0.0.1:9000" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Fatalf("RequestTimeout() = %v", cfg.RequestTimeout())
	}
	if cfg.Handlers.MaxFetchBytes != 1024 {
		t.Fatalf("MaxFetchBytes = %d", cfg.Handlers.MaxFetchBytes)
	}
	// 未出现在文件中的键保留默认值。
	if cfg.Handlers.SimilarityParallelism != 8 {
		t.Fatalf("SimilarityParallelism = %d", cfg.Handlers.SimilarityParallelism)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("OPENAI_API_KEY")
	if err := os.WriteFile(".env", []byte("OPENAI_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("OPENAI_API_KEY") })

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.Token != "from-dotenv" {
		t.Fatalf("Token = %q, want from-dotenv", cfg.Model.Token)
	}
}

func TestApplyKVOverrides(t *testing.T) {
	cases := []struct {
		name    string
		in      []string
		check   func(Config) bool
		wantErr bool
	}{
		{name: "model", in: []string{"model=override-model"}, check: func(c Config) bool { return c.Model.Model == "override-model" }},
		{name: "dotted", in: []string{"model.provider=anthropic"}, check: func(c Config) bool { return c.Model.Provider == ProviderAnthropic }},
		{name: "int", in: []string{"handlers.fetch_timeout_seconds=7"}, check: func(c Config) bool { return c.FetchTimeout() == 7*time.Second }},
		{name: "list", in: []string{"cors_origins=a, b"}, check: func(c Config) bool { return len(c.CORSOrigins) == 2 && c.CORSOrigins[1] == "b" }},
		{name: "bad int", in: []string{"model.request_timeout_seconds=x"}, wantErr: true},
		{name: "unknown", in: []string{"nope=1"}, wantErr: true},
		{name: "malformed", in: []string{"novalue"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyKVOverrides(Default(), tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyKVOverrides: %v", err)
			}
			if !tc.check(got) {
				t.Fatalf("override not applied: %+v", got)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.DataRoot = "/tmp/sandbox"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("perm = %v", info.Mode().Perm())
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DataRoot != "/tmp/sandbox" {
		t.Fatalf("DataRoot = %q", loaded.DataRoot)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "# task-agent configuration.") {
		t.Fatalf("missing header:\n%s", data)
	}
}

func TestSave_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative data_root", func(c *Config) { c.DataRoot = "data" }},
		{"empty data_root", func(c *Config) { c.DataRoot = "" }},
		{"unknown provider", func(c *Config) { c.Model.Provider = "bogus" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			cfg := Default()
			tc.mutate(&cfg)
			if err := Save(path, cfg); err == nil || !strings.Contains(err.Error(), "refusing to save") {
				t.Fatalf("Save() err = %v", err)
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Fatalf("config written despite error: %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Model.Provider = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	cfg = Default()
	cfg.DataRoot = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty data_root")
	}
}
