package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides.
// Unknown keys and malformed values are reported rather than silently dropped.
func ApplyKVOverrides(cfg Config, overrides []string) (Config, error) {
	if len(overrides) == 0 {
		return cfg, nil
	}
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return cfg, fmt.Errorf("invalid override %q: want key=value", raw)
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if err := applyKV(&cfg, key, val); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func applyKV(cfg *Config, key, val string) error {
	switch key {
	case "data_root":
		cfg.DataRoot = val
	case "listen":
		cfg.Listen = val
	case "cors_origins":
		cfg.CORSOrigins = splitList(val)
	case "trusted_proxies":
		cfg.TrustedProxies = splitList(val)
	case "model.provider":
		cfg.Model.Provider = val
	case "model.url", "url":
		cfg.Model.URL = val
	case "model.token", "token":
		cfg.Model.Token = val
	case "model.model", "model":
		cfg.Model.Model = val
	case "model.embedding_model":
		cfg.Model.EmbeddingModel = val
	case "model.transcription_model":
		cfg.Model.TranscriptionModel = val
	case "model.vision_model":
		cfg.Model.VisionModel = val
	case "model.request_timeout_seconds":
		return setInt(&cfg.Model.RequestTimeoutSeconds, key, val)
	case "handlers.fetch_timeout_seconds":
		return setInt(&cfg.Handlers.FetchTimeoutSeconds, key, val)
	case "handlers.command_timeout_seconds":
		return setInt(&cfg.Handlers.CommandTimeoutSeconds, key, val)
	case "handlers.similarity_parallelism":
		return setInt(&cfg.Handlers.SimilarityParallelism, key, val)
	case "handlers.max_fetch_bytes":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("override %s: %w", key, err)
		}
		cfg.Handlers.MaxFetchBytes = n
	case "handlers.user_email":
		cfg.Handlers.UserEmail = val
	case "log.path":
		cfg.Log.Path = val
	case "log.tools_path":
		cfg.Log.ToolsPath = val
	case "log.llm_path":
		cfg.Log.LLMPath = val
	case "log.level":
		cfg.Log.Level = val
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func setInt(dst *int, key, val string) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("override %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
