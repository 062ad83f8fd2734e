package classifier

import (
	"fmt"
	"strings"

	"task-agent/internal/agent"
	anthropicclient "task-agent/internal/agent/anthropic"
	openaiclient "task-agent/internal/agent/openai"
	"task-agent/internal/config"
	"task-agent/internal/logger"
)

// Models 汇总分类器与模型类操作使用的客户端。
type Models struct {
	Provider    string
	Selector    agent.ToolSelector
	Completer   agent.Completer
	Embedder    agent.Embedder
	Vision      agent.Vision
	Transcriber agent.Transcriber
}

// Offline 返回全部调用都失败的客户端组合。
func Offline(provider string) Models {
	off := agent.OfflineClient{}
	return Models{
		Provider:    provider,
		Selector:    off,
		Completer:   off,
		Embedder:    off,
		Vision:      off,
		Transcriber: off,
	}
}

// NewModels 按 model.provider 构造客户端；未配置 token 时退化为 Offline。
// anthropic 只提供分类与补全，embedding、vision、转写保持离线。
func NewModels(cfg config.ModelConfig) (Models, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = config.ProviderOpenAI
	}
	if strings.TrimSpace(cfg.Token) == "" {
		logger.Warnf("model token not configured; classifier runs offline")
		return Offline(provider), nil
	}

	switch provider {
	case config.ProviderOpenAI:
		client, err := openaiclient.New(openaiclient.Options{
			APIKey:             cfg.Token,
			BaseURL:            cfg.URL,
			Model:              cfg.Model,
			EmbeddingModel:     cfg.EmbeddingModel,
			TranscriptionModel: cfg.TranscriptionModel,
			VisionModel:        cfg.VisionModel,
		})
		if err != nil {
			return Models{}, fmt.Errorf("openai client: %w", err)
		}
		return Models{
			Provider:    provider,
			Selector:    client,
			Completer:   client,
			Embedder:    client,
			Vision:      client,
			Transcriber: client,
		}, nil
	case config.ProviderAnthropic:
		client, err := anthropicclient.New(anthropicclient.Options{
			Token:   cfg.Token,
			BaseURL: cfg.URL,
			Model:   cfg.Model,
		})
		if err != nil {
			return Models{}, fmt.Errorf("anthropic client: %w", err)
		}
		m := Offline(provider)
		m.Selector = client
		m.Completer = client
		return m, nil
	default:
		return Models{}, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
