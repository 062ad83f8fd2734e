package agent

import (
	"context"
	"errors"
	"io"

	"task-agent/internal/logger"
)

var (
	// ErrNotConfigured 未配置 token 时所有模型调用返回该错误。
	ErrNotConfigured = errors.New("model provider not configured: set AIPROXY_TOKEN or OPENAI_API_KEY")
	// ErrNoToolCall 模型以文本回复而没有选择任何工具。
	ErrNoToolCall = errors.New("model returned no tool call")
	// ErrMalformedResponse 服务端返回成功状态，但响应体无法解析或缺少 choices。
	ErrMalformedResponse = errors.New("malformed model response")
)

// ToolSelector 让模型从工具目录中选择一个函数调用。
type ToolSelector interface {
	SelectTool(ctx context.Context, prompt Prompt) (ToolCall, error)
}

// Completer 返回纯文本补全，用于 ping 等诊断。
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Embedder 为一段文本生成向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Vision 针对一张图片回答提示词。
type Vision interface {
	DescribeImage(ctx context.Context, instruction string, mimeType string, image []byte) (string, error)
}

// Transcriber 将音频转写为文本。
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// OfflineClient 在未配置 token 时使用，所有调用都失败。
type OfflineClient struct{}

var (
	_ ToolSelector = OfflineClient{}
	_ Completer    = OfflineClient{}
	_ Embedder     = OfflineClient{}
	_ Vision       = OfflineClient{}
	_ Transcriber  = OfflineClient{}
)

func (OfflineClient) SelectTool(context.Context, Prompt) (ToolCall, error) {
	return ToolCall{}, ErrNotConfigured
}

func (OfflineClient) Complete(context.Context, Prompt) (string, error) {
	return "", ErrNotConfigured
}

func (OfflineClient) Embed(context.Context, string) ([]float64, error) {
	return nil, ErrNotConfigured
}

func (OfflineClient) DescribeImage(context.Context, string, string, []byte) (string, error) {
	return "", ErrNotConfigured
}

func (OfflineClient) Transcribe(context.Context, string, io.Reader) (string, error) {
	return "", ErrNotConfigured
}

// ToLLMMessages 将内部消息转换为日志友好的结构。
func ToLLMMessages(msgs []Message) []logger.LLMMessage {
	out := make([]logger.LLMMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, logger.LLMMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}
