package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"task-agent/internal/agent"
	"task-agent/internal/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

type Options struct {
	APIKey             string
	BaseURL            string
	Model              string
	EmbeddingModel     string
	TranscriptionModel string
	VisionModel        string
	HTTPClient         *http.Client
}

// Client 封装 OpenAI 兼容接口：函数调用、向量、视觉与语音转写。
// SDK 自带的重试被关闭，每次调用最多发出一个请求。
type Client struct {
	api                *openai.Client
	model              string
	embeddingModel     string
	transcriptionModel string
	visionModel        string
}

var (
	_ agent.ToolSelector = (*Client)(nil)
	_ agent.Completer    = (*Client)(nil)
	_ agent.Embedder     = (*Client)(nil)
	_ agent.Vision       = (*Client)(nil)
	_ agent.Transcriber  = (*Client)(nil)
)

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	cfg := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg = append(cfg, option.WithBaseURL(strings.TrimRight(normalizeBaseURL(base), "/")))
	}
	if opts.HTTPClient != nil {
		cfg = append(cfg, option.WithHTTPClient(opts.HTTPClient))
	}
	client := openai.NewClient(cfg...)

	c := &Client{
		api:                &client,
		model:              strings.TrimSpace(opts.Model),
		embeddingModel:     strings.TrimSpace(opts.EmbeddingModel),
		transcriptionModel: strings.TrimSpace(opts.TranscriptionModel),
		visionModel:        strings.TrimSpace(opts.VisionModel),
	}
	if c.model == "" {
		c.model = "gpt-4o-mini"
	}
	if c.embeddingModel == "" {
		c.embeddingModel = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if c.transcriptionModel == "" {
		c.transcriptionModel = string(openai.AudioModelWhisper1)
	}
	if c.visionModel == "" {
		c.visionModel = c.model
	}
	return c, nil
}

func (c *Client) resolveModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

// SelectTool 发送一次带工具目录的 chat completion，返回第一个函数调用。
func (c *Client) SelectTool(ctx context.Context, prompt agent.Prompt) (agent.ToolCall, error) {
	model := c.resolveModel(prompt.Model)
	llm := logger.GlobalLLMLogger()
	llm.Request("classify", model, agent.ToLLMMessages(prompt.Messages), len(prompt.Tools))
	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toChatMessages(prompt.Messages),
	}
	if len(prompt.Tools) > 0 {
		params.Tools = toChatTools(prompt.Tools)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		err = wrapHTTPError(err)
		llm.Error("classify", model, err, time.Since(start))
		return agent.ToolCall{}, err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no completion choices returned", agent.ErrMalformedResponse)
		llm.Error("classify", model, err, time.Since(start))
		return agent.ToolCall{}, err
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		llm.Response("classify", model, "(no tool call) "+msg.Content, time.Since(start))
		return agent.ToolCall{}, agent.ErrNoToolCall
	}
	call := msg.ToolCalls[0]
	llm.Response("classify", model, call.Function.Name+" "+call.Function.Arguments, time.Since(start))
	return agent.ToolCall{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: []byte(call.Function.Arguments),
	}, nil
}

func (c *Client) Complete(ctx context.Context, prompt agent.Prompt) (string, error) {
	model := c.resolveModel(prompt.Model)
	llm := logger.GlobalLLMLogger()
	llm.Request("complete", model, agent.ToLLMMessages(prompt.Messages), 0)
	start := time.Now()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toChatMessages(prompt.Messages),
	})
	if err != nil {
		err = wrapHTTPError(err)
		llm.Error("complete", model, err, time.Since(start))
		return "", err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no completion choices returned", agent.ErrMalformedResponse)
		llm.Error("complete", model, err, time.Since(start))
		return "", err
	}
	text := resp.Choices[0].Message.Content
	llm.Response("complete", model, text, time.Since(start))
	return text, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	llm := logger.GlobalLLMLogger()
	llm.Request("embed", c.embeddingModel, []logger.LLMMessage{{Role: "input", Content: text}}, 0)
	start := time.Now()

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		err = wrapHTTPError(err)
		llm.Error("embed", c.embeddingModel, err, time.Since(start))
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		err := errors.New("embeddings api returned no vectors")
		llm.Error("embed", c.embeddingModel, err, time.Since(start))
		return nil, err
	}
	vec := resp.Data[0].Embedding
	llm.Response("embed", c.embeddingModel, fmt.Sprintf("dims=%d", len(vec)), time.Since(start))
	return vec, nil
}

// DescribeImage 以 data URL 形式内联图片。
func (c *Client) DescribeImage(ctx context.Context, instruction string, mimeType string, image []byte) (string, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	llm := logger.GlobalLLMLogger()
	llm.Request("vision", c.visionModel, []logger.LLMMessage{{Role: "user", Content: instruction}}, 0)
	start := time.Now()

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.visionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(instruction),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		err = wrapHTTPError(err)
		llm.Error("vision", c.visionModel, err, time.Since(start))
		return "", err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no completion choices returned", agent.ErrMalformedResponse)
		llm.Error("vision", c.visionModel, err, time.Since(start))
		return "", err
	}
	text := resp.Choices[0].Message.Content
	llm.Response("vision", c.visionModel, text, time.Since(start))
	return text, nil
}

func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	llm := logger.GlobalLLMLogger()
	llm.Request("transcribe", c.transcriptionModel, []logger.LLMMessage{{Role: "file", Content: filename}}, 0)
	start := time.Now()

	resp, err := c.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, "audio/mpeg"),
		Model: openai.AudioModel(c.transcriptionModel),
	})
	if err != nil {
		err = wrapHTTPError(err)
		llm.Error("transcribe", c.transcriptionModel, err, time.Since(start))
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	llm.Response("transcribe", c.transcriptionModel, text, time.Since(start))
	return text, nil
}

func toChatMessages(msgs []agent.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case agent.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// toChatTools 不开启 strict：strict 模式要求所有参数 required，与可选参数和默认值冲突。
func toChatTools(specs []agent.ToolSpec) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{
			Name:       name,
			Parameters: spec.Parameters,
			Strict:     openai.Bool(false),
		}
		if desc := strings.TrimSpace(spec.Description); desc != "" {
			fn.Description = openai.String(desc)
		}
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: fn,
			},
		})
	}
	return tools
}

// wrapHTTPError 给状态码错误加上 http_<code> 标记。
// 非状态码、非网络、非 context 的错误来自响应解码，标记为 ErrMalformedResponse。
func wrapHTTPError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		raw := strings.TrimSpace(apiErr.RawJSON())
		if raw != "" {
			return fmt.Errorf("http_%d: %s: %w", apiErr.StatusCode, raw, err)
		}
		return fmt.Errorf("http_%d: %w", apiErr.StatusCode, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", agent.ErrMalformedResponse, err)
}
