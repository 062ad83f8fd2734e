package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"task-agent/internal/agent"
	"task-agent/internal/logger"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Options struct {
	Token      string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client 通过 Anthropic messages 接口完成工具选择。
type Client struct {
	api   *anthropic.Client
	model string
}

var (
	_ agent.ToolSelector = (*Client)(nil)
	_ agent.Completer    = (*Client)(nil)
)

func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("missing token")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(token),
		option.WithMaxRetries(0),
	}
	if base := normalizeBaseURL(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client := anthropic.NewClient(reqOpts...)
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5)
	}
	return &Client{
		api:   &client,
		model: model,
	}, nil
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1/messages") {
		base = strings.TrimSuffix(base, "/messages")
	}
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimSuffix(base, "/v1")
		base = strings.TrimRight(base, "/")
	}
	return base
}

func (c *Client) resolveModel(m string) anthropic.Model {
	if strings.TrimSpace(m) != "" {
		return anthropic.Model(strings.TrimSpace(m))
	}
	return anthropic.Model(c.model)
}

// SelectTool 返回响应中第一个 tool_use 块。
func (c *Client) SelectTool(ctx context.Context, prompt agent.Prompt) (agent.ToolCall, error) {
	model := c.resolveModel(prompt.Model)
	llm := logger.GlobalLLMLogger()
	llm.Request("classify", string(model), agent.ToLLMMessages(prompt.Messages), len(prompt.Tools))
	start := time.Now()

	msg, err := c.api.Messages.New(ctx, buildMessageParams(prompt, model))
	if err != nil {
		err = wrapAPIError(err)
		llm.Error("classify", string(model), err, time.Since(start))
		return agent.ToolCall{}, err
	}
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			args := strings.TrimSpace(string(v.Input))
			if args == "" {
				args = "{}"
			}
			llm.Response("classify", string(model), v.Name+" "+args, time.Since(start))
			return agent.ToolCall{ID: v.ID, Name: v.Name, Arguments: []byte(args)}, nil
		}
	}
	llm.Response("classify", string(model), "(no tool call) "+extractText(msg.Content), time.Since(start))
	return agent.ToolCall{}, agent.ErrNoToolCall
}

func (c *Client) Complete(ctx context.Context, prompt agent.Prompt) (string, error) {
	model := c.resolveModel(prompt.Model)
	llm := logger.GlobalLLMLogger()
	llm.Request("complete", string(model), agent.ToLLMMessages(prompt.Messages), 0)
	start := time.Now()

	msg, err := c.api.Messages.New(ctx, buildMessageParams(prompt, model))
	if err != nil {
		err = wrapAPIError(err)
		llm.Error("complete", string(model), err, time.Since(start))
		return "", err
	}
	text := strings.TrimSpace(extractText(msg.Content))
	llm.Response("complete", string(model), text, time.Since(start))
	return text, nil
}

// wrapAPIError 与 openai 客户端一致：状态码错误带 http_<code>，解码失败归为 ErrMalformedResponse。
func wrapAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return fmt.Errorf("http_%d: %w", apiErr.StatusCode, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", agent.ErrMalformedResponse, err)
}

func buildMessageParams(prompt agent.Prompt, model anthropic.Model) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam

	sysTexts, convo := agent.SystemAndConversation(prompt.Messages)
	for _, text := range sysTexts {
		if text = strings.TrimSpace(text); text != "" {
			system = append(system, anthropic.TextBlockParam{Text: text})
		}
	}
	for _, msg := range convo {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		switch msg.Role {
		case agent.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: 1024,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(prompt.Tools) > 0 {
		params.Tools = toTools(prompt.Tools)
	}
	return params
}

func toTools(specs []agent.ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		schema := anthropic.ToolInputSchemaParam{Properties: spec.Parameters["properties"]}
		if req, ok := spec.Parameters["required"].([]string); ok {
			schema.Required = req
		}
		tool := anthropic.ToolParam{
			Name:        name,
			InputSchema: schema,
		}
		if desc := strings.TrimSpace(spec.Description); desc != "" {
			tool.Description = anthropic.String(desc)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}

func extractText(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		}
	}
	return sb.String()
}
