// Package classifier 将自然语言指令映射为注册表中的一个操作及其 JSON 参数。
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"task-agent/internal/agent"
	"task-agent/internal/observability"
	"task-agent/internal/tools"
)

var (
	ErrUnavailable      = errors.New("classifier unavailable")
	ErrAmbiguous        = errors.New("ambiguous instruction")
	ErrUnknownOperation = errors.New("unknown operation")
)

// Classification 是分类器的一次输出，只在单次请求内使用。
type Classification struct {
	Operation string
	Arguments json.RawMessage
	CallID    string
}

type Options struct {
	Provider string
	Model    string
	Timeout  time.Duration
}

// Classifier 每次调用只请求模型一次，不重试。
type Classifier struct {
	selector agent.ToolSelector
	registry *tools.Registry
	catalog  []agent.ToolSpec
	provider string
	model    string
	timeout  time.Duration
}

func New(selector agent.ToolSelector, registry *tools.Registry, opts Options) *Classifier {
	if selector == nil {
		selector = agent.OfflineClient{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	provider := strings.TrimSpace(opts.Provider)
	if provider == "" {
		provider = "unknown"
	}
	return &Classifier{
		selector: selector,
		registry: registry,
		catalog:  ToolSpecs(registry),
		provider: provider,
		model:    opts.Model,
		timeout:  timeout,
	}
}

// ToolSpecs 按注册顺序把操作目录转换为工具定义。
func ToolSpecs(registry *tools.Registry) []agent.ToolSpec {
	if registry == nil {
		return nil
	}
	specs := registry.Describe()
	out := make([]agent.ToolSpec, 0, len(specs))
	for _, spec := range specs {
		out = append(out, agent.ToolSpec{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Schema.JSONSchema(),
		})
	}
	return out
}

// Select 返回模型的原始选择，不做注册表校验，供 /ask 诊断使用。
func (c *Classifier) Select(ctx context.Context, instruction string) (agent.ToolCall, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call, err := c.selector.SelectTool(ctx, agent.NewClassificationPrompt(c.model, instruction, c.catalog))
	switch {
	case err == nil:
		observability.RecordClassifier(c.provider, "ok")
		return call, nil
	case errors.Is(err, agent.ErrNoToolCall):
		observability.RecordClassifier(c.provider, "no_tool_call")
		return call, fmt.Errorf("%w: %v", ErrAmbiguous, err)
	case errors.Is(err, agent.ErrMalformedResponse):
		observability.RecordClassifier(c.provider, "malformed")
		return call, fmt.Errorf("%w: %v", ErrAmbiguous, err)
	default:
		observability.RecordClassifier(c.provider, "error")
		return call, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// Classify 选择操作并检查其形状：名称非空、参数为 JSON 对象、名称已注册。
// 名称未注册时同时返回分类结果，便于调用方给出提示。
func (c *Classifier) Classify(ctx context.Context, instruction string) (Classification, error) {
	call, err := c.Select(ctx, instruction)
	if err != nil {
		return Classification{}, err
	}

	cls := Classification{
		Operation: strings.TrimSpace(call.Name),
		CallID:    call.ID,
		Arguments: bytes.TrimSpace(call.Arguments),
	}
	if cls.Operation == "" {
		return cls, fmt.Errorf("%w: model returned an empty operation name", ErrAmbiguous)
	}
	if len(cls.Arguments) == 0 {
		cls.Arguments = json.RawMessage("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(cls.Arguments, &obj); err != nil || obj == nil {
		return cls, fmt.Errorf("%w: arguments are not a JSON object", ErrAmbiguous)
	}
	if c.registry != nil {
		if _, ok := c.registry.Lookup(cls.Operation); !ok {
			return cls, fmt.Errorf("%w: %q", ErrUnknownOperation, cls.Operation)
		}
	}
	return cls, nil
}
