package agent

// ToolSpec 描述可供模型调用的工具定义，遵循 function 工具的通用 schema 约定。
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Prompt 代表一次模型调用的完整请求，包括模型、消息与工具配置。
type Prompt struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

// ClassifierSystemPrompt 分类请求使用的固定系统消息。
const ClassifierSystemPrompt = "You are a function classifier that extracts structured parameters from queries."

// NewClassificationPrompt 将指令与工具目录组装为一次分类请求。
func NewClassificationPrompt(model, instruction string, tools []ToolSpec) Prompt {
	return Prompt{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: ClassifierSystemPrompt},
			{Role: RoleUser, Content: instruction},
		},
		Tools: tools,
	}
}

// SystemAndConversation 拆分系统消息与对话消息。
func SystemAndConversation(messages []Message) ([]string, []Message) {
	var system []string
	convo := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		convo = append(convo, msg)
	}
	return system, convo
}
