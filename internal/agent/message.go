package agent

import "encoding/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role
	Content string
}

// ToolCall 是模型选中的一次函数调用，Arguments 为模型给出的原始 JSON。
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}
