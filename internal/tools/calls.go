package tools

import (
	"encoding/json"
)

// Call 是分类器选出的一次操作调用。
type Call struct {
	ID      string
	Name    string
	Payload json.RawMessage
}
