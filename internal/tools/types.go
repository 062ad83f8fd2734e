package tools

// Status 表示一次操作的结果状态。
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result 是 handler 的返回值；Data 可选，会原样返回给调用方。
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success 构造成功结果。
func Success(message string, data any) Result {
	return Result{Status: StatusSuccess, Message: message, Data: data}
}

// Refusal 构造结构化的业务拒绝结果，用于 check_data_access 等只做判断的操作。
func Refusal(message string, data any) Result {
	return Result{Status: StatusError, Message: message, Data: data}
}

// DispatchResult 是一次指令分发的最终结果，只返回不存储。
type DispatchResult struct {
	Status    Status `json:"status"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message"`
	Kind      Kind   `json:"kind,omitempty"`
	Data      any    `json:"data,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	Err error `json:"-"`
}

// OK 表示分发流程完整执行（handler 自身可能返回结构化拒绝）。
func (r DispatchResult) OK() bool {
	return r.Err == nil
}

// FromResult 将 handler 结果原样包装。
func FromResult(operation, callID string, res Result) DispatchResult {
	status := res.Status
	if status == "" {
		status = StatusSuccess
	}
	return DispatchResult{
		Status:    status,
		Operation: operation,
		Message:   res.Message,
		Data:      res.Data,
		CallID:    callID,
	}
}

// FromError 将分发错误转换为结构化结果。
func FromError(err error) DispatchResult {
	res := DispatchResult{Status: StatusError, Message: err.Error(), Kind: KindOf(err), Err: err}
	if de, ok := AsDispatchError(err); ok {
		res.Operation = de.Operation
		res.Message = de.Message()
	}
	return res
}
