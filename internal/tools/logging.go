package tools

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"task-agent/internal/logger"
)

// DefaultToolsLogPath 分发日志的默认路径。
const DefaultToolsLogPath = "logs/tools.log"

var (
	toolsLog           = logger.Named("tools")
	toolsLogConfigured bool
	toolsLogMu         sync.Mutex
	toolsLogCloser     io.Closer
	toolsLogPath       string
)

// SetupToolsLog 配置分发专用日志，返回文件 closer 及实际路径。
// 若 logPath 为空，则使用 DefaultToolsLogPath。
// 多次调用只会在首次生效。
func SetupToolsLog(logPath string) (io.Closer, string, error) {
	toolsLogMu.Lock()
	defer toolsLogMu.Unlock()

	if toolsLogConfigured {
		return toolsLogCloser, toolsLogPath, nil
	}
	if logPath == "" {
		logPath = DefaultToolsLogPath
	}

	entry, closer, resolved, err := logger.SetupComponentFile("tools", logPath)
	toolsLogConfigured = true
	toolsLogPath = resolved
	if err != nil {
		return nil, resolved, err
	}
	if entry != nil {
		toolsLog = entry
	}
	toolsLogCloser = closer
	return closer, resolved, nil
}

func currentToolsLog() *logger.LogEntry {
	toolsLogMu.Lock()
	defer toolsLogMu.Unlock()
	return toolsLog
}

// CloseToolsLog 关闭分发日志文件句柄（如已初始化）。
func CloseToolsLog() {
	toolsLogMu.Lock()
	defer toolsLogMu.Unlock()
	if toolsLogCloser != nil {
		_ = toolsLogCloser.Close()
		toolsLogCloser = nil
	}
}

// LogDispatchRequest 记录收到的指令。
func LogDispatchRequest(requestID, instruction string) {
	currentToolsLog().Infof("dispatch_request id=%s instruction=%s",
		requestID, sanitizeForLog([]byte(instruction)))
}

// LogDispatchResult 记录一次分发的最终结果，payload 为分类器给出的原始参数。
func LogDispatchResult(requestID string, call Call, res DispatchResult, elapsed time.Duration) {
	entry := currentToolsLog()
	if res.Operation != "" {
		entry = entry.WithField("op", res.Operation)
	}
	kind := string(res.Kind)
	if kind == "" {
		kind = "(none)"
	}
	payload := "(empty)"
	if len(call.Payload) > 0 {
		payload = sanitizeForLog(call.Payload)
	}
	msg := sanitizeForLog([]byte(res.Message))
	line := "dispatch_result id=%s call_id=%s status=%s kind=%s duration_ms=%d message=%s payload=%s"
	args := []any{requestID, orEmpty(call.ID), res.Status, kind, elapsed.Milliseconds(), msg, payload}
	if res.Err != nil {
		entry.Warnf(line, args...)
		return
	}
	entry.Infof(line, args...)
}

// LogHandlerPanic 记录 handler panic 的堆栈。
func LogHandlerPanic(operation string, recovered any, stack []byte) {
	currentToolsLog().WithField("op", operation).Errorf("handler panic: %v stack=%s", recovered, sanitizeForLog(stack))
}

func sanitizeForLog(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "(empty)"
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		text = compact.String()
	}
	return logger.Sanitize(text)
}

func orEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(empty)"
	}
	return s
}
