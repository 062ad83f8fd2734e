package logger

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLLMLogPath 模型调用日志的默认路径。
const DefaultLLMLogPath = "logs/llm.log"

// LLMMessage 表示一次请求中的对话消息。
type LLMMessage struct {
	Role    string
	Content string
}

// LLMLogger 负责输出与模型交互的请求、响应与错误信息。
// purpose 区分调用场景：classify、embed、vision、transcribe、ping。
type LLMLogger interface {
	Request(purpose, model string, messages []LLMMessage, tools int)
	Response(purpose, model string, content string, elapsed time.Duration)
	Error(purpose, model string, err error, elapsed time.Duration)
}

var (
	llmMu     sync.RWMutex
	llmLog    LLMLogger = NewLLMLogger(nil)
	llmCloser io.Closer
)

// GlobalLLMLogger 返回全局唯一的 LLM 日志实例。
func GlobalLLMLogger() LLMLogger {
	llmMu.RLock()
	defer llmMu.RUnlock()
	return llmLog
}

// SetGlobalLLMLogger 覆盖全局 LLM 日志实例，传入 nil 将重置为默认实现。
func SetGlobalLLMLogger(l LLMLogger) {
	if l == nil {
		l = NewLLMLogger(nil)
	}
	llmMu.Lock()
	llmLog = l
	llmMu.Unlock()
}

// SetupLLMLog 将 LLM 日志重定向到独立文件。
func SetupLLMLog(logPath string) (io.Closer, string, error) {
	if logPath == "" {
		logPath = DefaultLLMLogPath
	}
	entry, closer, resolved, err := SetupComponentFile("llm", logPath)
	if err != nil {
		return nil, resolved, err
	}
	llmMu.Lock()
	llmLog = &StdLLMLogger{logger: entry}
	llmCloser = closer
	llmMu.Unlock()
	return closer, resolved, nil
}

// StdLLMLogger 使用 logrus 输出日志。
type StdLLMLogger struct {
	logger *logrus.Entry
}

// NewLLMLogger 构造默认的 LLM 日志记录器。
func NewLLMLogger(l *Logger) *StdLLMLogger {
	if l == nil {
		l = root()
	}
	return &StdLLMLogger{logger: logrus.NewEntry(l).WithField("component", "llm")}
}

func (l *StdLLMLogger) Request(purpose, model string, messages []LLMMessage, tools int) {
	l.printf(logrus.InfoLevel, "-> request purpose=%s model=%s messages=%d tools=%d", purpose, model, len(messages), tools)
	for i, msg := range messages {
		l.printf(logrus.DebugLevel, "-> message[%d] role=%s content=%s", i, msg.Role, Sanitize(msg.Content))
	}
}

func (l *StdLLMLogger) Response(purpose, model string, content string, elapsed time.Duration) {
	l.printf(logrus.InfoLevel, "<- response purpose=%s model=%s duration_ms=%d text=%s", purpose, model, elapsed.Milliseconds(), Sanitize(content))
}

func (l *StdLLMLogger) Error(purpose, model string, err error, elapsed time.Duration) {
	l.printf(logrus.ErrorLevel, "!! error purpose=%s model=%s duration_ms=%d err=%v", purpose, model, elapsed.Milliseconds(), err)
}

// NoopLLMLogger 忽略所有日志输出。
type NoopLLMLogger struct{}

func (NoopLLMLogger) Request(string, string, []LLMMessage, int)      {}
func (NoopLLMLogger) Response(string, string, string, time.Duration) {}
func (NoopLLMLogger) Error(string, string, error, time.Duration)     {}

func (l *StdLLMLogger) printf(level logrus.Level, format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	if !l.logger.Logger.IsLevelEnabled(level) {
		return
	}
	entry := l.logger
	if caller := findCaller(); caller != "" {
		entry = entry.WithField("caller", caller)
	}
	entry.Log(level, fmt.Sprintf(format, args...))
}

func findCaller() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" && !strings.HasSuffix(frame.File, "logger/llm.go") {
			return fmt.Sprintf("%s:%d", shortenFilePath(frame.File), frame.Line)
		}
		if !more {
			break
		}
	}
	return ""
}

// CloseLLMLog 关闭 LLM 日志文件句柄（如已初始化）。
func CloseLLMLog() {
	llmMu.Lock()
	defer llmMu.Unlock()
	if llmCloser != nil {
		_ = llmCloser.Close()
		llmCloser = nil
	}
}
