package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"task-agent/internal/agent"
	openaiclient "task-agent/internal/agent/openai"
	"task-agent/internal/config"
	"task-agent/internal/logger"
	"task-agent/internal/tools"
)

type stubHandler struct{ name string }

func (h stubHandler) Name() string        { return h.name }
func (h stubHandler) Description() string { return "stub " + h.name }
func (h stubHandler) Params() tools.Schema {
	return tools.Schema{{Name: "weekday", Type: tools.TypeString, Required: true}}
}
func (h stubHandler) Handle(context.Context, tools.Invocation) (tools.Result, error) {
	return tools.Success("ok", nil), nil
}

type stubSelector struct {
	call   agent.ToolCall
	err    error
	calls  atomic.Int64
	prompt agent.Prompt
	block  bool
}

func (s *stubSelector) SelectTool(ctx context.Context, prompt agent.Prompt) (agent.ToolCall, error) {
	s.calls.Add(1)
	s.prompt = prompt
	if s.block {
		<-ctx.Done()
		return agent.ToolCall{}, ctx.Err()
	}
	return s.call, s.err
}

func testRegistry() *tools.Registry {
	return tools.NewRegistry(stubHandler{name: "count_weekdays"}, stubHandler{name: "sort_contacts"})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		call    agent.ToolCall
		err     error
		wantErr error
		wantOp  string
		args    string
	}{
		{
			name:   "known operation",
			call:   agent.ToolCall{ID: "call_1", Name: "count_weekdays", Arguments: json.RawMessage(`{"weekday":"Wednesday"}`)},
			wantOp: "count_weekdays",
			args:   `{"weekday":"Wednesday"}`,
		},
		{
			name:   "empty arguments become object",
			call:   agent.ToolCall{Name: "sort_contacts"},
			wantOp: "sort_contacts",
			args:   `{}`,
		},
		{name: "no tool call", err: agent.ErrNoToolCall, wantErr: ErrAmbiguous},
		{name: "malformed response", err: fmt.Errorf("%w: no completion choices returned", agent.ErrMalformedResponse), wantErr: ErrAmbiguous},
		{name: "empty name", call: agent.ToolCall{Name: "  ", Arguments: json.RawMessage(`{}`)}, wantErr: ErrAmbiguous},
		{name: "array arguments", call: agent.ToolCall{Name: "count_weekdays", Arguments: json.RawMessage(`[1]`)}, wantErr: ErrAmbiguous},
		{name: "null arguments", call: agent.ToolCall{Name: "count_weekdays", Arguments: json.RawMessage(`null`)}, wantErr: ErrAmbiguous},
		{name: "broken json", call: agent.ToolCall{Name: "count_weekdays", Arguments: json.RawMessage(`{"weekday":`)}, wantErr: ErrAmbiguous},
		{name: "unknown name", call: agent.ToolCall{Name: "format_disk", Arguments: json.RawMessage(`{}`)}, wantErr: ErrUnknownOperation, wantOp: "format_disk"},
		{name: "transport failure", err: errors.New("http_502: bad gateway"), wantErr: ErrUnavailable},
		{name: "offline", err: agent.ErrNotConfigured, wantErr: ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel := &stubSelector{call: tc.call, err: tc.err}
			c := New(sel, testRegistry(), Options{Provider: "test", Model: "m"})

			got, err := c.Classify(context.Background(), "Count Wednesdays")
			if sel.calls.Load() != 1 {
				t.Fatalf("selector calls = %d, want 1", sel.calls.Load())
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Classify() err = %v, want %v", err, tc.wantErr)
				}
				if tc.wantOp != "" && got.Operation != tc.wantOp {
					t.Fatalf("Operation = %q, want %q", got.Operation, tc.wantOp)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() error: %v", err)
			}
			if got.Operation != tc.wantOp || string(got.Arguments) != tc.args {
				t.Fatalf("Classify() = %+v", got)
			}
		})
	}
}

func TestClassify_PromptCarriesCatalogInOrder(t *testing.T) {
	sel := &stubSelector{call: agent.ToolCall{Name: "count_weekdays", Arguments: json.RawMessage(`{}`)}}
	c := New(sel, testRegistry(), Options{Model: "gpt-test"})
	if _, err := c.Classify(context.Background(), "Count Wednesdays"); err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	p := sel.prompt
	if p.Model != "gpt-test" {
		t.Fatalf("model = %q", p.Model)
	}
	if len(p.Messages) != 2 || p.Messages[0].Content != agent.ClassifierSystemPrompt || p.Messages[1].Content != "Count Wednesdays" {
		t.Fatalf("messages = %+v", p.Messages)
	}
	if len(p.Tools) != 2 || p.Tools[0].Name != "count_weekdays" || p.Tools[1].Name != "sort_contacts" {
		t.Fatalf("tools = %+v", p.Tools)
	}
	if p.Tools[0].Parameters["additionalProperties"] != false {
		t.Fatalf("tool schema should forbid additional properties: %+v", p.Tools[0].Parameters)
	}
}

func TestClassify_TimeoutIsUnavailable(t *testing.T) {
	sel := &stubSelector{block: true}
	c := New(sel, testRegistry(), Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := c.Classify(context.Background(), "Count Wednesdays")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Classify() err = %v, want unavailable deadline", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestNewModels(t *testing.T) {
	m, err := NewModels(config.ModelConfig{Provider: "openai"})
	if err != nil {
		t.Fatalf("NewModels() error: %v", err)
	}
	if _, ok := m.Selector.(agent.OfflineClient); !ok {
		t.Fatalf("missing token should be offline, got %T", m.Selector)
	}

	m, err = NewModels(config.ModelConfig{Provider: "anthropic", Token: "k"})
	if err != nil {
		t.Fatalf("NewModels(anthropic) error: %v", err)
	}
	if _, ok := m.Embedder.(agent.OfflineClient); !ok {
		t.Fatalf("anthropic embedder should be offline, got %T", m.Embedder)
	}

	if _, err := NewModels(config.ModelConfig{Provider: "bogus", Token: "k"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestClassify_MalformedServerResponseIsAmbiguous(t *testing.T) {
	logger.SetGlobalLLMLogger(logger.NoopLLMLogger{})
	t.Cleanup(func() { logger.SetGlobalLLMLogger(nil) })

	cases := []struct {
		name      string
		mediaType string
		body      string
	}{
		{"empty choices", "application/json", `{"id":"c","object":"chat.completion","created":0,"model":"m","choices":[]}`},
		{"html page", "text/html", `<html><body>502 from proxy</body></html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.mediaType)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			client, err := openaiclient.New(openaiclient.Options{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"})
			if err != nil {
				t.Fatalf("openai.New() error: %v", err)
			}
			c := New(client, testRegistry(), Options{Provider: "openai", Timeout: 2 * time.Second})

			_, err = c.Classify(context.Background(), "Count Wednesdays")
			if !errors.Is(err, ErrAmbiguous) || errors.Is(err, ErrUnavailable) {
				t.Fatalf("Classify() err = %v, want ambiguous", err)
			}
		})
	}
}
