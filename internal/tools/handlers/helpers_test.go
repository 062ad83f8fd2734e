package handlers

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"task-agent/internal/sandbox"
	"task-agent/internal/tools"
)

func newRoot(t *testing.T) sandbox.Root {
	t.Helper()
	root, err := sandbox.NewRoot(t.TempDir())
	if err != nil {
		t.Fatalf("NewRoot() error: %v", err)
	}
	return root
}

// run 按 schema 解码参数后调用 handler，与 dispatcher 的调用方式一致。
func run(t *testing.T, h tools.Handler, root sandbox.Root, args string) (tools.Result, error) {
	t.Helper()
	decoded, err := h.Params().Decode(json.RawMessage(args))
	if err != nil {
		t.Fatalf("Decode(%s) error: %v", args, err)
	}
	return h.Handle(context.Background(), tools.Invocation{
		Call: tools.Call{ID: "call_test", Name: h.Name(), Payload: json.RawMessage(args)},
		Args: decoded,
		Root: root,
	})
}

func mustRun(t *testing.T, h tools.Handler, root sandbox.Root, args string) tools.Result {
	t.Helper()
	res, err := run(t, h, root, args)
	if err != nil {
		t.Fatalf("%s Handle() error: %v", h.Name(), err)
	}
	if res.Status != tools.StatusSuccess {
		t.Fatalf("%s status = %s (%s)", h.Name(), res.Status, res.Message)
	}
	return res
}

func writeTestFile(t *testing.T, root sandbox.Root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root.Path(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

func readTestFile(t *testing.T, root sandbox.Root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root.Path(), filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

type runnerCall struct {
	Workdir string
	Name    string
	Args    []string
}

// recordingRunner 记录命令而不真正执行。
type recordingRunner struct {
	mu     sync.Mutex
	calls  []runnerCall
	output string
	err    error
	onRun  func(runnerCall)
}

func (r *recordingRunner) Run(_ context.Context, workdir, name string, args ...string) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := runnerCall{Workdir: workdir, Name: name, Args: append([]string(nil), args...)}
	r.calls = append(r.calls, call)
	if r.onRun != nil {
		r.onRun(call)
	}
	if r.err != nil {
		return r.output, 1, r.err
	}
	return r.output, 0, nil
}

func (r *recordingRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, strings.Join(append([]string{c.Name}, c.Args...), " "))
	}
	return out
}

type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors[text], nil
}

type stubVision struct {
	reply    string
	mimeType string
}

func (s *stubVision) DescribeImage(_ context.Context, _ string, mimeType string, _ []byte) (string, error) {
	s.mimeType = mimeType
	return s.reply, nil
}

type stubTranscriber struct {
	text     string
	filename string
	body     string
}

func (s *stubTranscriber) Transcribe(_ context.Context, filename string, audio io.Reader) (string, error) {
	data, _ := io.ReadAll(audio)
	s.filename = filename
	s.body = string(data)
	return s.text, nil
}
