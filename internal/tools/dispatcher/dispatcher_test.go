package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"task-agent/internal/classifier"
	"task-agent/internal/policy"
	"task-agent/internal/sandbox"
	"task-agent/internal/tools"
	"task-agent/internal/tools/handlers"
)

// stubClassifier 返回预设结果并记录调用次数。
type stubClassifier struct {
	mu    sync.Mutex
	calls int
	cls   classifier.Classification
	err   error
}

func (s *stubClassifier) Classify(_ context.Context, _ string) (classifier.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.cls, s.err
}

func (s *stubClassifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func classifyAs(op, args string) *stubClassifier {
	return &stubClassifier{cls: classifier.Classification{Operation: op, Arguments: json.RawMessage(args), CallID: "call_1"}}
}

// probeHandler 是可配置的测试操作。
type probeHandler struct {
	name   string
	params tools.Schema
	fn     func(tools.Invocation) (tools.Result, error)

	mu   sync.Mutex
	seen []tools.Args
}

func (p *probeHandler) Name() string        { return p.name }
func (p *probeHandler) Description() string { return "probe " + p.name }
func (p *probeHandler) Params() tools.Schema {
	return p.params
}

func (p *probeHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	p.mu.Lock()
	p.seen = append(p.seen, inv.Args.Clone())
	p.mu.Unlock()
	if p.fn != nil {
		return p.fn(inv)
	}
	return tools.Success("done", nil), nil
}

func (p *probeHandler) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func newProbe(name string, params ...tools.Param) *probeHandler {
	return &probeHandler{name: name, params: params}
}

// stubURLs 拒绝 blocked.test，并记录每次检查允许的协议。
type stubURLs struct {
	mu      sync.Mutex
	schemes [][]string
}

func (s *stubURLs) CheckURL(_ context.Context, raw string, schemes ...string) error {
	s.mu.Lock()
	s.schemes = append(s.schemes, schemes)
	s.mu.Unlock()
	if strings.Contains(raw, "blocked.test") {
		return fmt.Errorf("%w: blocked.test", policy.ErrBlockedTarget)
	}
	return nil
}

func newRoot(t *testing.T) sandbox.Root {
	t.Helper()
	root, err := sandbox.NewRoot(t.TempDir())
	if err != nil {
		t.Fatalf("NewRoot() error: %v", err)
	}
	return root
}

func newDispatcher(t *testing.T, cls Classifier, hs ...tools.Handler) (*Dispatcher, sandbox.Root) {
	t.Helper()
	root := newRoot(t)
	return New(cls, tools.NewRegistry(hs...), root, &stubURLs{}), root
}

func expectKind(t *testing.T, res tools.DispatchResult, want tools.Kind) {
	t.Helper()
	if res.OK() || res.Kind != want {
		t.Fatalf("result = %+v, want kind %s", res, want)
	}
	if !errors.Is(res.Err, want) {
		t.Fatalf("errors.Is(%v, %s) = false", res.Err, want)
	}
}

var pathParam = tools.Param{Name: "filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam}

func TestRun_KnownOperationInvokesHandlerOnce(t *testing.T) {
	probe := newProbe("summarize", pathParam)
	cls := classifyAs("summarize", `{"filename":"notes.txt"}`)
	d, _ := newDispatcher(t, cls, probe)

	res := d.Run(context.Background(), "Summarize notes.txt")

	if !res.OK() || res.Status != tools.StatusSuccess || res.Operation != "summarize" || res.CallID != "call_1" {
		t.Fatalf("result = %+v", res)
	}
	if probe.calls() != 1 || cls.count() != 1 {
		t.Fatalf("handler calls = %d classifier calls = %d, want 1 and 1", probe.calls(), cls.count())
	}
	if got := probe.seen[0].String("filename"); got != "notes.txt" {
		t.Fatalf("handler args filename = %q", got)
	}
}

func TestRun_PathTraversalNeverReachesHandler(t *testing.T) {
	cases := []string{"../secret.txt", "/etc/passwd", "a/../../x.txt"}
	for _, p := range cases {
		t.Run(p, func(t *testing.T) {
			probe := newProbe("summarize", pathParam)
			d, _ := newDispatcher(t, classifyAs("summarize", fmt.Sprintf(`{"filename":%q}`, p)), probe)

			res := d.Run(context.Background(), "Summarize the file")
			expectKind(t, res, tools.KindSandboxViolation)
			if probe.calls() != 0 {
				t.Fatalf("handler called %d times", probe.calls())
			}
		})
	}
}

func TestRun_DeletionRejectedBeforeClassifier(t *testing.T) {
	probe := newProbe("summarize", pathParam)
	cls := classifyAs("summarize", `{"filename":"notes.txt"}`)
	d, _ := newDispatcher(t, cls, probe)

	for _, instr := range []string{"Delete notes.txt", "please rm -rf the logs", "Remove old files"} {
		res := d.Run(context.Background(), instr)
		expectKind(t, res, tools.KindDeletionIntentRejected)
	}
	if cls.count() != 0 || probe.calls() != 0 {
		t.Fatalf("classifier calls = %d handler calls = %d, want 0", cls.count(), probe.calls())
	}
}

func TestRun_EmptyInstruction(t *testing.T) {
	cls := classifyAs("summarize", `{}`)
	d, _ := newDispatcher(t, cls, newProbe("summarize"))

	expectKind(t, d.Run(context.Background(), "   "), tools.KindArgumentValidation)
	if cls.count() != 0 {
		t.Fatalf("classifier called for empty instruction")
	}
}

func TestRun_UnknownOperationSuggestsClosest(t *testing.T) {
	probe := newProbe("count_weekdays")
	cls := &stubClassifier{
		cls: classifier.Classification{Operation: "count_wekdays", Arguments: json.RawMessage(`{}`)},
		err: classifier.ErrUnknownOperation,
	}
	d, _ := newDispatcher(t, cls, probe, newProbe("sort_contacts"))

	res := d.Run(context.Background(), "Count the Wednesdays")
	expectKind(t, res, tools.KindUnknownOperation)
	if !strings.Contains(res.Message, `did you mean "count_weekdays"`) {
		t.Fatalf("message = %q", res.Message)
	}
	if probe.calls() != 0 {
		t.Fatalf("handler called for unknown operation")
	}
}

func TestRun_ClassifierFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want tools.Kind
	}{
		{"ambiguous", classifier.ErrAmbiguous, tools.KindAmbiguousInstruction},
		{"unavailable", fmt.Errorf("%w: %w", classifier.ErrUnavailable, context.DeadlineExceeded), tools.KindClassifierUnavailable},
		{"other", errors.New("boom"), tools.KindClassifierUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			probe := newProbe("summarize")
			d, _ := newDispatcher(t, &stubClassifier{err: tc.err}, probe)
			expectKind(t, d.Run(context.Background(), "do the thing"), tc.want)
			if probe.calls() != 0 {
				t.Fatalf("handler called after classifier failure")
			}
		})
	}
}

func TestRun_ArgumentValidation(t *testing.T) {
	probe := newProbe("summarize", pathParam)
	cases := []string{`{}`, `{"filename":7}`, `{"filename":"a.txt","extra":"x"}`}
	for _, args := range cases {
		d, _ := newDispatcher(t, classifyAs("summarize", args), probe)
		res := d.Run(context.Background(), "Summarize something")
		expectKind(t, res, tools.KindArgumentValidation)
		if res.Operation != "summarize" {
			t.Fatalf("operation = %q", res.Operation)
		}
	}
	if probe.calls() != 0 {
		t.Fatalf("handler called with invalid arguments")
	}
}

func TestRun_HandlerErrors(t *testing.T) {
	cases := []struct {
		name string
		fn   func(tools.Invocation) (tools.Result, error)
		want tools.Kind
	}{
		{"error", func(tools.Invocation) (tools.Result, error) { return tools.Result{}, errors.New("disk full") }, tools.KindHandlerFailure},
		{"panic", func(tools.Invocation) (tools.Result, error) { panic("nil map") }, tools.KindHandlerFailure},
		{"classified", func(tools.Invocation) (tools.Result, error) {
			return tools.Result{}, tools.Errorf(tools.KindSandboxViolation, "", "symlink escapes root")
		}, tools.KindSandboxViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			probe := newProbe("summarize")
			probe.fn = tc.fn
			d, _ := newDispatcher(t, classifyAs("summarize", `{}`), probe)

			res := d.Run(context.Background(), "Summarize")
			expectKind(t, res, tc.want)
			if res.Operation != "summarize" {
				t.Fatalf("operation = %q", res.Operation)
			}
		})
	}
}

func TestRun_RefusalPassesThrough(t *testing.T) {
	d, _ := newDispatcher(t, classifyAs("check_data_access", `{"task_description":"read /etc/shadow"}`), handlers.DataAccessHandler{})

	res := d.Run(context.Background(), "Is it ok to read /etc/shadow?")
	if !res.OK() || res.Status != tools.StatusError || res.Kind != "" {
		t.Fatalf("result = %+v, want structured refusal", res)
	}
	if _, ok := res.Data.(map[string]string)["error"]; !ok {
		t.Fatalf("data = %#v", res.Data)
	}
}

func TestRun_CountWeekdays(t *testing.T) {
	cls := classifyAs("count_weekdays", `{"filename":"dates.txt","targetfile":"dates-wednesdays.txt","weekday":"wednesday"}`)
	d, root := newDispatcher(t, cls, handlers.CountWeekdaysHandler{})
	dates := "2024-01-03\n2024/01/10\nJan 11, 2024\n2024-01-17\n"
	if err := os.WriteFile(filepath.Join(root.Path(), "dates.txt"), []byte(dates), 0o644); err != nil {
		t.Fatal(err)
	}

	res := d.Run(context.Background(), "Count the number of Wednesdays in dates.txt")
	if !res.OK() || res.Status != tools.StatusSuccess {
		t.Fatalf("result = %+v", res)
	}
	got, err := os.ReadFile(filepath.Join(root.Path(), "dates-wednesdays.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "3" {
		t.Fatalf("count = %q, want 3", got)
	}
}

func TestRun_WritingOutsideRootIsRejected(t *testing.T) {
	cls := classifyAs("count_weekdays", `{"filename":"dates.txt","targetfile":"/etc/passwd.txt","weekday":"Monday"}`)
	d, _ := newDispatcher(t, cls, handlers.CountWeekdaysHandler{})

	expectKind(t, d.Run(context.Background(), "Count Mondays into /etc/passwd.txt"), tools.KindSandboxViolation)
}

// countingTransport 记录请求次数，用于确认请求从未发出。
type countingTransport struct {
	mu    sync.Mutex
	count int
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return nil, errors.New("unexpected request to " + r.URL.String())
}

func TestRun_FetchIntoSystemFileNeverReachesNetwork(t *testing.T) {
	cases := []struct {
		op   string
		args string
		h    func(*http.Client) tools.Handler
	}{
		{"fetch_url", `{"url":"https://example.com/api","output_filename":"/etc/passwd"}`,
			func(c *http.Client) tools.Handler { return handlers.FetchURLHandler{Client: c} }},
		{"fetch_api_data", `{"api_url":"https://example.com/api","output_filename":"/etc/passwd"}`,
			func(c *http.Client) tools.Handler { return handlers.FetchAPIHandler{Client: c} }},
	}
	for _, tc := range cases {
		t.Run(tc.op, func(t *testing.T) {
			transport := &countingTransport{}
			d, _ := newDispatcher(t, classifyAs(tc.op, tc.args), tc.h(&http.Client{Transport: transport}))

			res := d.Run(context.Background(), "Fetch https://example.com/api into /etc/passwd")
			expectKind(t, res, tools.KindSandboxViolation)
			if res.Operation != tc.op {
				t.Fatalf("operation = %q", res.Operation)
			}
			if transport.count != 0 {
				t.Fatalf("requests sent = %d, want 0", transport.count)
			}
		})
	}
}

func TestRun_MutatingQueryRejectedBeforeOpen(t *testing.T) {
	cls := classifyAs("run_sql_query", `{"db_filename":"shop.db","query":"DROP TABLE tickets","output_filename":"out.csv"}`)
	d, root := newDispatcher(t, cls, handlers.SQLQueryHandler{})

	expectKind(t, d.Run(context.Background(), "Run DROP TABLE tickets on shop.db"), tools.KindSandboxViolation)
	for _, name := range []string{"shop.db", "out.csv"} {
		if _, err := os.Stat(filepath.Join(root.Path(), name)); !os.IsNotExist(err) {
			t.Fatalf("%s exists after rejected query: %v", name, err)
		}
	}
}

func TestRun_URLChecks(t *testing.T) {
	urlParam := tools.Param{Name: "url", Type: tools.TypeString, Required: true, Kind: tools.URLParam}
	gitParam := tools.Param{Name: "repo_url", Type: tools.TypeString, Required: true, Kind: tools.URLParam,
		Schemes: []string{"https", "git"}}

	fetch := newProbe("fetch_url", urlParam)
	clone := newProbe("git_clone", gitParam)
	urls := &stubURLs{}
	reg := tools.NewRegistry(fetch, clone)

	blocked := New(classifyAs("fetch_url", `{"url":"http://blocked.test/"}`), reg, newRoot(t), urls)
	expectKind(t, blocked.Run(context.Background(), "Fetch http://blocked.test/"), tools.KindSandboxViolation)
	if fetch.calls() != 0 {
		t.Fatalf("handler called for blocked URL")
	}

	allowed := New(classifyAs("git_clone", `{"repo_url":"git://example.com/r.git"}`), reg, newRoot(t), urls)
	if res := allowed.Run(context.Background(), "Clone git://example.com/r.git"); !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	if clone.calls() != 1 {
		t.Fatalf("clone handler calls = %d", clone.calls())
	}
	if len(urls.schemes) != 2 || len(urls.schemes[0]) != 0 || strings.Join(urls.schemes[1], ",") != "https,git" {
		t.Fatalf("schemes = %v", urls.schemes)
	}
}

func TestRun_RepeatedInstructionDispatchesTwice(t *testing.T) {
	probe := newProbe("summarize")
	cls := classifyAs("summarize", `{}`)
	d, _ := newDispatcher(t, cls, probe)

	for i := 0; i < 2; i++ {
		if res := d.Run(context.Background(), "Summarize"); !res.OK() {
			t.Fatalf("run %d: %+v", i, res)
		}
	}
	if cls.count() != 2 || probe.calls() != 2 {
		t.Fatalf("classifier calls = %d handler calls = %d, want 2 and 2", cls.count(), probe.calls())
	}
}

func TestRun_ConcurrentDispatchesAreIndependent(t *testing.T) {
	probe := newProbe("summarize")
	d, _ := newDispatcher(t, classifyAs("summarize", `{}`), probe)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Run(context.Background(), "Summarize")
		}()
	}
	wg.Wait()
	if probe.calls() != 8 {
		t.Fatalf("handler calls = %d, want 8", probe.calls())
	}
}

func TestRun_SymlinkSwappedAfterCheckIsSandboxViolation(t *testing.T) {
	outside := t.TempDir()
	probe := newProbe("summarize", pathParam)
	probe.fn = func(inv tools.Invocation) (tools.Result, error) {
		if err := os.Symlink(outside, filepath.Join(inv.Root.Path(), "link")); err != nil {
			return tools.Result{}, err
		}
		if _, err := inv.Path("filename"); err != nil {
			return tools.Result{}, err
		}
		return tools.Success("escaped", nil), nil
	}
	d, _ := newDispatcher(t, classifyAs("summarize", `{"filename":"link/x.txt"}`), probe)

	res := d.Run(context.Background(), "Summarize link/x.txt")
	expectKind(t, res, tools.KindSandboxViolation)
	if probe.calls() != 1 {
		t.Fatalf("handler calls = %d, want 1", probe.calls())
	}
}
