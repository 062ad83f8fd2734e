package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestPlainFormatter_OpPrefixAndFieldSkipping(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name    string
		data    logrus.Fields
		message string
		want    string
	}{
		{
			name: "with op",
			data: logrus.Fields{
				"component":  "tools",
				"op":         "count_weekdays",
				"caller":     "x.go:1",
				"kind":       "success",
				"request_id": "r1",
			},
			message: "dispatch_result",
			want:    "x.go:1 [2025-01-02T03:04:05Z] [INFO] [tools] [op=count_weekdays] dispatch_result kind=success request_id=r1\n",
		},
		{
			name: "without op",
			data: logrus.Fields{
				"component": "http",
				"caller":    "x.go:1",
				"foo":       "bar",
			},
			message: "hello",
			want:    "x.go:1 [2025-01-02T03:04:05Z] [INFO] [http] hello foo=bar\n",
		},
		{
			name:    "bare",
			data:    logrus.Fields{},
			message: "plain",
			want:    "[2025-01-02T03:04:05Z] [INFO] plain\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := &logrus.Entry{
				Logger:  logrus.New(),
				Time:    ts,
				Level:   logrus.InfoLevel,
				Message: tc.message,
				Data:    tc.data,
			}
			out, err := (PlainFormatter{}).Format(entry)
			if err != nil {
				t.Fatalf("Format() error: %v", err)
			}
			got := string(out)
			if got != tc.want {
				t.Fatalf("unexpected format:\nwant: %q\ngot:  %q", tc.want, got)
			}
			if _, ok := tc.data["op"]; ok {
				if strings.Count(got, "op=count_weekdays") != 1 {
					t.Fatalf("expected op to appear only once in output, got: %q", got)
				}
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("a\nb\r\nc"); got != `a\nb\r\nc` {
		t.Fatalf("Sanitize() = %q", got)
	}
}

func TestSetupComponentFile_WritesComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tools.log")
	entry, closer, resolved, err := SetupComponentFile("tools", path)
	if err != nil {
		t.Fatalf("SetupComponentFile: %v", err)
	}
	defer closer.Close()
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	entry.WithField("op", "fetch_url").Warn("blocked")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "[WARNING] [tools] [op=fetch_url] blocked") {
		t.Fatalf("unexpected log line: %q", line)
	}
}

func TestStdLLMLogger_WritesRequestAndError(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(PlainFormatter{})
	l.SetLevel(logrus.InfoLevel)

	llm := NewLLMLogger(l)
	llm.Request("classify", "gpt-4o-mini", []LLMMessage{{Role: "user", Content: "hi"}}, 21)
	llm.Error("classify", "gpt-4o-mini", errors.New("boom"), 15*time.Millisecond)

	out := buf.String()
	for _, want := range []string{
		"[llm] -> request purpose=classify model=gpt-4o-mini messages=1 tools=21",
		"[llm] !! error purpose=classify model=gpt-4o-mini duration_ms=15 err=boom",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "content=hi") {
		t.Fatalf("debug message leaked at info level: %q", out)
	}
}
