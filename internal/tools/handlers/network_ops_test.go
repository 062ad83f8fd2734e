package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFetchAPIData_AppendsArrays(t *testing.T) {
	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Token"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":2}]`)
	}))
	t.Cleanup(srv.Close)

	root := newRoot(t)
	writeTestFile(t, root, "api-output.json", `[{"id":1}]`)
	h := FetchAPIHandler{Client: srv.Client(), MaxBytes: 1 << 20}

	res := mustRun(t, h, root, fmt.Sprintf(`{"api_url":%q,"headers":{"X-Token":"abc"}}`, srv.URL+"/items"))

	if gotHeader.Load() != "abc" {
		t.Fatalf("header not forwarded: %v", gotHeader.Load())
	}
	want := "[\n    {\n        \"id\": 1\n    },\n    {\n        \"id\": 2\n    }\n]"
	if got := readTestFile(t, root, "api-output.json"); got != want {
		t.Fatalf("output = %s", got)
	}
	if res.Data.(map[string]any)["appended"] != true {
		t.Fatalf("data = %v", res.Data)
	}
}

func TestFetchAPIData_ReplacesObjectsAndRejectsInvalid(t *testing.T) {
	body := `{"ok":true}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	root := newRoot(t)
	writeTestFile(t, root, "api-output.json", `[1,2]`)
	h := FetchAPIHandler{Client: srv.Client(), MaxBytes: 1 << 20}
	args := fmt.Sprintf(`{"api_url":%q}`, srv.URL)

	mustRun(t, h, root, args)
	if got := readTestFile(t, root, "api-output.json"); got != "{\n    \"ok\": true\n}" {
		t.Fatalf("output = %s", got)
	}

	body = `not json`
	if _, err := run(t, h, root, args); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestFetchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big":
			fmt.Fprint(w, strings.Repeat("x", 64))
		case "/missing":
			http.NotFound(w, r)
		default:
			fmt.Fprint(w, "<html><body>hi</body></html>")
		}
	}))
	t.Cleanup(srv.Close)

	root := newRoot(t)
	h := FetchURLHandler{Client: srv.Client(), MaxBytes: 32}

	res := mustRun(t, h, root, fmt.Sprintf(`{"url":%q,"output_filename":"page.html"}`, srv.URL+"/"))
	if got := readTestFile(t, root, "page.html"); !strings.Contains(got, "hi") {
		t.Fatalf("body = %q", got)
	}
	if ct := res.Data.(map[string]any)["content_type"].(string); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content_type = %q", ct)
	}

	if _, err := run(t, h, root, fmt.Sprintf(`{"url":%q,"output_filename":"big.txt"}`, srv.URL+"/big")); err == nil ||
		!strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("err = %v, want size limit", err)
	}
	if _, err := run(t, h, root, fmt.Sprintf(`{"url":%q,"output_filename":"m.txt"}`, srv.URL+"/missing")); err == nil ||
		!strings.Contains(err.Error(), "http_404") {
		t.Fatalf("err = %v, want http_404", err)
	}
}

const scrapePage = `<html><head><title>T</title><script>var x = 1;</script></head><body>
<h1>Prices</h1>
<a href="/a">A</a> <a href="https://example.com/b">B</a>
<table>
  <tr><th>item</th><th>price</th></tr>
  <tr><td>tea</td><td>3</td></tr>
  <tr><td>coffee</td><td>4</td></tr>
</table>
</body></html>`

func newScrapeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
		default:
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, scrapePage)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScrapeWebsite(t *testing.T) {
	srv := newScrapeServer(t)
	root := newRoot(t)
	h := ScrapeHandler{Client: srv.Client(), MaxBytes: 1 << 20}

	cases := []struct {
		dataType string
		output   string
		contains []string
		excludes []string
	}{
		{"text", "text.json", []string{`"text": "T\nPrices\nA\nB`, "coffee"}, []string{"var x"}},
		{"links", "links.json", []string{`"/a"`, `"https://example.com/b"`}, nil},
		{"tables", "tables.json", []string{`"item": "tea"`, `"price": "4"`}, nil},
		{"tables", "tables.csv", []string{"item,price\ntea,3\ncoffee,4\n"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.output, func(t *testing.T) {
			mustRun(t, h, root, fmt.Sprintf(`{"url":%q,"data_type":%q,"output_filename":%q}`, srv.URL+"/page", tc.dataType, tc.output))
			got := readTestFile(t, root, tc.output)
			for _, want := range tc.contains {
				if !strings.Contains(got, want) {
					t.Errorf("%s missing %q:\n%s", tc.output, want, got)
				}
			}
			for _, bad := range tc.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("%s should not contain %q", tc.output, bad)
				}
			}
		})
	}
}

func TestScrapeWebsite_Refusals(t *testing.T) {
	srv := newScrapeServer(t)
	root := newRoot(t)
	h := ScrapeHandler{Client: srv.Client(), MaxBytes: 1 << 20}

	_, err := run(t, h, root, fmt.Sprintf(`{"url":%q,"data_type":"text","output_filename":"p.json"}`, srv.URL+"/private/page"))
	if err == nil || !strings.Contains(err.Error(), "robots.txt") {
		t.Fatalf("err = %v, want robots block", err)
	}
	_, err = run(t, h, root, fmt.Sprintf(`{"url":%q,"data_type":"links","output_filename":"p.csv"}`, srv.URL+"/page"))
	if err == nil || !strings.Contains(err.Error(), "only supported for tables") {
		t.Fatalf("err = %v, want csv restriction", err)
	}
}

func TestScrapeWebsite_UnreadableRobotsBlocks(t *testing.T) {
	var pageHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n"+strings.Repeat("# padding\n", 20))
			return
		}
		pageHits.Add(1)
		fmt.Fprint(w, "<p>ok</p>")
	}))
	t.Cleanup(srv.Close)
	root := newRoot(t)
	h := ScrapeHandler{Client: srv.Client(), MaxBytes: 64}

	_, err := run(t, h, root, fmt.Sprintf(`{"url":%q,"data_type":"text","output_filename":"p.json"}`, srv.URL+"/private/page"))
	if err == nil || !strings.Contains(err.Error(), "robots.txt") || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("err = %v, want oversized robots.txt error", err)
	}
	if pageHits.Load() != 0 {
		t.Fatalf("page fetched %d times", pageHits.Load())
	}
}
