package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"task-agent/internal/tools"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const scrapeUserAgent = "Mozilla/5.0 (compatible; task-agent)"

// ScrapeHandler 抓取公开网页的文本、链接或表格，遵守 robots.txt。
type ScrapeHandler struct {
	Client   *http.Client
	MaxBytes int64
}

func (ScrapeHandler) Name() string { return "scrape_website" }

func (ScrapeHandler) Description() string {
	return "Scrape a public web page (respecting robots.txt) and save its text, links, or tables as JSON, or its first table as CSV."
}

func (ScrapeHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "url", Type: tools.TypeString, Required: true, Kind: tools.URLParam,
			Description: "Publicly accessible page URL."},
		{Name: "data_type", Type: tools.TypeString, Required: true, Enum: []string{"text", "links", "tables"},
			Description: "What to extract."},
		{Name: "output_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.(json|csv)$`, Description: "Output file; CSV is only valid for tables."},
	}
}

func (h ScrapeHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	output, err := inv.Path("output_filename")
	if err != nil {
		return tools.Result{}, err
	}
	dataType := inv.Args.String("data_type")
	asCSV := strings.HasSuffix(strings.ToLower(output), ".csv")
	if asCSV && dataType != "tables" {
		return tools.Result{}, fmt.Errorf("csv output is only supported for tables, not %s", dataType)
	}

	target, err := url.Parse(inv.Args.String("url"))
	if err != nil {
		return tools.Result{}, err
	}
	if err := h.checkRobots(ctx, target); err != nil {
		return tools.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return tools.Result{}, err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	body, _, err := fetch(req, h.Client, h.MaxBytes)
	if err != nil {
		return tools.Result{}, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return tools.Result{}, fmt.Errorf("parse html: %w", err)
	}

	switch dataType {
	case "text":
		err = writeJSON(output, map[string]string{"text": pageText(doc)})
	case "links":
		err = writeJSON(output, map[string][]string{"links": pageLinks(doc)})
	case "tables":
		tables := pageTables(doc)
		if len(tables) == 0 {
			return tools.Result{}, errors.New("no tables found on the page")
		}
		if asCSV {
			err = writeTableCSV(output, tables[0])
		} else {
			records := make([][]map[string]string, len(tables))
			for i, t := range tables {
				records[i] = t.records()
			}
			err = writeJSON(output, map[string]any{"tables": records})
		}
	}
	if err != nil {
		return tools.Result{}, err
	}
	return tools.Success(wrote(inv, output), map[string]string{"data_type": dataType}), nil
}

// checkRobots 读取站点 robots.txt；4xx 视为全部允许，5xx 视为全部禁止。
func (h ScrapeHandler) checkRobots(ctx context.Context, target *url.URL) error {
	robotsURL := url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	body, resp, err := fetch(req, h.Client, h.MaxBytes)
	if resp == nil || (err != nil && resp.StatusCode < 300) {
		return fmt.Errorf("robots.txt: %w", err)
	}
	robots, perr := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if perr != nil {
		return fmt.Errorf("robots.txt: %w", perr)
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	if !robots.TestAgent(path, "*") {
		return errors.New("scraping is blocked by robots.txt")
	}
	return nil
}

func pageText(doc *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Noscript) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, "\n")
}

func pageLinks(doc *html.Node) []string {
	links := []string{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, a := range n.Attr {
				if a.Key == "href" {
					links = append(links, a.Val)
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

type table struct {
	header []string
	rows   [][]string
}

// records 以表头为键转换每一行；缺少表头时使用 col_N。
func (t table) records() []map[string]string {
	out := make([]map[string]string, 0, len(t.rows))
	for _, row := range t.rows {
		rec := make(map[string]string, len(row))
		for i, cell := range row {
			rec[t.column(i)] = cell
		}
		out = append(out, rec)
	}
	return out
}

func (t table) column(i int) string {
	if i < len(t.header) && t.header[i] != "" {
		return t.header[i]
	}
	return fmt.Sprintf("col_%d", i)
}

func pageTables(doc *html.Node) []table {
	var tables []table
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			tables = append(tables, parseTable(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tables
}

// parseTable 第一行全部是 th 时作为表头；嵌套表格不展开。
func parseTable(n *html.Node) table {
	var t table
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			cells, allHeader := rowCells(n)
			if len(cells) == 0 {
				return
			}
			if t.header == nil && len(t.rows) == 0 && allHeader {
				t.header = cells
			} else {
				t.rows = append(t.rows, cells)
			}
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return t
}

func rowCells(tr *html.Node) ([]string, bool) {
	var cells []string
	allHeader := true
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		if c.DataAtom == atom.Td {
			allHeader = false
		}
		cells = append(cells, strings.Join(strings.Fields(nodeText(c)), " "))
	}
	return cells, allHeader
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func writeTableCSV(path string, t table) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	width := len(t.header)
	for _, row := range t.rows {
		width = max(width, len(row))
	}
	header := make([]string, width)
	for i := range header {
		header[i] = t.column(i)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}
