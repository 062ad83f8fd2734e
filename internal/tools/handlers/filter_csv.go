package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"task-agent/internal/tools"
)

type FilterCSVHandler struct{}

func (FilterCSVHandler) Name() string { return "filter_csv" }

func (FilterCSVHandler) Description() string {
	return "Filter the rows of a CSV file by comparing one column against a value and return the matching rows as JSON."
}

func (FilterCSVHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "csv_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.csv$`, Description: "CSV file with a header row."},
		{Name: "column_name", Type: tools.TypeString, Required: true, Description: "Column to compare."},
		{Name: "filter_value", Type: tools.TypeString, Required: true, Description: "Value to compare against."},
		{Name: "comparison_operator", Type: tools.TypeString, Default: "=",
			Enum: []string{"=", "!=", ">", "<", ">=", "<="}, Description: "Comparison operator."},
	}
}

func (FilterCSVHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	path, err := inv.Path("csv_filename")
	if err != nil {
		return tools.Result{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return tools.Result{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return tools.Result{}, fmt.Errorf("%s is empty", inv.Root.Rel(path))
	}
	if err != nil {
		return tools.Result{}, fmt.Errorf("read header: %w", err)
	}
	column := inv.Args.String("column_name")
	idx := -1
	for i, h := range header {
		if strings.TrimSpace(h) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return tools.Result{}, fmt.Errorf("column %q not found in CSV", column)
	}

	op, want := inv.Args.String("comparison_operator"), inv.Args.String("filter_value")
	rows := []map[string]string{}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return tools.Result{}, fmt.Errorf("read line %d: %w", line, err)
		}
		if idx >= len(rec) || !compare(rec[idx], want, op) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return tools.Success(fmt.Sprintf("%d matching rows", len(rows)), rows), nil
}

// compare 两侧都能解析为数字时按数值比较，否则按字符串比较。
func compare(got, want, op string) bool {
	c := 0
	gf, gerr := strconv.ParseFloat(strings.TrimSpace(got), 64)
	wf, werr := strconv.ParseFloat(strings.TrimSpace(want), 64)
	if gerr == nil && werr == nil {
		switch {
		case gf < wf:
			c = -1
		case gf > wf:
			c = 1
		}
	} else {
		c = strings.Compare(got, want)
	}
	switch op {
	case "=":
		return c == 0
	case "!=":
		return c != 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	}
	return false
}
