package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"task-agent/internal/tools"
)

type SQLQueryHandler struct{}

func (SQLQueryHandler) Name() string { return "run_sql_query" }

func (SQLQueryHandler) Description() string {
	return "Run a read-only SQL query against a SQLite database and save the result set, with a header row, as CSV."
}

func (SQLQueryHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "db_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.(db|sqlite|sqlite3)$`, Description: "SQLite database file."},
		{Name: "query", Type: tools.TypeString, Required: true, Kind: tools.QueryParam,
			Description: "Read-only SQL query."},
		{Name: "output_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.csv$`, Description: "CSV file receiving the result."},
	}
}

func (SQLQueryHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "db_filename", "output_filename")
	if err != nil {
		return tools.Result{}, err
	}
	db, err := openReadOnly(ctx, paths[0])
	if err != nil {
		return tools.Result{}, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, inv.Args.String("query"))
	if err != nil {
		return tools.Result{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return tools.Result{}, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return tools.Result{}, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(cols))
	count := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return tools.Result{}, fmt.Errorf("scan row %d: %w", count+1, err)
		}
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return tools.Result{}, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return tools.Result{}, fmt.Errorf("query: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return tools.Result{}, err
	}

	if err := writeFile(paths[1], buf.Bytes()); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(fmt.Sprintf("%d rows; %s", count, wrote(inv, paths[1])),
		map[string]any{"columns": cols, "rows": count}), nil
}
