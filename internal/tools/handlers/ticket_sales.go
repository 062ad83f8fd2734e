package handlers

import (
	"context"
	"fmt"

	"task-agent/internal/tools"
)

type TicketSalesHandler struct{}

func (TicketSalesHandler) Name() string { return "ticket_sales_total" }

func (TicketSalesHandler) Description() string {
	return "Compute a single aggregate (by default total sales of Gold tickets) from a SQLite ticket database and write it to a text file."
}

func (TicketSalesHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "filename", Type: tools.TypeString, Default: "ticket-sales.db", Kind: tools.PathParam,
			Pattern: `\.db$`, Description: "SQLite database with a tickets(type, units, price) table."},
		{Name: "output_filename", Type: tools.TypeString, Default: "ticket-sales-gold.txt", Kind: tools.PathParam,
			Description: "File receiving the value."},
		{Name: "query", Type: tools.TypeString, Kind: tools.QueryParam,
			Default:     "SELECT SUM(units * price) FROM tickets WHERE type = 'Gold'",
			Description: "Read-only query returning a single value."},
	}
}

func (TicketSalesHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "filename", "output_filename")
	if err != nil {
		return tools.Result{}, err
	}
	db, err := openReadOnly(ctx, paths[0])
	if err != nil {
		return tools.Result{}, err
	}
	defer db.Close()

	var v any
	if err := db.QueryRowContext(ctx, inv.Args.String("query")).Scan(&v); err != nil {
		return tools.Result{}, fmt.Errorf("query: %w", err)
	}
	total := formatValue(v)
	if total == "" {
		total = "0"
	}
	if err := writeFile(paths[1], []byte(total)); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(fmt.Sprintf("total %s; %s", total, wrote(inv, paths[1])),
		map[string]string{"total": total}), nil
}
