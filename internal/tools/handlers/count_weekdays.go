package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"task-agent/internal/tools"

	"github.com/araddon/dateparse"
)

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

type CountWeekdaysHandler struct{}

func (CountWeekdaysHandler) Name() string { return "count_weekdays" }

func (CountWeekdaysHandler) Description() string {
	return "Count how many dates in a file (one per line, any common format) fall on a given weekday and write the count to a target file."
}

func (CountWeekdaysHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.txt$`, Description: "File with one date per line."},
		{Name: "targetfile", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.txt$`, Description: "File receiving the count."},
		{Name: "weekday", Type: tools.TypeString, Required: true, Enum: weekdays,
			Description: "Day of the week to count."},
	}
}

func (CountWeekdaysHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "filename", "targetfile")
	if err != nil {
		return tools.Result{}, err
	}
	weekday := inv.Args.String("weekday")

	lines, err := readLines(paths[0])
	if err != nil {
		return tools.Result{}, err
	}
	count := 0
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t, err := dateparse.ParseAny(line)
		if err != nil {
			return tools.Result{}, fmt.Errorf("line %d: cannot parse date %q: %w", i+1, line, err)
		}
		if t.Weekday().String() == weekday {
			count++
		}
	}

	if err := writeFile(paths[1], []byte(strconv.Itoa(count))); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(fmt.Sprintf("%d %s dates; %s", count, weekday, wrote(inv, paths[1])),
		map[string]any{"count": count, "weekday": weekday}), nil
}
