package handlers

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"task-agent/internal/tools"

	"github.com/tidwall/gjson"
)

type SortContactsHandler struct{}

func (SortContactsHandler) Name() string { return "sort_contacts" }

func (SortContactsHandler) Description() string {
	return "Sort a JSON array of contacts by last_name, then first_name, and write the sorted array to a target file."
}

func (SortContactsHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "filename", Type: tools.TypeString, Default: "contacts.json", Kind: tools.PathParam,
			Pattern: `\.json$`, Description: "JSON file holding an array of contacts."},
		{Name: "targetfile", Type: tools.TypeString, Default: "contacts-sorted.json", Kind: tools.PathParam,
			Pattern: `\.json$`, Description: "File receiving the sorted contacts."},
	}
}

type contact struct {
	last  string
	first string
	raw   string
}

func (SortContactsHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "filename", "targetfile")
	if err != nil {
		return tools.Result{}, err
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		return tools.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return tools.Result{}, fmt.Errorf("%s is not valid JSON", inv.Root.Rel(paths[0]))
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return tools.Result{}, fmt.Errorf("%s must contain a JSON array", inv.Root.Rel(paths[0]))
	}

	var contacts []contact
	for i, item := range doc.Array() {
		last, first := item.Get("last_name"), item.Get("first_name")
		if !last.Exists() || !first.Exists() {
			return tools.Result{}, fmt.Errorf("contact %d is missing last_name or first_name", i)
		}
		contacts = append(contacts, contact{last: last.String(), first: first.String(), raw: item.Raw})
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		if contacts[i].last != contacts[j].last {
			return contacts[i].last < contacts[j].last
		}
		return contacts[i].first < contacts[j].first
	})

	raws := make([]string, len(contacts))
	for i, c := range contacts {
		raws[i] = c.raw
	}
	if err := writeIndented(paths[1], []byte("["+strings.Join(raws, ",")+"]")); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(fmt.Sprintf("sorted %d contacts; %s", len(contacts), wrote(inv, paths[1])),
		map[string]any{"count": len(contacts)}), nil
}
