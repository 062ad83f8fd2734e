package handlers

import (
	"context"
	"net/http"

	"task-agent/internal/tools"

	"github.com/gabriel-vasile/mimetype"
)

type FetchURLHandler struct {
	Client   *http.Client
	MaxBytes int64
}

func (FetchURLHandler) Name() string { return "fetch_url" }

func (FetchURLHandler) Description() string {
	return "Download the raw contents of a public URL and save them to a file."
}

func (FetchURLHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "url", Type: tools.TypeString, Required: true, Kind: tools.URLParam,
			Description: "Public http(s) URL."},
		{Name: "output_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Description: "File receiving the body."},
	}
}

func (h FetchURLHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	output, err := inv.Path("output_filename")
	if err != nil {
		return tools.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inv.Args.String("url"), nil)
	if err != nil {
		return tools.Result{}, err
	}
	body, _, err := fetch(req, h.Client, h.MaxBytes)
	if err != nil {
		return tools.Result{}, err
	}
	if err := writeFile(output, body); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(wrote(inv, output), map[string]any{
		"bytes":        len(body),
		"content_type": mimetype.Detect(body).String(),
	}), nil
}
