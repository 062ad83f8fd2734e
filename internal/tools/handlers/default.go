package handlers

import (
	"net/http"
	"time"

	"task-agent/internal/agent"
	"task-agent/internal/sandbox"
	"task-agent/internal/tools"
)

// Deps 汇总 handler 需要的外部依赖，启动时构造一次。
type Deps struct {
	Runner      sandbox.Runner
	HTTPClient  *http.Client
	Embedder    agent.Embedder
	Vision      agent.Vision
	Transcriber agent.Transcriber

	UserEmail             string
	MaxFetchBytes         int64
	SimilarityParallelism int
	ModelTimeout          time.Duration
}

const (
	defaultUserEmail     = "user@example.com"
	defaultMaxFetchBytes = 10 << 20
	defaultParallelism   = 8
	defaultModelTimeout  = 20 * time.Second
)

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if d.Embedder == nil {
		d.Embedder = agent.OfflineClient{}
	}
	if d.Vision == nil {
		d.Vision = agent.OfflineClient{}
	}
	if d.Transcriber == nil {
		d.Transcriber = agent.OfflineClient{}
	}
	if !emailPattern.MatchString(d.UserEmail) {
		d.UserEmail = defaultUserEmail
	}
	if d.MaxFetchBytes <= 0 {
		d.MaxFetchBytes = defaultMaxFetchBytes
	}
	if d.SimilarityParallelism <= 0 {
		d.SimilarityParallelism = defaultParallelism
	}
	if d.ModelTimeout <= 0 {
		d.ModelTimeout = defaultModelTimeout
	}
	return d
}

// Default returns the built-in operations in registry order.
func Default(deps Deps) []tools.Handler {
	deps = deps.withDefaults()
	return []tools.Handler{
		DatagenScriptHandler{Runner: deps.Runner, UserEmail: deps.UserEmail},
		FormatMarkdownHandler{Runner: deps.Runner},
		CountWeekdaysHandler{},
		SortContactsHandler{},
		RecentLogLinesHandler{},
		MarkdownTitlesHandler{},
		EmailSenderHandler{},
		CardNumberHandler{Vision: deps.Vision, Timeout: deps.ModelTimeout},
		SimilarCommentsHandler{Embedder: deps.Embedder, Parallelism: deps.SimilarityParallelism, Timeout: deps.ModelTimeout},
		TicketSalesHandler{},
		DataAccessHandler{},
		NoDeletionHandler{},
		FetchAPIHandler{Client: deps.HTTPClient, MaxBytes: deps.MaxFetchBytes},
		GitCloneHandler{Runner: deps.Runner, UserEmail: deps.UserEmail},
		SQLQueryHandler{},
		ScrapeHandler{Client: deps.HTTPClient, MaxBytes: deps.MaxFetchBytes},
		FetchURLHandler{Client: deps.HTTPClient, MaxBytes: deps.MaxFetchBytes},
		ResizeImageHandler{},
		TranscribeHandler{Transcriber: deps.Transcriber, Runner: deps.Runner, Timeout: deps.ModelTimeout},
		MarkdownHTMLHandler{},
		FilterCSVHandler{},
	}
}
