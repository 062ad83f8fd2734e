package openai

import (
	"net/url"
	"strings"
)

// endpointSuffixes 用户可能误把完整端点填进 model.url。
var endpointSuffixes = []string{
	"/chat/completions",
	"/completions",
	"/embeddings",
	"/audio/transcriptions",
}

// normalizeBaseURL 去掉端点后缀并确保以 /v1 结尾，
// 兼容 https://aiproxy.sanand.workers.dev/openai 这类带前缀的代理地址。
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}

	path := strings.TrimRight(parsed.Path, "/")
	for _, suffix := range endpointSuffixes {
		if strings.HasSuffix(path, suffix) {
			path = strings.TrimSuffix(path, suffix)
			break
		}
	}
	path = strings.TrimRight(path, "/")

	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	for strings.Contains(path, "/v1/v1") {
		path = strings.ReplaceAll(path, "/v1/v1", "/v1")
	}

	parsed.Path = path
	return parsed.String()
}
