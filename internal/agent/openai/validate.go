package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// CheckChatEndpoint 直接请求 /chat/completions，不经过 SDK，用于 ping 诊断代理是否可用。
func CheckChatEndpoint(ctx context.Context, baseURL string, apiKey string, model string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return "", errors.New("missing OPENAI_API_KEY")
	}

	base := normalizeBaseURL(baseURL)
	if strings.TrimSpace(base) == "" {
		base = "https://api.openai.com/v1"
	}
	endpoint := strings.TrimRight(base, "/") + "/chat/completions"

	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	reqBody := map[string]any{
		"model": strings.TrimSpace(model),
		"messages": []map[string]any{
			{"role": "system", "content": "Reply with exactly: pong"},
			{"role": "user", "content": "ping"},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", key))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http_%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	text := strings.TrimSpace(gjson.GetBytes(body, "choices.0.message.content").String())
	if text == "" {
		return "", errors.New("chat completions returned no text")
	}
	return text, nil
}
