package openai

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// defaultBaseURL 与 SDK 未设置 base URL 时使用的地址一致。
const defaultBaseURL = "https://api.openai.com/v1"

// Endpoint 是 model.url 解析出的 TCP 地址及一次建连耗时。
type Endpoint struct {
	URL     string
	Addr    string
	Latency time.Duration
}

// endpointAddr 把 model.url 规范化后拆出 host:port，缺省端口按 scheme 推断。
func endpointAddr(baseURL string) (string, string, error) {
	normalized := normalizeBaseURL(strings.TrimSpace(baseURL))
	parsed, err := url.Parse(normalized)
	if err != nil {
		return "", "", fmt.Errorf("invalid model.url %q: %w", baseURL, err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", "", fmt.Errorf("invalid model.url %q: missing host", baseURL)
	}
	port := parsed.Port()
	switch strings.ToLower(parsed.Scheme) {
	case "https":
		if port == "" {
			port = "443"
		}
	case "http":
		if port == "" {
			port = "80"
		}
	default:
		return "", "", fmt.Errorf("unsupported model.url scheme %q", parsed.Scheme)
	}
	return normalized, net.JoinHostPort(host, port), nil
}

// DialEndpoint 只建立并关闭一次 TCP 连接，不发送请求、不消耗 token。
// ping 先用它区分网络不通与鉴权/模型错误。
func DialEndpoint(ctx context.Context, baseURL string) (Endpoint, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	normalized, addr, err := endpointAddr(baseURL)
	if err != nil {
		return Endpoint{}, err
	}
	start := time.Now()
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return Endpoint{URL: normalized, Addr: addr}, fmt.Errorf("model endpoint %s unreachable: %w", addr, err)
	}
	_ = conn.Close()
	return Endpoint{URL: normalized, Addr: addr, Latency: time.Since(start)}, nil
}
