package policy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"syscall"
	"time"
)

// DefaultBlockedPrefixes 禁止访问的地址段：回环、私有、链路本地、CGNAT、组播与保留地址。
var DefaultBlockedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::/128",
	"::1/128",
	"64:ff9b::/96",
	"100::/64",
	"2001::/32",
	"2001:db8::/32",
	"2002::/16",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
)

// ErrBlockedTarget 所有出站拒绝都包装该错误。
var ErrBlockedTarget = errors.New("blocked outbound target")

// Resolver 与 *net.Resolver 兼容，测试中可替换。
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NetGuard 校验出站 URL 只指向公网主机。
type NetGuard struct {
	resolver Resolver
	blocked  []netip.Prefix
}

type NetGuardOption func(*NetGuard)

func WithResolver(r Resolver) NetGuardOption {
	return func(g *NetGuard) { g.resolver = r }
}

// WithBlockedPrefixes 替换默认地址黑名单。
func WithBlockedPrefixes(prefixes []netip.Prefix) NetGuardOption {
	return func(g *NetGuard) { g.blocked = prefixes }
}

func NewNetGuard(opts ...NetGuardOption) NetGuard {
	g := NetGuard{resolver: net.DefaultResolver, blocked: DefaultBlockedPrefixes}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// CheckURL 默认只允许 http/https，可通过 schemes 放宽（如 git）；主机名为 localhost
// 或包含 "internal" 直接拒绝；字面 IP 与 DNS 返回的每个地址都必须是公网地址。
func (g NetGuard) CheckURL(ctx context.Context, raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty URL", ErrBlockedTarget)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrBlockedTarget, err)
	}
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	if !slices.Contains(schemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%w: unsupported URL scheme %q", ErrBlockedTarget, u.Scheme)
	}
	return g.CheckHost(ctx, u.Hostname())
}

// CheckHost 校验主机名，git:// 等非 HTTP 地址也复用该检查。
func (g NetGuard) CheckHost(ctx context.Context, host string) error {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return fmt.Errorf("%w: missing hostname", ErrBlockedTarget)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || host == "localhost.localdomain" {
		return fmt.Errorf("%w: localhost is not allowed", ErrBlockedTarget)
	}
	if strings.Contains(host, "internal") {
		return fmt.Errorf("%w: internal hosts are not allowed", ErrBlockedTarget)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return g.checkAddr(addr)
	}

	resolver := g.resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: DNS resolution failed for %s: %v", ErrBlockedTarget, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s resolved to no addresses", ErrBlockedTarget, host)
	}
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			return fmt.Errorf("%w: %s resolved to invalid address", ErrBlockedTarget, host)
		}
		if err := g.checkAddr(addr); err != nil {
			return fmt.Errorf("%s: %w", host, err)
		}
	}
	return nil
}

func (g NetGuard) checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()
	for _, p := range g.blocked {
		if p.Contains(addr) {
			return fmt.Errorf("%w: address %s is not public", ErrBlockedTarget, addr)
		}
	}
	return nil
}

// HTTPClient 返回一个在建立连接时再次校验对端 IP 的客户端，防止 DNS rebinding。
// 重定向目标同样经过 CheckURL。
func (g NetGuard) HTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return fmt.Errorf("%w: unexpected dial address %s", ErrBlockedTarget, address)
			}
			return g.checkAddr(addr)
		},
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			return g.CheckURL(req.Context(), req.URL.String())
		},
	}
}

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}
