package model

import (
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// Protocol 是代理源声称的协议, 只区分 HTTP 与 HTTPS。
type Protocol uint8

const (
	ProtocolHTTP Protocol = iota + 1
	ProtocolHTTPS
)

// ParseProtocol normalizes the protocol text reported by a listing site.
// "https" and any value listing both http and https map to HTTPS; everything else is HTTP.
func ParseProtocol(s string) Protocol {
	var hasHTTP, hasHTTPS bool
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || r == '/' || r == '|' || r == ' ' || r == '\t'
	})
	for _, f := range fields {
		switch f {
		case "http":
			hasHTTP = true
		case "https":
			hasHTTPS = true
		}
	}
	if hasHTTPS && (hasHTTP || len(fields) == 1) {
		return ProtocolHTTPS
	}
	return ProtocolHTTP
}

func (p Protocol) String() string {
	if p == ProtocolHTTPS {
		return "https"
	}
	return "http"
}

// Proxy 是一条从代理列表页解析出的候选代理, 构造后不可变, 按值传递。
type Proxy struct {
	Protocol Protocol
	Addr     netip.Addr
	Port     uint16

	// Source 记录产生该代理的抓取器名称, 不参与规范字符串。
	Source string
}

// NewProxy builds a record from the raw strings a fetcher matched.
// The address must be an IPv4 dotted quad.
func NewProxy(protocol, address string, port uint16) (Proxy, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return Proxy{}, fmt.Errorf("invalid ipv4 address %q: %w", address, err)
	}
	if !addr.Is4() {
		return Proxy{}, fmt.Errorf("invalid ipv4 address %q: not a dotted quad", address)
	}
	return Proxy{
		Protocol: ParseProtocol(protocol),
		Addr:     addr,
		Port:     port,
	}, nil
}

// ParsePort parses a decimal port in 0-65535.
func ParsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(port), nil
}

// WithSource returns a copy of p tagged with the fetcher name.
func (p Proxy) WithSource(source string) Proxy {
	p.Source = source
	return p
}

// HostPort returns "address:port".
func (p Proxy) HostPort() string {
	return netip.AddrPortFrom(p.Addr, p.Port).String()
}

// String returns the canonical form scheme://address:port.
func (p Proxy) String() string {
	return p.Protocol.String() + "://" + p.HostPort()
}

// URL returns the canonical form as a *url.URL, suitable for http.ProxyURL.
func (p Proxy) URL() *url.URL {
	return &url.URL{Scheme: p.Protocol.String(), Host: p.HostPort()}
}
