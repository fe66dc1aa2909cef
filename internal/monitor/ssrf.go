package monitor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	blockedHostnames = []string{
		"localhost",
		"localhost.localdomain",
	}

	// Cloud metadata endpoints are refused even when private targets are
	// allowed.
	metadataHosts = []string{
		"169.254.169.254",
		"metadata.google.internal",
		"169.254.170.2",
		"fd00:ec2::254",
	}

	privateNets = mustParseCIDRs(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10",
		"fc00::/7",
	)
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// TargetGuard refuses probe targets on private or metadata addresses. The
// check runs on resolved addresses at dial time, so a hostname that later
// re-resolves to a private address is still refused.
type TargetGuard struct {
	AllowPrivate bool
}

// CheckURL validates the scheme and hostname of an HTTP target.
func (g TargetGuard) CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http and https schemes are allowed")
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	return g.CheckHost(u.Hostname())
}

// CheckHost rejects blocked hostnames without resolving them.
func (g TargetGuard) CheckHost(host string) error {
	host = strings.ToLower(strings.Trim(host, "[]"))
	for _, blocked := range metadataHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return fmt.Errorf("access to %s is not allowed", host)
		}
	}
	if g.AllowPrivate {
		return nil
	}
	for _, blocked := range blockedHostnames {
		if host == blocked {
			return fmt.Errorf("access to %s is not allowed", host)
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		return g.CheckIP(ip)
	}
	return nil
}

// CheckIP rejects addresses the guard does not allow.
func (g TargetGuard) CheckIP(ip net.IP) error {
	for _, blocked := range metadataHosts {
		if ip.Equal(net.ParseIP(blocked)) {
			return fmt.Errorf("access to metadata address %s is not allowed", ip)
		}
	}
	if g.AllowPrivate {
		return nil
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("access to loopback address %s is not allowed", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("access to link-local address %s is not allowed", ip)
	case ip.IsMulticast():
		return fmt.Errorf("access to multicast address %s is not allowed", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("access to unspecified address %s is not allowed", ip)
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return fmt.Errorf("access to private address %s is not allowed", ip)
		}
	}
	return nil
}

// DialContext resolves addr, checks every candidate address and dials the
// first allowed one.
func (g TargetGuard) DialContext(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if err := g.CheckHost(host); err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, ipNetwork(network), host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		if err := g.CheckIP(ip); err != nil {
			lastErr = err
			continue
		}
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s does not resolve to any address", host)
	}
	return nil, lastErr
}

func ipNetwork(network string) string {
	switch {
	case strings.HasSuffix(network, "4"):
		return "ip4"
	case strings.HasSuffix(network, "6"):
		return "ip6"
	default:
		return "ip"
	}
}
