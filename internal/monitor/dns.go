package monitor

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
)

var dnsRecordTypes = []string{"A", "AAAA", "CNAME", "MX", "NS", "TXT"}

// DNSMonitor performs DNS query checks
type DNSMonitor struct{}

func init() {
	RegisterMonitorType(&DNSMonitor{})
}

func (d *DNSMonitor) Name() string {
	return "dns"
}

func (d *DNSMonitor) Check(ctx context.Context, m *models.Monitor) (Result, error) {
	hostname := m.URL
	if hostname == "" {
		return Down(0, "No hostname specified"), nil
	}

	server := configString(m, "dns_server", "")
	queryType := strings.ToUpper(configString(m, "query_type", "A"))
	expected := configString(m, "expected_result", "")

	resolver := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialer := net.Dialer{Timeout: m.CheckTimeout()}
			if server != "" {
				address = server
				if _, _, err := net.SplitHostPort(address); err != nil {
					address = net.JoinHostPort(server, "53")
				}
			}
			return dialer.DialContext(ctx, networkFor(network, m.IPVersion), address)
		},
	}

	start := time.Now()
	results, err := lookup(ctx, resolver, queryType, hostname)
	ping := int(time.Since(start).Milliseconds())

	if err != nil {
		return Down(ping, fmt.Sprintf("DNS query failed: %v", err)), nil
	}
	if len(results) == 0 {
		return Down(ping, fmt.Sprintf("No %s records found", queryType)), nil
	}

	if expected != "" {
		found := false
		for _, r := range results {
			if strings.Contains(r, expected) {
				found = true
				break
			}
		}
		if !found {
			return Down(ping, fmt.Sprintf("Expected result '%s' not found in: %s", expected, strings.Join(results, ", "))), nil
		}
	}

	return Up(ping, fmt.Sprintf("%s query OK - %s - %dms", queryType, strings.Join(results, ", "), ping)), nil
}

func lookup(ctx context.Context, resolver *net.Resolver, queryType, hostname string) ([]string, error) {
	var results []string

	switch queryType {
	case "A", "AAAA":
		network := "ip4"
		if queryType == "AAAA" {
			network = "ip6"
		}
		ips, err := resolver.LookupIP(ctx, network, hostname)
		for _, ip := range ips {
			results = append(results, ip.String())
		}
		return results, err
	case "CNAME":
		cname, err := resolver.LookupCNAME(ctx, hostname)
		if cname != "" {
			results = append(results, cname)
		}
		return results, err
	case "MX":
		mxs, err := resolver.LookupMX(ctx, hostname)
		for _, mx := range mxs {
			results = append(results, fmt.Sprintf("%s (priority: %d)", mx.Host, mx.Pref))
		}
		return results, err
	case "NS":
		nss, err := resolver.LookupNS(ctx, hostname)
		for _, ns := range nss {
			results = append(results, ns.Host)
		}
		return results, err
	case "TXT":
		return resolver.LookupTXT(ctx, hostname)
	default:
		return nil, fmt.Errorf("unsupported query type: %s", queryType)
	}
}

func (d *DNSMonitor) Validate(m *models.Monitor) error {
	if m.URL == "" {
		return fmt.Errorf("hostname is required")
	}

	qt, ok := m.Config["query_type"]
	if !ok {
		return nil
	}
	queryType, ok := qt.(string)
	if !ok {
		return fmt.Errorf("query_type must be a string")
	}
	queryType = strings.ToUpper(queryType)
	for _, valid := range dnsRecordTypes {
		if queryType == valid {
			return nil
		}
	}
	return fmt.Errorf("query_type must be one of: %s", strings.Join(dnsRecordTypes, ", "))
}
