package monitor

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/itchyny/gojq"

	"github.com/fuomag9/beatkeeper/internal/models"
)

const maxBodySize = 4 << 20

// HTTPMonitor implements HTTP/HTTPS monitoring. The same probe serves the
// "http", "keyword" and "json-query" types; the latter two additionally
// inspect the response body.
type HTTPMonitor struct {
	Kind  string
	Guard TargetGuard
}

func init() {
	RegisterMonitorType(&HTTPMonitor{Kind: "http"})
	RegisterMonitorType(&HTTPMonitor{Kind: "keyword"})
	RegisterMonitorType(&HTTPMonitor{Kind: "json-query"})
}

// Name returns the monitor type name
func (h *HTTPMonitor) Name() string {
	if h.Kind == "" {
		return "http"
	}
	return h.Kind
}

// Validate validates the HTTP monitor configuration
func (h *HTTPMonitor) Validate(m *models.Monitor) error {
	if m.URL == "" {
		return fmt.Errorf("URL is required for HTTP monitor")
	}
	if err := h.Guard.CheckURL(m.URL); err != nil {
		return fmt.Errorf("URL validation failed: %w", err)
	}

	switch h.Name() {
	case "keyword":
		if configString(m, "keyword", "") == "" {
			return fmt.Errorf("keyword is required")
		}
	case "json-query":
		if _, err := gojq.Parse(configString(m, "json_query", "")); err != nil {
			return fmt.Errorf("invalid json_query: %w", err)
		}
	}
	return nil
}

// Check performs the HTTP check
func (h *HTTPMonitor) Check(ctx context.Context, m *models.Monitor) (Result, error) {
	method := configString(m, "method", "GET")
	headers := configMap(m, "headers")
	body := configString(m, "body", "")
	accepted := configIntSlice(m, "accepted_status_codes", []int{200})
	ignoreTLS := configBool(m, "ignore_tls", false)
	followRedirects := configBool(m, "follow_redirects", true)

	timeout := m.CheckTimeout()
	dialer := &net.Dialer{Timeout: timeout}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return h.Guard.DialContext(ctx, dialer, networkFor(network, m.IPVersion), addr)
			},
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: ignoreTLS,
			},
		},
	}
	defer client.CloseIdleConnections()

	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.URL, reqBody)
	if err != nil {
		return Down(0, fmt.Sprintf("Failed to create request: %v", err)), nil
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := client.Do(req)
	ping := int(time.Since(start).Milliseconds())
	if err != nil {
		return Down(ping, fmt.Sprintf("Request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	statusOK := false
	for _, code := range accepted {
		if resp.StatusCode == code {
			statusOK = true
			break
		}
	}
	if !statusOK {
		return Down(ping, fmt.Sprintf("Unexpected status code: %d", resp.StatusCode)), nil
	}

	switch h.Name() {
	case "keyword":
		return h.checkKeyword(m, resp, ping), nil
	case "json-query":
		return h.checkJSONQuery(ctx, m, resp, ping), nil
	}

	return Up(ping, fmt.Sprintf("HTTP %d - %dms", resp.StatusCode, ping)), nil
}

func (h *HTTPMonitor) checkKeyword(m *models.Monitor, resp *http.Response, ping int) Result {
	keyword := configString(m, "keyword", "")
	invert := configBool(m, "invert_keyword", false)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Down(ping, fmt.Sprintf("Failed to read response body: %v", err))
	}

	found := strings.Contains(string(data), keyword)
	if invert && found {
		return Down(ping, fmt.Sprintf("Keyword '%s' found (inverted check)", keyword))
	}
	if !invert && !found {
		return Down(ping, fmt.Sprintf("Keyword '%s' not found", keyword))
	}
	return Up(ping, fmt.Sprintf("HTTP %d, keyword check passed - %dms", resp.StatusCode, ping))
}

func (h *HTTPMonitor) checkJSONQuery(ctx context.Context, m *models.Monitor, resp *http.Response, ping int) Result {
	query := configString(m, "json_query", ".")
	expected := configString(m, "expected_value", "")

	var doc interface{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&doc); err != nil {
		return Down(ping, fmt.Sprintf("Response is not valid JSON: %v", err))
	}

	got, err := evalJSONQuery(ctx, query, doc)
	if err != nil {
		return Down(ping, fmt.Sprintf("JSON query failed: %v", err))
	}
	if got != expected {
		return Down(ping, fmt.Sprintf("JSON query result %q does not match expected %q", got, expected))
	}
	return Up(ping, fmt.Sprintf("JSON query matched %q - %dms", got, ping))
}

// evalJSONQuery runs a jq expression and renders its first output as the
// string it would be compared with.
func evalJSONQuery(ctx context.Context, query string, doc interface{}) (string, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return "", err
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return "", err
	}

	iter := code.RunWithContext(ctx, doc)
	v, ok := iter.Next()
	if !ok {
		return "", fmt.Errorf("query produced no output")
	}
	if err, ok := v.(error); ok {
		return "", err
	}

	switch v := v.(type) {
	case string:
		return v, nil
	case nil:
		return "null", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
