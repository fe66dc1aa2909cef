package monitor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// TCPMonitor checks if a TCP port is open
type TCPMonitor struct {
	Guard TargetGuard
}

func init() {
	RegisterMonitorType(&TCPMonitor{})
}

func (t *TCPMonitor) Name() string {
	return "port"
}

func (t *TCPMonitor) Check(ctx context.Context, m *models.Monitor) (Result, error) {
	if m.URL == "" {
		return Down(0, "No host specified"), nil
	}

	port := configInt(m, "port", 80)
	address := net.JoinHostPort(m.URL, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: m.CheckTimeout()}

	start := time.Now()
	conn, err := t.Guard.DialContext(ctx, dialer, networkFor("tcp", m.IPVersion), address)
	ping := int(time.Since(start).Milliseconds())
	if err != nil {
		return Down(ping, fmt.Sprintf("Connection failed: %v", err)), nil
	}
	conn.Close()

	return Up(ping, fmt.Sprintf("Port %d is open - %dms", port, ping)), nil
}

func (t *TCPMonitor) Validate(m *models.Monitor) error {
	if m.URL == "" {
		return fmt.Errorf("host is required")
	}
	if port, ok := m.Config["port"]; ok {
		p, ok := port.(float64)
		if !ok {
			return fmt.Errorf("port must be a number")
		}
		if p < 1 || p > 65535 {
			return fmt.Errorf("port must be between 1 and 65535")
		}
	}
	return t.Guard.CheckHost(m.URL)
}
