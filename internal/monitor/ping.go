package monitor

import (
	"context"
	"fmt"

	"github.com/go-ping/ping"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// PingMonitor performs ICMP ping checks
type PingMonitor struct{}

func init() {
	RegisterMonitorType(&PingMonitor{})
}

func (p *PingMonitor) Name() string {
	return "ping"
}

func (p *PingMonitor) Check(ctx context.Context, m *models.Monitor) (Result, error) {
	if m.URL == "" {
		return Down(0, "No host specified"), nil
	}

	pinger, err := ping.NewPinger(m.URL)
	if err != nil {
		return Down(0, fmt.Sprintf("Failed to create pinger: %v", err)), nil
	}

	pinger.Count = configInt(m, "packet_count", 4)
	pinger.Size = configInt(m, "packet_size", 56)
	pinger.Timeout = m.CheckTimeout()
	pinger.SetPrivileged(configBool(m, "privileged", false))
	switch m.IPVersion {
	case "ipv4":
		pinger.SetNetwork("ip4")
	case "ipv6":
		pinger.SetNetwork("ip6")
	}

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		return Down(0, "Ping cancelled"), nil
	case err := <-done:
		if err != nil {
			return Down(0, fmt.Sprintf("Ping failed: %v", err)), nil
		}
	}

	stats := pinger.Statistics()
	avg := int(stats.AvgRtt.Milliseconds())

	if stats.PacketsRecv == 0 {
		return Down(int(stats.MaxRtt.Milliseconds()), "No packets received (100% packet loss)"), nil
	}
	if stats.PacketLoss > 50 {
		return Down(avg, fmt.Sprintf("High packet loss: %.1f%% - %dms avg", stats.PacketLoss, avg)), nil
	}

	return Up(avg, fmt.Sprintf("Ping OK - %dms avg (loss: %.1f%%)", avg, stats.PacketLoss)), nil
}

func (p *PingMonitor) Validate(m *models.Monitor) error {
	if m.URL == "" {
		return fmt.Errorf("host is required")
	}

	if count, ok := m.Config["packet_count"]; ok {
		c, ok := count.(float64)
		if !ok {
			return fmt.Errorf("packet_count must be a number")
		}
		if c < 1 || c > 100 {
			return fmt.Errorf("packet count must be between 1 and 100")
		}
	}

	if size, ok := m.Config["packet_size"]; ok {
		s, ok := size.(float64)
		if !ok {
			return fmt.Errorf("packet_size must be a number")
		}
		if s < 1 || s > 65500 {
			return fmt.Errorf("packet size must be between 1 and 65500")
		}
	}

	return nil
}
