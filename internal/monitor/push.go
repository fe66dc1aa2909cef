package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// PushMonitor backs monitors whose target reports in through the push
// endpoint. Its scheduled check only records a failure when no push
// arrived within the monitor's interval.
type PushMonitor struct {
	mu   sync.Mutex
	last map[int]time.Time
	now  func() time.Time
}

// NewPushMonitor creates a push probe with its own arrival log.
func NewPushMonitor() *PushMonitor {
	return &PushMonitor{
		last: make(map[int]time.Time),
		now:  time.Now,
	}
}

func (p *PushMonitor) Name() string {
	return "push"
}

// Seen records a push for the monitor at t.
func (p *PushMonitor) Seen(monitorID int, t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[monitorID] = t
}

// Forget drops the arrival log of a removed monitor.
func (p *PushMonitor) Forget(monitorID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.last, monitorID)
}

// Check returns ErrNoBeat while the last push is recent. The first check of
// a monitor only arms the timer so a freshly started monitor gets one full
// interval to report in.
func (p *PushMonitor) Check(ctx context.Context, m *models.Monitor) (Result, error) {
	now := p.now()

	p.mu.Lock()
	last, ok := p.last[m.ID]
	if !ok {
		p.last[m.ID] = now
	}
	p.mu.Unlock()

	if !ok || now.Sub(last) < m.CheckInterval() {
		return Result{}, ErrNoBeat
	}
	return Down(0, "No heartbeat in the time window"), nil
}

func (p *PushMonitor) Validate(m *models.Monitor) error {
	if m.PushToken == nil || *m.PushToken == "" {
		return fmt.Errorf("push token is required")
	}
	return nil
}
