// Package heartbeat classifies probe results into heartbeats and persists
// them.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/monitor"
)

// MaintenanceMessage replaces the probe message of a beat recorded during
// maintenance.
const MaintenanceMessage = "Monitor under maintenance"

var (
	// ErrPersistence is returned when a heartbeat could not be stored after
	// all retries.
	ErrPersistence = errors.New("failed to persist heartbeat")

	// ErrDiscarded is returned when the context ended before the heartbeat
	// was stored. Callers treat it as a dropped result, not a failure.
	ErrDiscarded = errors.New("heartbeat discarded")
)

// Store is the append-only heartbeat history.
type Store interface {
	// LatestHeartbeat returns nil, nil when the monitor has no history.
	LatestHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error)
	AppendHeartbeat(ctx context.Context, hb *models.Heartbeat) error
}

// MaintenanceChecker reports whether a monitor is suppressed at now.
type MaintenanceChecker interface {
	IsUnderMaintenance(ctx context.Context, monitorID int, now time.Time) (bool, error)
}

// Notifier receives important beats. Notify must not block.
type Notifier interface {
	Notify(m *models.Monitor, hb *models.Heartbeat)
}

// Publisher pushes every stored beat to live observers of the owner.
type Publisher interface {
	Publish(ownerID int, hb *models.Heartbeat)
}

// OpsAlerter reports incidents of the monitoring system itself.
type OpsAlerter interface {
	Alert(subject, detail string)
}

// Config tunes an Engine. Zero values select defaults.
type Config struct {
	RetryAttempts int
	RetryBackoff  time.Duration
	MaxBackoff    time.Duration

	// NotifyMaintenanceTransitions controls whether beats entering or
	// leaving MAINTENANCE are handed to the Notifier. They are marked
	// important either way.
	NotifyMaintenanceTransitions bool
}

// Engine is the per-monitor heartbeat state machine.
type Engine struct {
	store       Store
	maintenance MaintenanceChecker
	notifier    Notifier
	publisher   Publisher
	alerter     OpsAlerter
	cfg         Config
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine. notifier, publisher and alerter may be nil.
func NewEngine(store Store, maintenance MaintenanceChecker, notifier Notifier, publisher Publisher, alerter OpsAlerter, cfg Config) *Engine {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}

	return &Engine{
		store:       store,
		maintenance: maintenance,
		notifier:    notifier,
		publisher:   publisher,
		alerter:     alerter,
		cfg:         cfg,
		sleep:       sleepContext,
	}
}

// PreviousHeartbeat returns the most recent heartbeat of a monitor, or nil
// if it has none.
func (e *Engine) PreviousHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error) {
	return e.store.LatestHeartbeat(ctx, monitorID)
}

// RecordCheckResult classifies r against the monitor's previous heartbeat
// and its maintenance windows, stores the resulting heartbeat and hands it
// to the notifier and publisher.
func (e *Engine) RecordCheckResult(ctx context.Context, m *models.Monitor, r monitor.Result, now time.Time) (*models.Heartbeat, error) {
	var prev, hb *models.Heartbeat

	// The previous beat is re-read on every attempt so a retried append
	// classifies against what actually made it to the store.
	err := e.retry(ctx, m.ID, func() error {
		var err error
		if prev, err = e.PreviousHeartbeat(ctx, m.ID); err != nil {
			return fmt.Errorf("failed to load previous heartbeat: %w", err)
		}
		hb = e.classify(ctx, m, r, prev, now)
		return e.store.AppendHeartbeat(ctx, hb)
	})
	if err != nil {
		if errors.Is(err, ErrDiscarded) {
			return nil, err
		}
		detail := fmt.Sprintf("heartbeat for monitor %d at %s was lost after %d attempts: %v",
			m.ID, now.UTC().Format(time.RFC3339), e.cfg.RetryAttempts, err)
		log.Printf("engine: %s", detail)
		if e.alerter != nil {
			e.alerter.Alert("Heartbeat persistence failure", detail)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if hb.Important && e.notifier != nil && e.shouldNotify(prev, hb) {
		e.notifier.Notify(m, hb)
	}
	if e.publisher != nil {
		e.publisher.Publish(m.UserID, hb)
	}

	return hb, nil
}

func (e *Engine) classify(ctx context.Context, m *models.Monitor, r monitor.Result, prev *models.Heartbeat, now time.Time) *models.Heartbeat {
	hb := &models.Heartbeat{
		MonitorID: m.ID,
		Ping:      r.Ping,
		Message:   r.Message,
		Time:      now,
	}

	up := r.Success != m.UpsideDown

	switch {
	case e.underMaintenance(ctx, m.ID, now):
		hb.Status = models.StatusMaintenance
		hb.Message = MaintenanceMessage

	case up:
		hb.Status = models.StatusUp

	default:
		hb.Status = models.StatusDown
		retries := 0
		if prev != nil {
			retries = prev.Retries
		}
		if retries < m.MaxRetries && (prev == nil || prev.Status != models.StatusDown) {
			hb.Status = models.StatusPending
			hb.Retries = retries + 1
		} else {
			hb.Retries = retries
		}
	}

	hb.Important = prev == nil || prev.Status != hb.Status
	if prev != nil {
		if d := now.Sub(prev.Time); d > 0 {
			hb.Duration = int(d.Seconds())
		}
	}

	return hb
}

// underMaintenance treats a failed lookup as "not in maintenance" so a
// database hiccup cannot hide an outage.
func (e *Engine) underMaintenance(ctx context.Context, monitorID int, now time.Time) bool {
	if e.maintenance == nil {
		return false
	}
	in, err := e.maintenance.IsUnderMaintenance(ctx, monitorID, now)
	if err != nil {
		log.Printf("engine: maintenance check for monitor %d failed: %v", monitorID, err)
		return false
	}
	return in
}

func (e *Engine) shouldNotify(prev, hb *models.Heartbeat) bool {
	if e.cfg.NotifyMaintenanceTransitions {
		return true
	}
	if hb.Status == models.StatusMaintenance {
		return false
	}
	return prev == nil || prev.Status != models.StatusMaintenance
}

// retry runs fn with exponential backoff until it succeeds or the attempts
// run out. It returns ErrDiscarded once ctx is done.
func (e *Engine) retry(ctx context.Context, monitorID int, fn func() error) error {
	backoff := e.cfg.RetryBackoff

	var err error
	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ErrDiscarded
		}

		log.Printf("engine: attempt %d/%d to store heartbeat for monitor %d failed: %v",
			attempt, e.cfg.RetryAttempts, monitorID, err)

		if attempt == e.cfg.RetryAttempts {
			break
		}
		if e.sleep(ctx, backoff) != nil {
			return ErrDiscarded
		}
		backoff *= 2
		if backoff > e.cfg.MaxBackoff {
			backoff = e.cfg.MaxBackoff
		}
	}

	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
