package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// ErrQueueFull is returned by Enqueue when the dispatch queue has no room.
var ErrQueueFull = errors.New("notification queue is full")

// ChannelSource resolves the notification channels of a monitor.
type ChannelSource interface {
	NotificationsForMonitor(ctx context.Context, m *models.Monitor) ([]models.Notification, error)
}

// DispatcherConfig tunes a Dispatcher. Zero values select defaults.
type DispatcherConfig struct {
	Workers       int
	QueueSize     int
	RatePerSecond float64 // <= 0 disables rate limiting
	SendTimeout   time.Duration
}

type delivery struct {
	monitor   models.Monitor
	heartbeat models.Heartbeat
}

// Dispatcher handles sending notifications. Beats are queued by Notify and
// delivered by a fixed set of workers, so a slow channel never blocks the
// check cycle that produced the beat.
type Dispatcher struct {
	source  ChannelSource
	cfg     DispatcherConfig
	limiter *rate.Limiter
	queue   chan delivery

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewDispatcher creates a new notification dispatcher. Start must be
// called before queued beats are delivered.
func NewDispatcher(source ChannelSource, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Dispatcher{
		source:  source,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Workers),
		queue:   make(chan delivery, cfg.QueueSize),
	}
}

// Start launches the delivery workers. They run until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	log.Printf("notification: started %d workers (queue %d)", d.cfg.Workers, d.cfg.QueueSize)
}

// Close stops accepting beats, delivers what is already queued and waits
// for the workers to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Notify queues an important beat. It never blocks: when the queue is full
// the beat is dropped and logged.
func (d *Dispatcher) Notify(m *models.Monitor, hb *models.Heartbeat) {
	if err := d.Enqueue(m, hb); err != nil {
		d.dropped.Add(1)
		log.Printf("notification: dropping beat %d of monitor %d: %v", hb.ID, m.ID, err)
	}
}

// Enqueue is Notify with the failure reported to the caller.
func (d *Dispatcher) Enqueue(m *models.Monitor, hb *models.Heartbeat) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("dispatcher is closed")
	}

	select {
	case d.queue <- delivery{monitor: *m, heartbeat: *hb}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dropped returns how many beats were dropped because the queue was full
// or closed.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		if err := d.deliver(ctx, &job.monitor, &job.heartbeat); err != nil {
			log.Printf("notification: monitor %d: %v", job.monitor.ID, err)
		}
	}
}

// deliver sends one beat to every channel of its monitor.
func (d *Dispatcher) deliver(ctx context.Context, m *models.Monitor, hb *models.Heartbeat) error {
	channels, err := d.source.NotificationsForMonitor(ctx, m)
	if err != nil {
		return fmt.Errorf("failed to get monitor notifications: %w", err)
	}
	if len(channels) == 0 {
		return nil
	}

	msg := NewMessage(m, hb)

	var failed int
	for i := range channels {
		n := &channels[i]
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := d.send(ctx, n, msg); err != nil {
			failed++
			log.Printf("notification: failed to send via %s (%s): %v", n.Type, n.Name, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to send %d/%d notifications", failed, len(channels))
	}
	return nil
}

// send sends a notification using the appropriate provider
func (d *Dispatcher) send(ctx context.Context, n *models.Notification, msg *Message) error {
	if !n.Active {
		return nil
	}

	provider, ok := GetProvider(n.Type)
	if !ok {
		return fmt.Errorf("unknown notification provider: %s", n.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return provider.Send(ctx, n, msg)
}
