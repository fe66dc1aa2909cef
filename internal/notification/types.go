// Package notification delivers important heartbeats to the notification
// channels configured for a monitor.
package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// Provider defines the interface for all notification providers
type Provider interface {
	// Name returns the unique identifier for this provider
	Name() string

	// Send sends a notification with the given message
	Send(ctx context.Context, notification *models.Notification, message *Message) error

	// Validate validates the provider configuration
	Validate(config map[string]interface{}) error
}

// Message represents a notification message to be sent
type Message struct {
	Title       string
	Body        string
	MonitorID   int
	MonitorName string
	MonitorURL  string
	Status      string // "up", "down", "pending", "maintenance"
	Ping        int    // milliseconds
	Duration    int    // seconds since the previous beat
	Time        time.Time
	Important   bool
}

// NewMessage describes a heartbeat of m.
func NewMessage(m *models.Monitor, hb *models.Heartbeat) *Message {
	status := models.StatusText(hb.Status)
	return &Message{
		Title:       fmt.Sprintf("Monitor is %s", status),
		Body:        hb.Message,
		MonitorID:   m.ID,
		MonitorName: m.Name,
		MonitorURL:  m.URL,
		Status:      strings.ToLower(status),
		Ping:        hb.Ping,
		Duration:    hb.Duration,
		Time:        hb.Time,
		Important:   hb.Important,
	}
}

// Registry holds all registered notification providers
var (
	providers = make(map[string]Provider)
	mu        sync.RWMutex
)

// RegisterProvider registers a new notification provider
func RegisterProvider(provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[provider.Name()] = provider
}

// GetProvider returns a provider by name
func GetProvider(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := providers[name]
	return provider, ok
}

// ProviderNames returns the registered provider names, sorted.
func ProviderNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatMessage formats a notification message with common details
func FormatMessage(msg *Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s\n\n", strings.ToUpper(msg.Status), msg.Title)
	if msg.Body != "" {
		b.WriteString(msg.Body + "\n\n")
	}
	fmt.Fprintf(&b, "Monitor: %s\n", msg.MonitorName)

	if msg.MonitorURL != "" {
		fmt.Fprintf(&b, "URL: %s\n", msg.MonitorURL)
	}

	if msg.Ping > 0 {
		fmt.Fprintf(&b, "Response Time: %s ms\n", humanize.Comma(int64(msg.Ping)))
	}

	if msg.Duration > 0 {
		since := msg.Time.Add(-time.Duration(msg.Duration) * time.Second)
		fmt.Fprintf(&b, "Previous check: %s\n", humanize.RelTime(since, msg.Time, "earlier", "later"))
	}

	fmt.Fprintf(&b, "Time: %s\n", msg.Time.UTC().Format(time.RFC3339))

	return b.String()
}
