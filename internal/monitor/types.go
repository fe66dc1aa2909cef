package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/fuomag9/beatkeeper/internal/models"
)

var (
	// ErrNoBeat is returned by a probe that has nothing to report this
	// cycle. No heartbeat is recorded.
	ErrNoBeat = errors.New("no heartbeat this cycle")

	// ErrUnknownMonitor is returned for a monitor that is not scheduled.
	ErrUnknownMonitor = errors.New("monitor is not scheduled")

	// ErrBusy is returned when a check for the monitor is already in flight.
	ErrBusy = errors.New("check already in flight")

	// ErrStopped is returned once the scheduler has been stopped.
	ErrStopped = errors.New("scheduler is stopped")
)

// Result is the outcome of one probe. A transport failure is a Result with
// Success false, not an error.
type Result struct {
	Success bool
	Message string
	Ping    int // milliseconds
}

// Up builds a successful result.
func Up(ping int, message string) Result {
	return Result{Success: true, Ping: ping, Message: message}
}

// Down builds a failed result.
func Down(ping int, message string) Result {
	return Result{Success: false, Ping: ping, Message: message}
}

// MonitorType interface that all monitor types must implement
type MonitorType interface {
	// Name returns the monitor type name (e.g., "http", "tcp", "ping")
	Name() string

	// Check probes the target. A returned error other than ErrNoBeat is
	// treated as a failed check.
	Check(ctx context.Context, monitor *models.Monitor) (Result, error)

	// Validate validates the monitor configuration
	Validate(monitor *models.Monitor) error
}

// Registry maps type names to probes. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]MonitorType
}

// NewRegistry creates a registry holding the given types.
func NewRegistry(types ...MonitorType) *Registry {
	r := &Registry{types: make(map[string]MonitorType)}
	for _, mt := range types {
		r.Register(mt)
	}
	return r
}

// Register adds or replaces a monitor type.
func (r *Registry) Register(mt MonitorType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[mt.Name()] = mt
}

// Get returns a monitor type by name.
func (r *Registry) Get(name string) (MonitorType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mt, ok := r.types[name]
	return mt, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry the built-in probes register into.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// RegisterMonitorType registers a monitor type in the default registry
func RegisterMonitorType(mt MonitorType) {
	defaultRegistry.Register(mt)
}

// GetMonitorType returns a monitor type from the default registry
func GetMonitorType(name string) (MonitorType, bool) {
	return defaultRegistry.Get(name)
}

// networkFor narrows a dial network to the monitor's IP version preference.
func networkFor(baseNetwork string, ipVersion string) string {
	suffix := ""
	switch ipVersion {
	case "ipv4":
		suffix = "4"
	case "ipv6":
		suffix = "6"
	default:
		return baseNetwork
	}

	switch baseNetwork {
	case "tcp", "udp", "ip":
		return baseNetwork + suffix
	default:
		return baseNetwork
	}
}

func configString(m *models.Monitor, key, defaultValue string) string {
	if val, ok := m.Config[key].(string); ok {
		return val
	}
	return defaultValue
}

func configInt(m *models.Monitor, key string, defaultValue int) int {
	switch val := m.Config[key].(type) {
	case float64:
		return int(val)
	case int:
		return val
	}
	return defaultValue
}

func configBool(m *models.Monitor, key string, defaultValue bool) bool {
	if val, ok := m.Config[key].(bool); ok {
		return val
	}
	return defaultValue
}

func configMap(m *models.Monitor, key string) map[string]string {
	result := make(map[string]string)
	if val, ok := m.Config[key].(map[string]interface{}); ok {
		for k, v := range val {
			if str, ok := v.(string); ok {
				result[k] = str
			}
		}
	}
	return result
}

func configIntSlice(m *models.Monitor, key string, defaultValue []int) []int {
	val, ok := m.Config[key].([]interface{})
	if !ok {
		return defaultValue
	}
	result := make([]int, 0, len(val))
	for _, v := range val {
		if num, ok := v.(float64); ok {
			result = append(result, int(num))
		}
	}
	return result
}
