package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// WindowSource returns the active maintenance windows linked to a monitor.
type WindowSource interface {
	FindMaintenanceWindowsFor(ctx context.Context, monitorID int) ([]models.Maintenance, error)
}

// Evaluator decides whether a monitor is currently under maintenance.
type Evaluator struct {
	source WindowSource
}

// NewEvaluator creates a new evaluator
func NewEvaluator(source WindowSource) *Evaluator {
	return &Evaluator{source: source}
}

// IsUnderMaintenance reports whether any window linked to the monitor is in
// effect at now. Windows that fail to compile are skipped with a warning.
func (e *Evaluator) IsUnderMaintenance(ctx context.Context, monitorID int, now time.Time) (bool, error) {
	rows, err := e.source.FindMaintenanceWindowsFor(ctx, monitorID)
	if err != nil {
		return false, fmt.Errorf("failed to load maintenance windows for monitor %d: %w", monitorID, err)
	}

	for _, row := range rows {
		w, err := Compile(row)
		if err != nil {
			if errors.Is(err, ErrInvalidWindow) {
				log.Printf("maintenance: skipping window for monitor %d: %v", monitorID, err)
				continue
			}
			return false, err
		}
		if w.ActiveAt(now) {
			return true, nil
		}
	}

	return false, nil
}

// ActiveWindows returns every compiled window among rows that is in effect
// at now. It is used for public listings.
func ActiveWindows(rows []models.Maintenance, now time.Time) []Window {
	var active []Window
	for _, row := range rows {
		w, err := Compile(row)
		if err != nil {
			log.Printf("maintenance: skipping window: %v", err)
			continue
		}
		if w.ActiveAt(now) {
			active = append(active, w)
		}
	}
	return active
}
