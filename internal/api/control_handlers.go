package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fuomag9/beatkeeper/internal/maintenance"
	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/monitor"
	"github.com/fuomag9/beatkeeper/internal/store"
	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

// loadOwnedMonitor is loadMonitor restricted to monitors of the
// authenticated owner. Other owners' monitors are reported as missing.
func loadOwnedMonitor(w http.ResponseWriter, r *http.Request, st Store) *models.Monitor {
	m := loadMonitor(w, r, st)
	if m == nil {
		return nil
	}
	if m.UserID != ownerFromContext(r.Context()) {
		http.Error(w, "Monitor not found", http.StatusNotFound)
		return nil
	}
	return m
}

// HandleCreateMonitor creates a monitor for the authenticated owner and
// starts checking it right away when it is active.
func HandleCreateMonitor(st Store, control MonitorControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var mon models.Monitor
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&mon); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		mon.ID = 0
		mon.UserID = ownerFromContext(r.Context())
		mon.CreatedAt, mon.UpdatedAt = time.Time{}, time.Time{}

		// Set defaults
		if mon.Interval == 0 {
			mon.Interval = 60
		}
		if mon.Timeout == 0 {
			mon.Timeout = 30
		}
		if mon.Type == "push" && (mon.PushToken == nil || *mon.PushToken == "") {
			token := strings.ReplaceAll(uuid.NewString(), "-", "")
			mon.PushToken = &token
		}
		if mon.Name == "" {
			http.Error(w, "Name is required", http.StatusBadRequest)
			return
		}
		if mon.Interval < 0 || mon.Timeout < 0 || mon.RetryInterval < 0 || mon.MaxRetries < 0 {
			http.Error(w, "Intervals, timeout and retries must not be negative", http.StatusBadRequest)
			return
		}

		if err := control.Validate(&mon); err != nil {
			http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
			return
		}

		if err := st.CreateMonitor(r.Context(), &mon); err != nil {
			log.Printf("api: failed to create monitor: %v", err)
			http.Error(w, "Failed to create monitor", http.StatusInternalServerError)
			return
		}

		if mon.Active {
			started := mon
			if err := control.Update(&started); err != nil {
				log.Printf("api: failed to schedule monitor %d: %v", mon.ID, err)
			}
		}

		writeJSON(w, http.StatusCreated, mon)
	}
}

// HandleSetMonitorActive pauses or resumes a monitor. The scheduler picks
// the change up immediately; should that fail, the monitor sync job
// applies it on its next pass.
func HandleSetMonitorActive(st Store, control MonitorControl, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := loadOwnedMonitor(w, r, st)
		if m == nil {
			return
		}

		if err := st.SetMonitorActive(r.Context(), m.ID, active); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "Monitor not found", http.StatusNotFound)
				return
			}
			log.Printf("api: failed to set monitor %d active=%t: %v", m.ID, active, err)
			http.Error(w, "Failed to update monitor", http.StatusInternalServerError)
			return
		}

		updated := *m
		updated.Active = active
		if err := control.Update(&updated); err != nil {
			log.Printf("api: failed to apply monitor %d to the scheduler: %v", m.ID, err)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "active": active})
	}
}

// HandleTriggerCheck runs an out-of-schedule check of an active monitor.
// The result arrives like any other heartbeat.
func HandleTriggerCheck(st Store, control MonitorControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := loadOwnedMonitor(w, r, st)
		if m == nil {
			return
		}

		err := control.Trigger(m.ID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, map[string]interface{}{"ok": true})
		case errors.Is(err, monitor.ErrBusy):
			writeJSON(w, http.StatusConflict, map[string]interface{}{"ok": false, "msg": "A check is already running."})
		case errors.Is(err, monitor.ErrUnknownMonitor):
			writeJSON(w, http.StatusConflict, map[string]interface{}{"ok": false, "msg": "Monitor is not active."})
		default:
			log.Printf("api: failed to trigger check of monitor %d: %v", m.ID, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ok": false, "msg": "Checks are unavailable."})
		}
	}
}

type createMaintenanceRequest struct {
	maintenance.PublicWindow
	MonitorIDs []int `json:"monitorIds"`
}

// HandleCreateMaintenance stores a maintenance window given in the shape
// HandleGetMonitorMaintenance returns, with its time range and dates in
// the zone named by the timezone query parameter.
func HandleCreateMaintenance(st Store, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFromContext(r.Context())

		loc, err := timewindow.LoadLocation(r.URL.Query().Get("timezone"))
		if err != nil {
			http.Error(w, "Invalid timezone", http.StatusBadRequest)
			return
		}

		var req createMaintenanceRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Title == "" {
			http.Error(w, "Title is required", http.StatusBadRequest)
			return
		}

		for _, id := range req.MonitorIDs {
			m, err := st.FindMonitor(r.Context(), id)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				log.Printf("api: failed to load monitor %d: %v", id, err)
				http.Error(w, "Failed to fetch monitor", http.StatusInternalServerError)
				return
			}
			if m == nil || m.UserID != owner {
				http.Error(w, fmt.Sprintf("Unknown monitor %d", id), http.StatusBadRequest)
				return
			}
		}

		at := now()
		row, err := maintenance.FromPublic(req.PublicWindow, loc, at)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		row.ID = 0
		row.UserID = owner

		if _, err := maintenance.Compile(row); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := st.CreateMaintenance(r.Context(), &row, req.MonitorIDs...); err != nil {
			log.Printf("api: failed to create maintenance: %v", err)
			http.Error(w, "Failed to create maintenance", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, maintenance.ToPublic(row, loc, at))
	}
}
