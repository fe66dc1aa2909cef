package api

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fuomag9/beatkeeper/internal/maintenance"
	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/monitor"
	"github.com/fuomag9/beatkeeper/internal/store"
	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

// loadMonitor resolves the {id} URL parameter. It writes the error
// response itself and returns nil when the monitor cannot be used.
func loadMonitor(w http.ResponseWriter, r *http.Request, st Store) *models.Monitor {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "Invalid monitor ID", http.StatusBadRequest)
		return nil
	}

	m, err := st.FindMonitor(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Monitor not found", http.StatusNotFound)
		return nil
	}
	if err != nil {
		log.Printf("api: failed to load monitor %d: %v", id, err)
		http.Error(w, "Failed to fetch monitor", http.StatusInternalServerError)
		return nil
	}
	return m
}

// HandlePush records a result reported by a push monitor's target.
// Query parameters: status (up|down, default up), msg (default OK) and
// ping in milliseconds.
func HandlePush(st Store, pusher Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		m, err := st.FindMonitorByPushToken(r.Context(), token)
		if err != nil || !m.Active {
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				log.Printf("api: push token lookup failed: %v", err)
			}
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"ok": false, "msg": "Monitor not found or not active."})
			return
		}

		q := r.URL.Query()
		msg := q.Get("msg")
		if msg == "" {
			msg = "OK"
		}
		ping := 0
		if raw := q.Get("ping"); raw != "" {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil || f < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "msg": "Invalid ping value."})
				return
			}
			ping = int(math.Round(f))
		}

		var result monitor.Result
		switch strings.ToLower(q.Get("status")) {
		case "", "up":
			result = monitor.Up(ping, msg)
		case "down":
			result = monitor.Down(ping, msg)
		default:
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "msg": "Status must be up or down."})
			return
		}

		if _, err := pusher.Push(r.Context(), m.ID, result); err != nil {
			if errors.Is(err, monitor.ErrUnknownMonitor) {
				writeJSON(w, http.StatusNotFound, map[string]interface{}{"ok": false, "msg": "Monitor not found or not active."})
				return
			}
			log.Printf("api: push for monitor %d failed: %v", m.ID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"ok": false, "msg": "Failed to record heartbeat."})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

// HandleGetLatestHeartbeat returns the newest heartbeat of a monitor, or
// null when it has none.
func HandleGetLatestHeartbeat(st Store, heartbeats HeartbeatReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := loadMonitor(w, r, st)
		if m == nil {
			return
		}

		hb, err := heartbeats.PreviousHeartbeat(r.Context(), m.ID)
		if err != nil {
			log.Printf("api: failed to load latest heartbeat of monitor %d: %v", m.ID, err)
			http.Error(w, "Failed to fetch heartbeat", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"heartbeat": hb})
	}
}

// HandleGetMonitorMaintenance reports whether a monitor is under
// maintenance and lists its active windows in the requested timezone,
// naming the ones in effect right now.
func HandleGetMonitorMaintenance(st Store, checker MaintenanceChecker, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := timewindow.LoadLocation(r.URL.Query().Get("timezone"))
		if err != nil {
			http.Error(w, "Invalid timezone", http.StatusBadRequest)
			return
		}

		m := loadMonitor(w, r, st)
		if m == nil {
			return
		}

		rows, err := st.FindMaintenanceWindowsFor(r.Context(), m.ID)
		if err != nil {
			log.Printf("api: failed to load maintenance of monitor %d: %v", m.ID, err)
			http.Error(w, "Failed to fetch maintenance", http.StatusInternalServerError)
			return
		}

		at := now()
		under, err := checker.IsUnderMaintenance(r.Context(), m.ID, at)
		if err != nil {
			log.Printf("api: failed to evaluate maintenance of monitor %d: %v", m.ID, err)
			http.Error(w, "Failed to evaluate maintenance", http.StatusInternalServerError)
			return
		}

		windows := make([]maintenance.PublicWindow, 0, len(rows))
		for _, row := range rows {
			windows = append(windows, maintenance.ToPublic(row, loc, at))
		}
		inEffect := []int{}
		for _, win := range maintenance.ActiveWindows(rows, at) {
			inEffect = append(inEffect, win.ID)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"monitor_id":        m.ID,
			"under_maintenance": under,
			"windows":           windows,
			"active_window_ids": inEffect,
		})
	}
}
