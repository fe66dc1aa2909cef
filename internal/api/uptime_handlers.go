package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

const maxWindowHours = 24 * 365

// windowHours reads the hours query parameter, defaulting to 24.
func windowHours(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return 24, true
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 1 || hours > maxWindowHours {
		return 0, false
	}
	return hours, true
}

// HandleGetMonitorUptime returns uptime statistics for a monitor
func HandleGetMonitorUptime(st Store, reader UptimeReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours, ok := windowHours(r)
		if !ok {
			http.Error(w, "Invalid hours", http.StatusBadRequest)
			return
		}

		m := loadMonitor(w, r, st)
		if m == nil {
			return
		}

		stats, err := reader.Stats(r.Context(), hours, m.ID)
		if err != nil {
			log.Printf("api: failed to calculate uptime of monitor %d: %v", m.ID, err)
			http.Error(w, "Failed to calculate uptime", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

// HandleGetMonitorHourlyUptime returns the stored hourly statistics of
// the last hours hours.
func HandleGetMonitorHourlyUptime(st Store, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours, ok := windowHours(r)
		if !ok {
			http.Error(w, "Invalid hours", http.StatusBadRequest)
			return
		}

		m := loadMonitor(w, r, st)
		if m == nil {
			return
		}

		end := timewindow.HourStart(now()).Add(time.Hour)
		start := end.Add(-time.Duration(hours) * time.Hour)

		stats, err := st.StatsHourly(r.Context(), m.ID, start, end)
		if err != nil {
			log.Printf("api: failed to load hourly stats of monitor %d: %v", m.ID, err)
			http.Error(w, "Failed to fetch hourly uptime", http.StatusInternalServerError)
			return
		}
		if stats == nil {
			stats = []models.StatHourly{}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"monitor_id": m.ID,
			"hours":      stats,
		})
	}
}
