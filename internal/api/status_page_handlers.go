package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fuomag9/beatkeeper/internal/store"
)

const maxStatusMonitors = 100

// HandleGetStatusHeartbeats returns the recent heartbeats and 24 hour
// uptime of the monitors listed in ?monitors=1,2,3.
func HandleGetStatusHeartbeats(reader UptimeReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := parseIDList(r.URL.Query().Get("monitors"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		snapshot, err := reader.Snapshot(r.Context(), ids)
		if err != nil {
			log.Printf("api: failed to build status snapshot: %v", err)
			http.Error(w, "Failed to fetch heartbeats", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"monitors": snapshot})
	}
}

// HandleGetPublicStatusPage returns a published status page with the
// snapshot of its monitors.
func HandleGetPublicStatusPage(st Store, reader UptimeReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		page, ids, err := st.FindStatusPage(r.Context(), slug)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Status page not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("api: failed to load status page %q: %v", slug, err)
			http.Error(w, "Failed to fetch status page", http.StatusInternalServerError)
			return
		}

		snapshot, err := reader.Snapshot(r.Context(), ids)
		if err != nil {
			log.Printf("api: failed to build snapshot for status page %q: %v", slug, err)
			http.Error(w, "Failed to fetch heartbeats", http.StatusInternalServerError)
			return
		}

		if ids == nil {
			ids = []int{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"page":        page,
			"monitor_ids": ids,
			"monitors":    snapshot,
		})
	}
}

func parseIDList(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("monitors is required")
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxStatusMonitors {
		return nil, errors.New("too many monitors")
	}

	ids := make([]int, 0, len(parts))
	seen := make(map[int]bool, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id <= 0 {
			return nil, errors.New("invalid monitor id " + strconv.Quote(part))
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
