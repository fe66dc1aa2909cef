package api

import (
	"fmt"
	"html"
	"log"
	"net/http"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// HandleStatusBadge generates a status badge SVG from the latest heartbeat
func HandleStatusBadge(st Store, heartbeats HeartbeatReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := loadMonitor(w, r, st)
		if m == nil {
			return
		}

		hb, err := heartbeats.PreviousHeartbeat(r.Context(), m.ID)
		if err != nil {
			log.Printf("api: status badge for monitor %d: %v", m.ID, err)
		}

		statusText, color := "unknown", "gray"
		if hb != nil {
			switch hb.Status {
			case models.StatusUp:
				statusText, color = "up", "brightgreen"
			case models.StatusDown:
				statusText, color = "down", "red"
			case models.StatusPending:
				statusText, color = "pending", "orange"
			case models.StatusMaintenance:
				statusText, color = "maintenance", "blue"
			}
		}

		writeBadge(w, "status", statusText, color)
	}
}

// HandleUptimeBadge generates an uptime percentage badge for ?hours=
func HandleUptimeBadge(st Store, reader UptimeReader) http.HandlerFunc {
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

		uptimeText, color := "N/A", "gray"
		stats, err := reader.Stats(r.Context(), hours, m.ID)
		if err != nil {
			log.Printf("api: uptime badge for monitor %d: %v", m.ID, err)
		} else if stats.Uptime != nil {
			pct := *stats.Uptime * 100
			uptimeText = fmt.Sprintf("%.2f%%", pct)
			color = uptimeColor(pct)
		}

		writeBadge(w, fmt.Sprintf("uptime (%dh)", hours), uptimeText, color)
	}
}

// HandlePingBadge generates an average response time badge for ?hours=
func HandlePingBadge(st Store, reader UptimeReader) http.HandlerFunc {
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

		pingText, color := "N/A", "gray"
		stats, err := reader.Stats(r.Context(), hours, m.ID)
		if err != nil {
			log.Printf("api: ping badge for monitor %d: %v", m.ID, err)
		} else if stats.AvgPing != nil {
			avg := *stats.AvgPing
			pingText = fmt.Sprintf("%.0fms", avg)
			switch {
			case avg < 100:
				color = "brightgreen"
			case avg < 300:
				color = "green"
			case avg < 500:
				color = "yellow"
			case avg < 1000:
				color = "orange"
			default:
				color = "red"
			}
		}

		writeBadge(w, "response time", pingText, color)
	}
}

func uptimeColor(pct float64) string {
	switch {
	case pct >= 99.9:
		return "brightgreen"
	case pct >= 99.0:
		return "green"
	case pct >= 95.0:
		return "yellowgreen"
	case pct >= 90.0:
		return "yellow"
	default:
		return "red"
	}
}

func writeBadge(w http.ResponseWriter, label, message, color string) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write([]byte(generateBadgeSVG(label, message, color)))
}

var badgeColors = map[string]string{
	"brightgreen": "#4c1",
	"green":       "#97ca00",
	"yellowgreen": "#a4a61d",
	"yellow":      "#dfb317",
	"orange":      "#fe7d37",
	"red":         "#e05d44",
	"blue":        "#007ec6",
	"gray":        "#555",
}

// generateBadgeSVG generates a shields.io style badge
func generateBadgeSVG(label, message, color string) string {
	hexColor, ok := badgeColors[color]
	if !ok {
		hexColor = badgeColors["gray"]
	}

	labelWidth := len(label)*6 + 10
	messageWidth := len(message)*6 + 10
	totalWidth := labelWidth + messageWidth

	label = html.EscapeString(label)
	message = html.EscapeString(message)

	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="20">
  <mask id="a">
    <rect width="%d" height="20" rx="3" fill="#fff"/>
  </mask>
  <g mask="url(#a)">
    <path fill="#555" d="M0 0h%dv20H0z"/>
    <path fill="%s" d="M%d 0h%dv20H%dz"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="DejaVu Sans,Verdana,Geneva,sans-serif" font-size="11">
    <text x="%d" y="14">%s</text>
    <text x="%d" y="14">%s</text>
  </g>
</svg>`,
		totalWidth,
		totalWidth,
		labelWidth, hexColor, labelWidth, messageWidth, labelWidth,
		labelWidth/2, label,
		labelWidth+messageWidth/2, message,
	)
}
