package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// renderChannel formats the broadcast message: escalation mentions followed
// by the alert body.
func renderChannel(alert domain.Alert) string {
	body := renderBody(alert)
	if alert.Content == "" {
		return body
	}
	return html.EscapeString(alert.Content) + "\n" + body
}

// renderDirect formats the message sent to a matched subscriber.
func renderDirect(alert domain.Alert) string {
	return "🔔 <b>An earthquake was reported near a city you follow</b>\n" + renderBody(alert)
}

func renderBody(alert domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌍 <b>Earthquake M%.1f</b>\n", alert.Magnitude)
	if !alert.Time.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", alert.Time.UTC().Format(timeLayout))
	}
	fmt.Fprintf(&b, "Event: <code>%s</code>\n", html.EscapeString(alert.SourceID))
	fmt.Fprintf(&b, "Location: %s\n", html.EscapeString(alert.Location))
	if alert.Authority != "" {
		fmt.Fprintf(&b, "Source: %s\n", html.EscapeString(alert.Authority))
	}
	fmt.Fprintf(&b, "Magnitude: %.1f\n", alert.Magnitude)
	fmt.Fprintf(&b, "Coordinates: %s\n", alert.Coordinates())
	fmt.Fprintf(&b, "<a href=\"%s\">Event details</a> | <a href=\"%s\">More events</a>",
		html.EscapeString(alert.DetailURL), html.EscapeString(alert.MoreURL))
	return b.String()
}
