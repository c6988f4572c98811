package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// EventDetailsURL is the canonical per-event page, keyed by source id.
	EventDetailsURL = "https://www.seismicportal.eu/eventdetails.html?unid="
	// MoreEventsURL lists recent events from the same portal.
	MoreEventsURL = "https://www.seismicportal.eu/"
	// EveryoneMarker escalates an alert to every member of the chat.
	EveryoneMarker = "@everyone"
)

// Alert is the rendered notification for one event. Content carries the
// escalation mentions and is only used for the broadcast channel; the
// remaining fields form the body shared by channel and direct messages.
type Alert struct {
	Content   string
	SourceID  string
	Time      time.Time
	Location  string
	Authority string
	Magnitude float64
	Lat       float64
	Lon       float64
	DetailURL string
	MoreURL   string
}

// BuildAlert renders an event for a tenant. The role mention and the
// everyone marker are independent of each other.
func BuildAlert(event SeismicEvent, loc Location, cfg TenantConfig) Alert {
	var mentions []string
	if cfg.PingRole != nil && strings.TrimSpace(*cfg.PingRole) != "" {
		mentions = append(mentions, mentionOf(*cfg.PingRole))
	}
	if cfg.EveryoneThreshold != nil && event.Magnitude >= *cfg.EveryoneThreshold {
		mentions = append(mentions, EveryoneMarker)
	}

	display := loc.Display
	if display == "" {
		display = UnknownLocation
	}

	return Alert{
		Content:   strings.Join(mentions, " "),
		SourceID:  event.SourceID,
		Time:      event.Time,
		Location:  display,
		Authority: event.Authority,
		Magnitude: event.Magnitude,
		Lat:       event.Lat,
		Lon:       event.Lon,
		DetailURL: EventDetailsURL + event.SourceID,
		MoreURL:   MoreEventsURL,
	}
}

// Coordinates formats the event position as "lat, lon".
func (a Alert) Coordinates() string {
	return fmt.Sprintf("%.4f, %.4f", a.Lat, a.Lon)
}

func mentionOf(role string) string {
	role = strings.TrimSpace(role)
	if strings.HasPrefix(role, "@") {
		return role
	}
	return "@" + role
}
