package domain

import "errors"

// Pipeline failure kinds. None of them is fatal to the process.
var (
	ErrFeedUnavailable          = errors.New("feed unavailable")
	ErrGeoLookupFailed          = errors.New("geo lookup failed")
	ErrChannelUnreachable       = errors.New("channel unreachable")
	ErrChannelSendFailed        = errors.New("channel send failed")
	ErrDirectNotificationFailed = errors.New("direct notification failed")
)

// Command and settings failures, reported back to the user.
var (
	ErrInvalidConfigValue    = errors.New("invalid config value")
	ErrNotPermitted          = errors.New("not permitted")
	ErrInvalidCity           = errors.New("invalid city name")
	ErrNotACity              = errors.New("location is not a city")
	ErrDuplicateSubscription = errors.New("subscription already exists")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
)
