package subscription

import "strings"

// EventMatches returns true if the event name matches a subscription pattern.
// Patterns can be exact ("appointment.booked") or wildcard: "appointment.*"
// matches any action on appointments, "*.cancelled" matches cancellations of
// any entity.
func EventMatches(pattern, eventName string) bool {
	if pattern == eventName {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".action"
		return strings.HasSuffix(eventName, suffix)
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := pattern[:len(pattern)-1] // "entity."
		return strings.HasPrefix(eventName, prefix)
	}
	return false
}
