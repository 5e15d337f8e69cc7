package redisx

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "champagne:v1"

func KeyShowSnapshot(id uuid.UUID) string {
	return fmt.Sprintf("%s:show:%s:snapshot", ns, id)
}

func KeyShowAvailability(id uuid.UUID) string {
	return fmt.Sprintf("%s:show:%s:availability", ns, id)
}

func KeyTicketSnapshot(id uuid.UUID) string {
	return fmt.Sprintf("%s:ticket:%s:snapshot", ns, id)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

// PrefixRateLimit is the limiter key prefix for one scope; the limiter
// appends the per-caller suffix itself.
func PrefixRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelStateChanged() string {
	return ns + ":state:changed"
}
