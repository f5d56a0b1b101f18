package event

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
)

// NewEventID derives an identifier from component, message, and capture
// time. Collision-tolerant, not cryptographic: two identical failures in
// the same nanosecond share an ID, which is acceptable for reporting.
func NewEventID(component, message string, t time.Time) string {
	h := fnv.New32a()
	h.Write([]byte(component))
	h.Write([]byte{0})
	h.Write([]byte(message))
	return fmt.Sprintf("e-%08x-%x", h.Sum32(), t.UnixNano())
}

// NewSessionID generates a session identifier, stable for the lifetime of
// one host session.
func NewSessionID() string {
	return "sess-" + uuid.NewString()
}

// NewCorrelationID generates an identifier for a correlation record.
func NewCorrelationID(t time.Time) string {
	return fmt.Sprintf("corr-%x", t.UnixNano())
}

// UTCNowISO returns the current UTC time in ISO format with Z suffix.
func UTCNowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
