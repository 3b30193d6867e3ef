// Package notify formats and dispatches outbound SMS-style notifications.
// Delivery is fire and forget: the USSD flow never waits on a gateway.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// EventType names one notification template.
type EventType string

const (
	EventConfirmation  EventType = "confirmation"
	EventProviderAlert EventType = "provider_alert"
	EventCompletion    EventType = "completion"
)

// Event carries everything a template needs. Unused fields stay zero.
type Event struct {
	Type         EventType
	Destination  string
	Reference    string
	ResourceType string
	ResourceName string
	Provider     string
	Location     string
	Contact      string
	MaskedCaller string
	Cost         string
	CreatedAt    time.Time
}

// Message renders the SMS body for the event.
func (e Event) Message() string {
	switch e.Type {
	case EventConfirmation:
		return fmt.Sprintf("EMERGENCY REQUEST CONFIRMED\n"+
			"Ref: %s\n"+
			"Service: %s\n"+
			"Provider: %s\n"+
			"Location: %s\n"+
			"Contact: %s\n"+
			"Cost: %s\n"+
			"Show this reference to the provider.",
			e.Reference, e.ResourceType, e.Provider, e.Location, e.Contact, e.Cost)
	case EventProviderAlert:
		return fmt.Sprintf("NEW EMERGENCY REQUEST\n"+
			"Ref: %s\n"+
			"Service: %s\n"+
			"Location: %s\n"+
			"Contact: %s\n"+
			"Time: %s\n"+
			"Please confirm service delivery with reference number.",
			e.Reference, e.ResourceType, e.Location, e.MaskedCaller,
			e.CreatedAt.Format("15:04 02/01/2006"))
	case EventCompletion:
		return fmt.Sprintf("SERVICE COMPLETED\n"+
			"Ref: %s\n"+
			"Provider: %s\n"+
			"Thank you for using Emergency Response System.\n"+
			"Stay safe!",
			e.Reference, e.Provider)
	default:
		return ""
	}
}

// MaskPhone anonymizes a caller's number for provider-facing messages.
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return "****"
	}
	return phone[:4] + "****" + phone[len(phone)-4:]
}

// Notifier delivers one event. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Dispatch sends the event on its own goroutine so callers never block
// on delivery.
func Dispatch(n Notifier, e Event) {
	if n == nil {
		return
	}
	go n.Notify(context.Background(), e)
}

// LogNotifier writes notifications to the structured log. It stands in
// for an SMS gateway in environments without one configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs instead of sending.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, e Event) {
	n.logger.Info().
		Str("type", string(e.Type)).
		Str("destination", e.Destination).
		Str("reference", e.Reference).
		Str("message", e.Message()).
		Msg("notification dispatched")
}
