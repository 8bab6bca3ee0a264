package enums

import "fmt"

// NotificationKind identifies the outcome a notification announces.
type NotificationKind string

const (
	NotificationCourierAssigned       NotificationKind = "COURIER_ASSIGNED"
	NotificationOrderPreparedInternal NotificationKind = "ORDER_PREPARED_INTERNAL"
	NotificationOrderDelivered        NotificationKind = "ORDER_DELIVERED"
	NotificationOrderRejected         NotificationKind = "ORDER_REJECTED"
	NotificationNoCourierAvailable    NotificationKind = "NO_COURIER_AVAILABLE"
)

var validNotificationKinds = []NotificationKind{
	NotificationCourierAssigned,
	NotificationOrderPreparedInternal,
	NotificationOrderDelivered,
	NotificationOrderRejected,
	NotificationNoCourierAvailable,
}

// String implements fmt.Stringer.
func (k NotificationKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known NotificationKind.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsTerminal reports whether observing this kind ends the customer's wait.
func (k NotificationKind) IsTerminal() bool {
	switch k {
	case NotificationOrderDelivered, NotificationOrderRejected, NotificationNoCourierAvailable:
		return true
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
