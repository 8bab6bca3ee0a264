package enums

import "fmt"

// CourierState is the courier agent's local availability state. It is a
// liveness guard enforced by the agent, never persisted to the store.
type CourierState string

const (
	CourierAvailable  CourierState = "available"
	CourierBidding    CourierState = "bidding"
	CourierDelivering CourierState = "delivering"
)

var validCourierStates = []CourierState{
	CourierAvailable,
	CourierBidding,
	CourierDelivering,
}

// String implements fmt.Stringer.
func (s CourierState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CourierState.
func (s CourierState) IsValid() bool {
	for _, candidate := range validCourierStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCourierState converts raw input into a CourierState.
func ParseCourierState(value string) (CourierState, error) {
	for _, candidate := range validCourierStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid courier state %q", value)
}
