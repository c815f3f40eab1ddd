package domain

// FlowState is the checkout screen state of one terminal.
type FlowState string

const (
	FlowStateBrowsing    FlowState = "BROWSING"
	FlowStateItemAdjust  FlowState = "ITEM_ADJUST"
	FlowStatePaymentOpen FlowState = "PAYMENT_OPEN"
	FlowStateSettled     FlowState = "SETTLED"
)

var allowedTransitions = map[FlowState][]FlowState{
	FlowStateBrowsing:    {FlowStateItemAdjust, FlowStatePaymentOpen},
	FlowStateItemAdjust:  {FlowStateBrowsing},
	FlowStatePaymentOpen: {FlowStateBrowsing, FlowStateSettled},
	FlowStateSettled:     {FlowStateBrowsing},
}

func CanTransitionTo(from, to FlowState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// String representation (for logging)
func (s FlowState) String() string {
	return string(s)
}
