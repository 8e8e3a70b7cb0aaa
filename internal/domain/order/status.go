package order

// Status is the order lifecycle state. Checkout only drives the
// awaits_payment -> pending transition; the later states belong to
// order management.
type Status string

const (
	StatusAwaitsPayment Status = "awaits_payment"
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusCancelled     Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusAwaitsPayment: {StatusPending: true, StatusCancelled: true},
	StatusPending:       {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing:    {StatusShipped: true, StatusCancelled: true},
	StatusShipped:       {StatusDelivered: true},
	StatusDelivered:     {},
	StatusCancelled:     {},
}

// CanTransition reports whether moving from one status to another is allowed.
// Transitions are monotonic; there is no way back to an earlier state.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
