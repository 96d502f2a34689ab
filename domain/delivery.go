package domain

type DeliveryStatus string

const (
	// Delivered means every live connection of the target accepted the push.
	Delivered DeliveryStatus = "delivered"
	// PartiallyDelivered means at least one connection accepted and at least one was abandoned.
	PartiallyDelivered DeliveryStatus = "partially_delivered"
	// Undelivered means durably stored but not pushed to any live connection.
	Undelivered DeliveryStatus = "undelivered"
)

// DeliveryOutcome is informational. Persistence is the source of truth.
type DeliveryOutcome struct {
	Status    DeliveryStatus
	Attempted int
	Succeeded int
	Abandoned int
}

func NewDeliveryOutcome(attempted, succeeded int) DeliveryOutcome {
	outcome := DeliveryOutcome{
		Attempted: attempted,
		Succeeded: succeeded,
		Abandoned: attempted - succeeded,
	}
	switch {
	case succeeded == 0:
		outcome.Status = Undelivered
	case succeeded < attempted:
		outcome.Status = PartiallyDelivered
	default:
		outcome.Status = Delivered
	}
	return outcome
}

func (o DeliveryOutcome) Reached() bool { return o.Succeeded > 0 }
