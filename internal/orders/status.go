package orders

type Status string

const (
	StatusCart      Status = "cart" // reserved, never set on creation
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Trigger names the action that moves an order between statuses.
type Trigger string

const (
	TriggerAdminAccept    Trigger = "admin_accept"
	TriggerAdminReject    Trigger = "admin_reject"
	TriggerPaymentSuccess Trigger = "payment_success"
	TriggerPaymentFail    Trigger = "payment_fail"
	TriggerPaymentCancel  Trigger = "payment_cancel"
)

var validNext = map[Status]map[Trigger]Status{
	StatusConfirmed: {
		TriggerAdminAccept: StatusAccepted,
		TriggerAdminReject: StatusDeclined,
	},
	StatusPending: {
		TriggerAdminAccept:    StatusAccepted,
		TriggerAdminReject:    StatusDeclined,
		TriggerPaymentSuccess: StatusAccepted,
		TriggerPaymentFail:    StatusFailed,
		TriggerPaymentCancel:  StatusCancelled,
	},
	StatusCart:      {},
	StatusAccepted:  {},
	StatusDeclined:  {},
	StatusCancelled: {},
	StatusFailed:    {},
}

// Next returns the status reached from `from` by trigger t.
func Next(from Status, t Trigger) (Status, bool) {
	to, ok := validNext[from][t]
	return to, ok
}

// HoldsStock reports whether an order in s has had its units taken out of stock
// and not yet given back.
func (s Status) HoldsStock() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal statuses accept no further triggers.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Deletable: everything except accepted orders may be removed.
func (s Status) Deletable() bool { return s != StatusAccepted }

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Restocks reports whether entering s gives the order's units back to stock.
func (s Status) Restocks() bool {
	return s == StatusDeclined || s == StatusCancelled || s == StatusFailed
}
