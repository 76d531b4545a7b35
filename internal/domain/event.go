package domain

// WithdrawalScope says whether a removal targeted this worker or the job
// disappeared for everyone.
type WithdrawalScope string

const (
	WithdrawalTargeted  WithdrawalScope = "TARGETED"
	WithdrawalBroadcast WithdrawalScope = "BROADCAST"
)

// Withdrawal is a normalized offer-withdrawn or offer-broadcast-removed signal.
type Withdrawal struct {
	OfferID string
	Reason  string
	Scope   WithdrawalScope
}

// Notice is a non-lifecycle informational event, passed straight to the
// notification side-effect port.
type Notice struct {
	Title string
	Body  string
}
