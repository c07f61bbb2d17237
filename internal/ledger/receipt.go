package ledger

// Receipt is the outcome of a submitted ledger transaction. The token
// chaincode legitimately commits transactions without returning a usable
// identifier, so "no receipt" is a first-class value rather than an empty
// string scattered through callers.
type Receipt struct {
	id string
}

func ReceiptWithID(id string) Receipt {
	return Receipt{id: id}
}

func Unconfirmed() Receipt {
	return Receipt{}
}

// Confirmed reports whether the ledger handed back an identifier. An
// unconfirmed receipt is NOT a failure; callers verify by balance delta.
func (r Receipt) Confirmed() bool {
	return r.id != ""
}

func (r Receipt) ID() string {
	return r.id
}

func (r Receipt) String() string {
	if r.id == "" {
		return "<unconfirmed>"
	}
	return r.id
}
