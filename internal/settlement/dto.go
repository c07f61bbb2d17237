package settlement

import (
	"encoding/json"

	errors "github.com/frahmantamala/wallet-settlement/internal"
	"github.com/frahmantamala/wallet-settlement/internal/core/common/validation"
	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
)

// Request is the canonical settlement request every gateway payload is
// normalized into. RequestID is the idempotency key.
type Request struct {
	RequestID        string       `json:"request_id"`
	UserID           string       `json:"user_id"`
	Amount           int64        `json:"amount"`
	Direction        string       `json:"direction"`
	PaymentReference string       `json:"payment_reference"`
	BankDetails      *BankDetails `json:"bank_details,omitempty"`
}

// BankDetails are opaque payout-adapter parameters, present only for
// withdrawals.
type BankDetails struct {
	AccountNumber string `json:"bank_account,omitempty"`
	IFSC          string `json:"bank_ifsc,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	AccountHolder string `json:"account_holder_name,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
}

func (r *Request) Validate() error {
	validator := validation.NewValidator()

	validator.Field("request_id", r.RequestID).Required()
	validator.Field("user_id", r.UserID).Required()
	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("direction", r.Direction).Required().
		OneOf([]string{settlement.DirectionDeposit, settlement.DirectionWithdrawal}, errors.ErrCodeValidationFailed)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (r *Request) bankDetailsJSON() json.RawMessage {
	if r.BankDetails == nil {
		return nil
	}
	raw, err := json.Marshal(r.BankDetails)
	if err != nil {
		return nil
	}
	return raw
}

// Outcome is what the intake boundary reports back to the webhook caller.
type Outcome struct {
	RequestID     string `json:"request_id"`
	Status        string `json:"status"`
	Direction     string `json:"direction"`
	LedgerTxRef   string `json:"ledger_tx_ref,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Processing    bool   `json:"processing,omitempty"`
}

func outcomeFromRecord(rec *settlement.Record, duplicate bool) *Outcome {
	out := &Outcome{
		RequestID: rec.ID,
		Status:    rec.Status,
		Direction: rec.Direction,
		Duplicate: duplicate,
	}
	if rec.LedgerTxRef != nil {
		out.LedgerTxRef = *rec.LedgerTxRef
	}
	if rec.FailureReason != nil {
		out.FailureReason = *rec.FailureReason
	}
	return out
}
