package settlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	apperrors "github.com/frahmantamala/wallet-settlement/internal"
	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
)

// Supported gateway payload shapes.
const (
	GatewayDummy     = "dummy"
	GatewayCashfree  = "cashfree"
	GatewayInstamojo = "instamojo"
)

// ErrIgnoredStatus signals an event whose gateway status is not a final
// success. The webhook must acknowledge it with 200 and do nothing.
var ErrIgnoredStatus = errors.New("gateway status does not indicate final success")

// Instamojo has no order id field; it is embedded in the free-text purpose.
var instamojoOrderPattern = regexp.MustCompile(`Order-([a-f0-9-]+)`)

// Normalize maps a gateway-specific webhook payload to the canonical
// settlement request. Unknown gateways and unparseable payloads are rejected;
// non-success statuses return ErrIgnoredStatus.
func Normalize(gateway string, payload []byte) (*Request, error) {
	switch gateway {
	case GatewayDummy:
		return parseDummy(payload)
	case GatewayCashfree:
		return parseCashfree(payload)
	case GatewayInstamojo:
		return parseInstamojo(payload)
	default:
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unknown payment gateway %q", gateway), apperrors.ErrCodeUnknownGateway)
	}
}

type dummyPayload struct {
	OrderID     string      `json:"orderId"`
	OrderStatus string      `json:"orderStatus"`
	OrderAmount json.Number `json:"orderAmount"`
	PaymentID   string      `json:"paymentId"`
	UserID      string      `json:"userId"`
	Amount      json.Number `json:"amount"`
}

func parseDummy(payload []byte) (*Request, error) {
	var p dummyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apperrors.NewValidationError("invalid webhook payload", apperrors.ErrCodeValidationFailed).WithCause(err)
	}

	if p.OrderStatus != "PAID" {
		return nil, ErrIgnoredStatus
	}

	if p.UserID == "" {
		return nil, apperrors.NewValidationFieldError("userId", "userId is required in webhook payload", apperrors.ErrCodeValidationFailed)
	}

	amount, err := parseAmount(p.Amount, p.OrderAmount)
	if err != nil {
		return nil, err
	}

	requestID := p.OrderID
	if requestID == "" {
		requestID = "DEPOSIT-" + uuid.NewString()
	}
	paymentRef := p.PaymentID
	if paymentRef == "" {
		paymentRef = "PAYMENT-" + uuid.NewString()
	}

	return &Request{
		RequestID:        requestID,
		UserID:           p.UserID,
		Amount:           amount,
		Direction:        settlement.DirectionDeposit,
		PaymentReference: paymentRef,
	}, nil
}

type cashfreePayload struct {
	OrderID     string      `json:"orderId"`
	OrderAmount json.Number `json:"orderAmount"`
	OrderStatus string      `json:"orderStatus"`
	PaymentID   string      `json:"paymentId"`
	UserID      string      `json:"userId"`
}

func parseCashfree(payload []byte) (*Request, error) {
	var p cashfreePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apperrors.NewValidationError("invalid webhook payload", apperrors.ErrCodeValidationFailed).WithCause(err)
	}

	if p.OrderStatus != "PAID" {
		return nil, ErrIgnoredStatus
	}

	if p.OrderID == "" {
		return nil, apperrors.NewValidationFieldError("orderId", "orderId is required", apperrors.ErrCodeValidationFailed)
	}
	if p.UserID == "" {
		return nil, apperrors.NewValidationFieldError("userId", "userId is required in webhook payload", apperrors.ErrCodeValidationFailed)
	}

	amount, err := parseAmount(p.OrderAmount)
	if err != nil {
		return nil, err
	}

	return &Request{
		RequestID:        p.OrderID,
		UserID:           p.UserID,
		Amount:           amount,
		Direction:        settlement.DirectionDeposit,
		PaymentReference: p.PaymentID,
	}, nil
}

type instamojoPayload struct {
	PaymentID string      `json:"payment_id"`
	Status    string      `json:"status"`
	Amount    json.Number `json:"amount"`
	Purpose   string      `json:"purpose"`
	UserID    string      `json:"userId"`
}

func parseInstamojo(payload []byte) (*Request, error) {
	var p instamojoPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apperrors.NewValidationError("invalid webhook payload", apperrors.ErrCodeValidationFailed).WithCause(err)
	}

	if p.Status != "Credit" {
		return nil, ErrIgnoredStatus
	}

	match := instamojoOrderPattern.FindStringSubmatch(p.Purpose)
	if match == nil {
		return nil, apperrors.NewValidationFieldError("purpose", "purpose does not reference an order", apperrors.ErrCodeValidationFailed)
	}
	if p.UserID == "" {
		return nil, apperrors.NewValidationFieldError("userId", "userId is required in webhook payload", apperrors.ErrCodeValidationFailed)
	}

	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}

	return &Request{
		RequestID:        match[1],
		UserID:           p.UserID,
		Amount:           amount,
		Direction:        settlement.DirectionDeposit,
		PaymentReference: p.PaymentID,
	}, nil
}

// parseAmount takes the first non-empty candidate and converts it to whole
// token units. Fractional currency amounts are truncated; zero and negative
// amounts are rejected.
func parseAmount(candidates ...json.Number) (int64, error) {
	for _, c := range candidates {
		s := c.String()
		if s == "" {
			continue
		}

		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			if v <= 0 {
				return 0, apperrors.NewValidationError("amount must be a positive number", apperrors.ErrCodeInvalidAmount)
			}
			return v, nil
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, apperrors.NewValidationError(fmt.Sprintf("unparseable amount %q", s), apperrors.ErrCodeInvalidAmount)
		}
		v := int64(f)
		if v <= 0 {
			return 0, apperrors.NewValidationError("amount must be a positive number", apperrors.ErrCodeInvalidAmount)
		}
		return v, nil
	}
	return 0, apperrors.NewValidationError("amount is required", apperrors.ErrCodeInvalidAmount)
}
