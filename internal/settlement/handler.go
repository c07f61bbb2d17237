package settlement

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	apperrors "github.com/frahmantamala/wallet-settlement/internal"
	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	"github.com/frahmantamala/wallet-settlement/internal/transport"
)

// Handler serves the non-webhook settlement surface: withdrawal processing,
// settlement lookup, and the ledger balance read.
type Handler struct {
	*transport.BaseHandler
	settlementService ServiceAPI
	logger            *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, settlementService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:       baseHandler,
		settlementService: settlementService,
		logger:            logger,
	}
}

type withdrawalRequest struct {
	RequestID         string `json:"request_id"`
	UserID            string `json:"user_id"`
	Amount            int64  `json:"amount"`
	AccountNumber     string `json:"bank_account,omitempty"`
	IFSC              string `json:"bank_ifsc,omitempty"`
	BankName          string `json:"bank_name,omitempty"`
	AccountHolderName string `json:"account_holder_name,omitempty"`
	UPIID             string `json:"upi_id,omitempty"`
}

// HandleProcessWithdrawal processes POST /withdrawals/process. The request id
// doubles as the idempotency key; callers that omit it get a generated one
// and lose redelivery protection.
func (h *Handler) HandleProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	var body withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Error("invalid withdrawal request", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.RequestID == "" {
		body.RequestID = "WITHDRAW-" + uuid.NewString()
		h.logger.Warn("withdrawal request without request_id, generated one",
			"request_id", body.RequestID,
			"user_id", body.UserID)
	}

	req := &Request{
		RequestID: body.RequestID,
		UserID:    body.UserID,
		Amount:    body.Amount,
		Direction: settlement.DirectionWithdrawal,
		BankDetails: &BankDetails{
			AccountNumber: body.AccountNumber,
			IFSC:          body.IFSC,
			BankName:      body.BankName,
			AccountHolder: body.AccountHolderName,
			UPIID:         body.UPIID,
		},
	}

	h.logger.Info("withdrawal accepted for settlement",
		"request_id", req.RequestID,
		"user_id", req.UserID,
		"amount", req.Amount)

	outcome, err := h.settlementService.Settle(r.Context(), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, httpStatusForOutcome(outcome), outcome)
}

// HandleGetSettlement serves GET /settlements/{requestID}.
func (h *Handler) HandleGetSettlement(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		h.WriteError(w, http.StatusBadRequest, "requestID is required")
		return
	}

	outcome, err := h.settlementService.GetOutcome(requestID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, outcome)
}

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// HandleGetBalance serves GET /balance/{userID}. The balance comes from the
// ledger, not the wallet mirror.
func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.WriteError(w, http.StatusBadRequest, "userID is required")
		return
	}

	balance, err := h.settlementService.BalanceOf(r.Context(), userID)
	if err != nil {
		h.logger.Error("balance read failed", "user_id", userID, "error", err)
		h.WriteAppError(w, apperrors.NewExternalError("failed to read ledger balance", apperrors.ErrCodeLedgerConnectionError, err))
		return
	}

	h.WriteJSON(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance})
}
