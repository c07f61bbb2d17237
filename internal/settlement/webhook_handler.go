package settlement

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/wallet-settlement/internal"
	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	"github.com/frahmantamala/wallet-settlement/internal/transport"
)

// WebhookHandler is the deposit intake boundary. Each supported gateway posts
// its own payload shape to /webhooks/{gateway}; everything is normalized into
// a canonical settlement request before it touches the reconciler.
type WebhookHandler struct {
	*transport.BaseHandler
	settlementService ServiceAPI
	logger            *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, settlementService ServiceAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:       baseHandler,
		settlementService: settlementService,
		logger:            logger,
	}
}

type webhookAckResponse struct {
	Received  bool   `json:"received"`
	Processed bool   `json:"processed"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// webhookSettleResponse is the gateway-facing envelope: received is always
// true once the payload parsed, processed only when the settlement completed.
type webhookSettleResponse struct {
	Received  bool `json:"received"`
	Processed bool `json:"processed"`
	*Outcome
}

// HandleGatewayWebhook processes POST /webhooks/{gateway}.
//
// Response contract: 200 for settled or deliberately ignored events, 202 when
// reconciliation continues in the background, 409 while another delivery is
// still processing, 422 when the settlement reached a terminal failed state,
// 400 for payloads that cannot be normalized.
func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "gateway", gateway, "error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	req, err := Normalize(gateway, body)
	if err != nil {
		if errors.Is(err, ErrIgnoredStatus) {
			h.logger.Info("ignoring non-success webhook event", "gateway", gateway)
			h.WriteJSON(w, http.StatusOK, webhookAckResponse{
				Received: true,
				Status:   "ignored",
				Message:  "event status does not require settlement",
			})
			return
		}
		h.logger.Error("webhook payload rejected", "gateway", gateway, "error", err)
		h.WriteAppError(w, err)
		return
	}

	h.logger.Info("webhook event accepted for settlement",
		"gateway", gateway,
		"request_id", req.RequestID,
		"user_id", req.UserID,
		"amount", req.Amount)

	h.settle(w, r, req)
}

// settle runs the reconciler and writes the gateway-facing envelope.
func (h *WebhookHandler) settle(w http.ResponseWriter, r *http.Request, req *Request) {
	outcome, err := h.settlementService.Settle(r.Context(), req)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.ErrCodeSettlementInProgress {
			h.logger.Warn("settlement already in progress", "request_id", req.RequestID)
		}
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, httpStatusForOutcome(outcome), webhookSettleResponse{
		Received:  true,
		Processed: outcome.Status == settlement.StatusCompleted,
		Outcome:   outcome,
	})
}

// httpStatusForOutcome maps a settlement outcome to the response contract:
// 202 while reconciliation continues in the background, 422 for a terminal
// failure, 200 otherwise.
func httpStatusForOutcome(outcome *Outcome) int {
	switch {
	case outcome.Processing:
		return http.StatusAccepted
	case outcome.Status == settlement.StatusFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}
