package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	"github.com/frahmantamala/wallet-settlement/internal/core/events"
)

// EventHandler turns completed settlements into wallet transaction audit
// rows. Runs off the event bus so a failed audit write never fails the
// settlement itself.
type EventHandler struct {
	wallets WalletRepositoryAPI
	logger  *slog.Logger
}

func NewEventHandler(wallets WalletRepositoryAPI, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		wallets: wallets,
		logger:  logger,
	}
}

func (h *EventHandler) RegisterHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeSettlementCompleted, h.HandleSettlementCompleted)
}

func (h *EventHandler) HandleSettlementCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.SettlementCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	wallet, err := h.wallets.GetByUserID(completed.UserID)
	if err != nil {
		return fmt.Errorf("load wallet for user %s: %w", completed.UserID, err)
	}

	description := fmt.Sprintf("%s settled via %s", completed.Direction, completed.RequestID)
	if completed.FailureReason != "" {
		description = fmt.Sprintf("%s (flagged: %s)", description, completed.FailureReason)
	}

	tx := &settlement.WalletTransaction{
		WalletID:        wallet.ID,
		Type:            completed.Direction,
		Amount:          completed.Amount,
		Description:     description,
		Status:          settlement.StatusCompleted,
		TransactionHash: completed.LedgerTxRef,
	}

	if err := h.wallets.CreateTransaction(tx); err != nil {
		return fmt.Errorf("create wallet transaction: %w", err)
	}

	h.logger.Info("wallet transaction recorded",
		"request_id", completed.RequestID,
		"wallet_id", wallet.ID,
		"type", completed.Direction)

	return nil
}
