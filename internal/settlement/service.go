package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/frahmantamala/wallet-settlement/internal"
	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	"github.com/frahmantamala/wallet-settlement/internal/core/events"
	"github.com/frahmantamala/wallet-settlement/internal/payout"
)

// Service drives a settlement request to a terminal state: mint for
// deposits, payout-then-burn for withdrawals, with balance-delta
// verification whenever the ledger commits without handing back a receipt.
type Service struct {
	repo     RepositoryAPI
	wallets  WalletRepositoryAPI
	ledger   LedgerAPI
	oracle   OracleAPI
	payouts  PayoutAPI
	eventBus *events.EventBus
	cfg      Config
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, wallets WalletRepositoryAPI, ledgerClient LedgerAPI, balanceOracle OracleAPI, payouts PayoutAPI, eventBus *events.EventBus, cfg Config, logger *slog.Logger) *Service {
	if cfg.VerifyAttempts < 1 {
		cfg.VerifyAttempts = 2
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 8
	}
	if cfg.SyncWait <= 0 {
		cfg.SyncWait = 10 * time.Second
	}

	return &Service{
		repo:     repo,
		wallets:  wallets,
		ledger:   ledgerClient,
		oracle:   balanceOracle,
		payouts:  payouts,
		eventBus: eventBus,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:   logger,
	}
}

// Settle is the idempotent entry point. Redelivery of a terminal request
// returns the stored outcome without touching the ledger; a request still
// processing is rejected for later retry. Once reconciliation starts it runs
// to a terminal state even if the caller's deadline expires, in which case
// the caller gets a "still processing" outcome.
func (s *Service) Settle(ctx context.Context, req *Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec := &settlement.Record{
		ID:               req.RequestID,
		Direction:        req.Direction,
		UserID:           req.UserID,
		Amount:           req.Amount,
		Status:           settlement.StatusPending,
		PaymentReference: req.PaymentReference,
		BankDetails:      req.bankDetailsJSON(),
	}

	created, err := s.repo.InsertIfAbsent(rec)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to persist settlement record", err)
	}

	if !created {
		existing, err := s.repo.GetByID(req.RequestID)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to load existing settlement record", err)
		}
		if existing.Terminal() {
			s.logger.Info("settlement already processed, returning stored outcome",
				"request_id", req.RequestID,
				"status", existing.Status)
			return outcomeFromRecord(existing, true), nil
		}
		if existing.Status == settlement.StatusProcessing {
			return nil, apperrors.ErrSettlementInProgress
		}
		// Still pending: an earlier intake created the record but never won
		// the processing transition (crash or race). Take over.
	}

	type reconcileResult struct {
		outcome *Outcome
		err     error
	}
	done := make(chan reconcileResult, 1)
	go func() {
		out, rerr := s.reconcile(req)
		done <- reconcileResult{outcome: out, err: rerr}
	}()

	select {
	case res := <-done:
		return res.outcome, res.err
	case <-time.After(s.cfg.SyncWait):
		s.logger.Warn("settlement exceeded sync wait, completing in background",
			"request_id", req.RequestID,
			"sync_wait", s.cfg.SyncWait)
		return &Outcome{
			RequestID:  req.RequestID,
			Direction:  req.Direction,
			Status:     settlement.StatusProcessing,
			Processing: true,
		}, nil
	}
}

// GetOutcome returns the stored outcome for a request id.
func (s *Service) GetOutcome(requestID string) (*Outcome, error) {
	rec, err := s.repo.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	return outcomeFromRecord(rec, false), nil
}

// BalanceOf exposes the oracle's ledger balance read for the user-facing
// balance endpoint.
func (s *Service) BalanceOf(ctx context.Context, userID string) (int64, error) {
	return s.oracle.BalanceOf(ctx, userID)
}

// reconcile owns the record from the processing transition to a terminal
// state. It deliberately runs on a background context: once the ledger
// invoke may have been issued, cancellation must not abandon it mid-flight.
func (s *Service) reconcile(req *Request) (*Outcome, error) {
	ctx := context.Background()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.NewInternalError("settlement concurrency limit unavailable", err)
	}
	defer s.sem.Release(1)

	won, err := s.repo.TransitionStatus(req.RequestID, settlement.StatusPending, settlement.StatusProcessing)
	if err != nil {
		s.logger.Error("failed to transition settlement to processing",
			"request_id", req.RequestID,
			"error", err)
		return nil, apperrors.NewInternalError("failed to transition settlement to processing", err)
	}
	if !won {
		// A concurrent delivery won the transition. If the winner already
		// reached a terminal state, return its outcome; otherwise the caller
		// must retry later, same as an in-progress duplicate seen at intake.
		rec, gerr := s.repo.GetByID(req.RequestID)
		if gerr != nil {
			return nil, apperrors.ErrSettlementInProgress
		}
		if rec.Terminal() {
			return outcomeFromRecord(rec, true), nil
		}
		return nil, apperrors.ErrSettlementInProgress
	}

	if req.Direction == settlement.DirectionWithdrawal {
		return s.settleWithdrawal(ctx, req), nil
	}
	return s.settleDeposit(ctx, req), nil
}

func (s *Service) settleDeposit(ctx context.Context, req *Request) *Outcome {
	log := s.logger.With(
		"request_id", req.RequestID,
		"user_id", req.UserID,
		"amount", req.Amount,
		"direction", settlement.DirectionDeposit)

	// The before-read must precede the mint; reading after makes the delta
	// unmeasurable.
	balanceBefore, err := s.oracle.BalanceOf(ctx, req.UserID)
	if err != nil {
		log.Error("balance read before mint failed", "error", err)
		return s.fail(req, 0, fmt.Sprintf("balance read before mint failed: %v", err))
	}

	receipt, err := s.ledger.Invoke(ctx, s.cfg.TokenContract, "mint",
		req.UserID, strconv.FormatInt(req.Amount, 10))
	if err != nil {
		log.Error("mint rejected by ledger", "error", err)
		return s.fail(req, 0, fmt.Sprintf("mint failed: %v", err))
	}

	if receipt.Confirmed() {
		log.Info("mint confirmed by receipt", "ledger_tx_ref", receipt.ID())
		var after *int64
		if b, aerr := s.oracle.BalanceOf(ctx, req.UserID); aerr == nil {
			after = &b
		} else {
			log.Warn("audit balance read failed after confirmed mint", "error", aerr)
		}
		return s.complete(req, receipt.ID(), &balanceBefore, after, 0, nil)
	}

	log.Warn("mint returned no receipt, verifying by balance delta",
		"balance_before", balanceBefore)
	res := s.verifyDelta(ctx, req.UserID, balanceBefore, req.Amount)
	if res.err != nil {
		log.Error("mint verification failed", "error", res.err, "attempts", res.attempts)
		return s.fail(req, res.attempts, fmt.Sprintf("mint verification failed: %v", res.err))
	}

	return s.complete(req, res.txRef, &balanceBefore, res.afterPtr(), res.attempts, res.flag)
}

func (s *Service) settleWithdrawal(ctx context.Context, req *Request) *Outcome {
	log := s.logger.With(
		"request_id", req.RequestID,
		"user_id", req.UserID,
		"amount", req.Amount,
		"direction", settlement.DirectionWithdrawal)

	// Sufficiency is checked against the ledger, never the mirror.
	available, err := s.oracle.BalanceOf(ctx, req.UserID)
	if err != nil {
		log.Error("balance read before payout failed", "error", err)
		return s.fail(req, 0, fmt.Sprintf("balance read before payout failed: %v", err))
	}
	if available < req.Amount {
		log.Warn("insufficient ledger balance for withdrawal", "available", available)
		return s.fail(req, 0, fmt.Sprintf("insufficient ledger balance: have %d, need %d", available, req.Amount))
	}

	payoutReq := &payout.Request{
		Amount:    req.Amount,
		Reference: req.RequestID,
	}
	if req.BankDetails != nil {
		payoutReq.AccountNumber = req.BankDetails.AccountNumber
		payoutReq.IFSC = req.BankDetails.IFSC
		payoutReq.BankName = req.BankDetails.BankName
		payoutReq.AccountHolder = req.BankDetails.AccountHolder
		payoutReq.UPIID = req.BankDetails.UPIID
	}

	payoutRes, err := s.payouts.Transfer(ctx, payoutReq)
	if err != nil {
		// Burn must never run for a payout that did not succeed. Reserved
		// mirror funds are released so the user sees their money again.
		log.Error("payout failed, withdrawal aborted before burn", "error", err)
		if uerr := s.wallets.Unlock(req.UserID, req.Amount); uerr != nil {
			log.Warn("failed to unlock reserved mirror funds", "error", uerr)
		}
		return s.fail(req, 0, fmt.Sprintf("payout failed: %v", err))
	}

	log.Info("payout confirmed, burning tokens",
		"payout_transaction_id", payoutRes.TransactionID)

	balanceBefore := available
	receipt, err := s.ledger.Invoke(ctx, s.cfg.TokenContract, "transfer",
		req.UserID, s.cfg.SinkAccount, strconv.FormatInt(req.Amount, 10))
	if err != nil {
		// Money already left via payout. Failing the record now would tell
		// the user the withdrawal didn't happen while their bank account
		// says otherwise; retrying the burn risks a double debit.
		flag := fmt.Sprintf("payout %s succeeded but burn was rejected: %v; manual reconciliation required",
			payoutRes.TransactionID, err)
		log.Error("burn rejected after successful payout",
			"error", err,
			"payout_transaction_id", payoutRes.TransactionID)
		return s.complete(req, "", &balanceBefore, nil, 0, &flag)
	}

	if receipt.Confirmed() {
		log.Info("burn confirmed by receipt", "ledger_tx_ref", receipt.ID())
		var after *int64
		if b, aerr := s.oracle.BalanceOf(ctx, req.UserID); aerr == nil {
			after = &b
		} else {
			log.Warn("audit balance read failed after confirmed burn", "error", aerr)
		}
		return s.complete(req, receipt.ID(), &balanceBefore, after, 0, nil)
	}

	log.Warn("burn returned no receipt, verifying by balance delta",
		"balance_before", balanceBefore)
	res := s.verifyDelta(ctx, req.UserID, balanceBefore, -req.Amount)
	if res.err != nil {
		flag := fmt.Sprintf("payout %s succeeded but burn was never observed on the ledger: %v; manual reconciliation required",
			payoutRes.TransactionID, res.err)
		log.Error("burn unverified after successful payout",
			"error", res.err,
			"payout_transaction_id", payoutRes.TransactionID)
		return s.complete(req, "", &balanceBefore, res.afterPtr(), res.attempts, &flag)
	}

	return s.complete(req, res.txRef, &balanceBefore, res.afterPtr(), res.attempts, res.flag)
}

type verifyResult struct {
	txRef    string
	after    int64
	observed bool
	attempts int
	flag     *string
	err      error
}

func (r verifyResult) afterPtr() *int64 {
	if !r.observed {
		return nil
	}
	after := r.after
	return &after
}

// verifyDelta waits for the ledger to commit and compares the observed
// balance change against the expected signed delta. Bounded: at most
// cfg.VerifyAttempts rounds, each preceded by the settle delay.
func (s *Service) verifyDelta(ctx context.Context, userID string, before, expected int64) verifyResult {
	res := verifyResult{}
	var delta int64
	var lastErr error

	for attempt := 1; attempt <= s.cfg.VerifyAttempts; attempt++ {
		res.attempts = attempt
		sleepContext(ctx, s.cfg.SettleDelay)

		after, err := s.oracle.BalanceOf(ctx, userID)
		if err != nil {
			lastErr = err
			continue
		}

		res.observed = true
		res.after = after
		delta = after - before

		if abs64(delta-expected) <= s.cfg.DeltaTolerance {
			verificationAttempts.Observe(float64(attempt))
			res.txRef = deltaTxRef(delta)
			return res
		}
	}

	if !res.observed {
		res.err = fmt.Errorf("balance unreadable during verification: %w", lastErr)
		return res
	}

	// The balance moved in the expected direction but the delta is off:
	// money visibly moved, so failing here would desynchronize the user's
	// real balance from the record store. Complete, flagged for audit.
	if (expected > 0 && delta > 0) || (expected < 0 && delta < 0) {
		flag := fmt.Sprintf("balance moved by %d but expected %d; flagged for manual reconciliation", delta, expected)
		res.txRef = deltaTxRef(delta)
		res.flag = &flag
		return res
	}

	res.err = fmt.Errorf("balance delta %d never matched expected %d after %d attempts", delta, expected, res.attempts)
	return res
}

// complete persists the terminal completed state. Mirror update first, then
// the record store; a mirror failure is logged, not fatal, because the
// ledger operation has already succeeded and is the source of truth.
func (s *Service) complete(req *Request, ledgerTxRef string, balanceBefore, balanceAfter *int64, attempts int, flag *string) *Outcome {
	log := s.logger.With("request_id", req.RequestID, "user_id", req.UserID, "direction", req.Direction)

	if req.Direction == settlement.DirectionWithdrawal {
		if err := s.wallets.Debit(req.UserID, req.Amount); err != nil {
			log.Error("wallet mirror debit failed (ledger already settled)", "error", err)
		}
	} else {
		if err := s.wallets.Credit(req.UserID, req.Amount); err != nil {
			log.Error("wallet mirror credit failed (ledger already settled)", "error", err)
		}
	}

	if err := s.repo.MarkCompleted(req.RequestID, ledgerTxRef, balanceBefore, balanceAfter, attempts, flag); err != nil {
		log.Error("failed to persist completed settlement", "error", err, "ledger_tx_ref", ledgerTxRef)
	}

	settlementsTotal.WithLabelValues(req.Direction, settlement.StatusCompleted).Inc()

	flagText := ""
	if flag != nil {
		flagText = *flag
	}
	event := events.NewSettlementCompletedEvent(req.RequestID, req.UserID, req.Direction, req.Amount, ledgerTxRef, flagText)
	if err := s.eventBus.Publish(context.Background(), event); err != nil {
		log.Warn("settlement completed event delivery failed", "error", err)
	}

	log.Info("settlement completed",
		"ledger_tx_ref", ledgerTxRef,
		"attempts", attempts,
		"flagged", flag != nil)

	return &Outcome{
		RequestID:     req.RequestID,
		Status:        settlement.StatusCompleted,
		Direction:     req.Direction,
		LedgerTxRef:   ledgerTxRef,
		FailureReason: flagText,
	}
}

func (s *Service) fail(req *Request, attempts int, reason string) *Outcome {
	log := s.logger.With("request_id", req.RequestID, "user_id", req.UserID, "direction", req.Direction)

	if err := s.repo.MarkFailed(req.RequestID, reason, attempts); err != nil {
		log.Error("failed to persist failed settlement", "error", err)
	}

	settlementsTotal.WithLabelValues(req.Direction, settlement.StatusFailed).Inc()

	event := events.NewSettlementFailedEvent(req.RequestID, req.UserID, req.Direction, req.Amount, reason, attempts)
	if err := s.eventBus.Publish(context.Background(), event); err != nil {
		log.Warn("settlement failed event delivery failed", "error", err)
	}

	log.Error("settlement failed", "failure_reason", reason, "attempts", attempts)

	return &Outcome{
		RequestID:     req.RequestID,
		Status:        settlement.StatusFailed,
		Direction:     req.Direction,
		FailureReason: reason,
	}
}

func deltaTxRef(delta int64) string {
	return "VERIFIED-DELTA-" + strconv.FormatInt(delta, 10)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
