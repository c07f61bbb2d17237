package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/wallet-settlement/internal"
	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	settlementpkg "github.com/frahmantamala/wallet-settlement/internal/settlement"
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) settlementpkg.RepositoryAPI {
	return &SettlementRepository{
		db: db,
	}
}

// InsertIfAbsent inserts the record unless the request id already exists.
// Returns false without error on conflict; the caller decides whether the
// existing row is a duplicate delivery or an abandoned intake.
func (r *SettlementRepository) InsertIfAbsent(rec *settlement.Record) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *SettlementRepository) GetByID(id string) (*settlement.Record, error) {
	var rec settlement.Record
	err := r.db.Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSettlementNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// TransitionStatus is the conditional status update the whole pipeline hangs
// off: the update matches on the expected current status, so exactly one
// caller observes RowsAffected == 1.
func (r *SettlementRepository) TransitionStatus(id, from, to string) (bool, error) {
	res := r.db.Model(&settlement.Record{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *SettlementRepository) MarkCompleted(id string, ledgerTxRef string, balanceBefore, balanceAfter *int64, attempts int, failureReason *string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       settlement.StatusCompleted,
		"attempts":     attempts,
		"updated_at":   now,
		"processed_at": now,
	}

	if ledgerTxRef != "" {
		updates["ledger_tx_ref"] = ledgerTxRef
	}
	if balanceBefore != nil {
		updates["balance_before"] = *balanceBefore
	}
	if balanceAfter != nil {
		updates["balance_after"] = *balanceAfter
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}

	return r.db.Model(&settlement.Record{}).Where("id = ?", id).Updates(updates).Error
}

func (r *SettlementRepository) MarkFailed(id string, failureReason string, attempts int) error {
	now := time.Now()
	return r.db.Model(&settlement.Record{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         settlement.StatusFailed,
			"failure_reason": failureReason,
			"attempts":       attempts,
			"updated_at":     now,
			"processed_at":   now,
		}).Error
}
