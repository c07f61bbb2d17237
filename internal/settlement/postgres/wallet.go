package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	settlementpkg "github.com/frahmantamala/wallet-settlement/internal/settlement"
)

// WalletRepository maintains the display-only balance mirror. Deposits credit
// total and available together; withdrawal debits touch total only, because
// available was already reduced when the funds were reserved.
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) settlementpkg.WalletRepositoryAPI {
	return &WalletRepository{
		db: db,
	}
}

func (r *WalletRepository) GetByUserID(userID string) (*settlement.Wallet, error) {
	var w settlement.Wallet
	err := r.db.Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) Credit(userID string, amount int64) error {
	if err := r.ensureWallet(userID); err != nil {
		return err
	}
	return r.db.Model(&settlement.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"total_balance":     gorm.Expr("total_balance + ?", amount),
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"updated_at":        time.Now(),
		}).Error
}

func (r *WalletRepository) Debit(userID string, amount int64) error {
	res := r.db.Model(&settlement.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"total_balance": gorm.Expr("total_balance - ?", amount),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Unlock releases funds reserved for a withdrawal whose payout failed before
// the burn was attempted.
func (r *WalletRepository) Unlock(userID string, amount int64) error {
	res := r.db.Model(&settlement.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *WalletRepository) CreateTransaction(tx *settlement.WalletTransaction) error {
	return r.db.Create(tx).Error
}

func (r *WalletRepository) ensureWallet(userID string) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&settlement.Wallet{UserID: userID}).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return nil
}
