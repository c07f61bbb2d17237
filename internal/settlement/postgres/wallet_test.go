package postgres

import (
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	settlementpkg "github.com/frahmantamala/wallet-settlement/internal/settlement"
)

type WalletSQLite struct {
	ID               int64     `gorm:"primaryKey"`
	UserID           string    `gorm:"column:user_id;not null;uniqueIndex"`
	TotalBalance     int64     `gorm:"column:total_balance;default:0"`
	AvailableBalance int64     `gorm:"column:available_balance;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (WalletSQLite) TableName() string {
	return "wallets"
}

type WalletTransactionSQLite struct {
	ID              int64     `gorm:"primaryKey"`
	WalletID        int64     `gorm:"column:wallet_id;not null"`
	Type            string    `gorm:"column:type;not null"`
	Amount          int64     `gorm:"column:amount;not null"`
	Description     string    `gorm:"column:description"`
	Status          string    `gorm:"column:status;default:completed"`
	TransactionHash string    `gorm:"column:transaction_hash"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (WalletTransactionSQLite) TableName() string {
	return "wallet_transactions"
}

var _ = ginkgo.Describe("WalletRepository", func() {
	var (
		db   *gorm.DB
		repo settlementpkg.WalletRepositoryAPI
	)

	ginkgo.BeforeEach(func() {
		db = newTestDB()
		err := db.AutoMigrate(&WalletSQLite{}, &WalletTransactionSQLite{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewWalletRepository(db)
	})

	ginkgo.Describe("Credit", func() {
		ginkgo.Context("when the user has no wallet yet", func() {
			ginkgo.It("should create the wallet and credit both balances", func() {
				err := repo.Credit("alice", 100)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				wallet, err := repo.GetByUserID("alice")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(wallet.TotalBalance).To(gomega.Equal(int64(100)))
				gomega.Expect(wallet.AvailableBalance).To(gomega.Equal(int64(100)))
			})
		})

		ginkgo.Context("when the wallet exists", func() {
			ginkgo.It("should accumulate", func() {
				gomega.Expect(repo.Credit("alice", 100)).To(gomega.Succeed())
				gomega.Expect(repo.Credit("alice", 50)).To(gomega.Succeed())

				wallet, _ := repo.GetByUserID("alice")
				gomega.Expect(wallet.TotalBalance).To(gomega.Equal(int64(150)))
			})
		})
	})

	ginkgo.Describe("Debit", func() {
		ginkgo.It("should reduce total balance only", func() {
			gomega.Expect(repo.Credit("alice", 200)).To(gomega.Succeed())

			err := repo.Debit("alice", 80)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			wallet, _ := repo.GetByUserID("alice")
			gomega.Expect(wallet.TotalBalance).To(gomega.Equal(int64(120)))
			gomega.Expect(wallet.AvailableBalance).To(gomega.Equal(int64(200)))
		})

		ginkgo.It("should fail for a user without a wallet", func() {
			err := repo.Debit("nobody", 80)

			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("Unlock", func() {
		ginkgo.It("should restore available balance after a failed payout", func() {
			gomega.Expect(repo.Credit("alice", 200)).To(gomega.Succeed())
			// Simulate the reservation the app backend made before the payout
			err := db.Model(&settlement.Wallet{}).
				Where("user_id = ?", "alice").
				Update("available_balance", gorm.Expr("available_balance - ?", 80)).Error
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(repo.Unlock("alice", 80)).To(gomega.Succeed())

			wallet, _ := repo.GetByUserID("alice")
			gomega.Expect(wallet.AvailableBalance).To(gomega.Equal(int64(200)))
			gomega.Expect(wallet.TotalBalance).To(gomega.Equal(int64(200)))
		})
	})

	ginkgo.Describe("CreateTransaction", func() {
		ginkgo.It("should persist the audit row", func() {
			gomega.Expect(repo.Credit("alice", 100)).To(gomega.Succeed())
			wallet, _ := repo.GetByUserID("alice")

			tx := &settlement.WalletTransaction{
				WalletID:        wallet.ID,
				Type:            settlement.DirectionDeposit,
				Amount:          100,
				Description:     "deposit settled via order-1",
				Status:          settlement.StatusCompleted,
				TransactionHash: "tx-abc",
			}

			gomega.Expect(repo.CreateTransaction(tx)).To(gomega.Succeed())
			gomega.Expect(tx.ID).To(gomega.BeNumerically(">", 0))
		})
	})
})
