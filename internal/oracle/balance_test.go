package oracle_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/wallet-settlement/internal/oracle"
)

func TestBalanceOracle(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Balance Oracle Suite")
}

type fakeLedger struct {
	value string
	err   error
}

func (f *fakeLedger) Query(ctx context.Context, contract, function string, args ...string) (string, error) {
	return f.value, f.err
}

var _ = Describe("BalanceOracle", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	newOracle := func(value string, err error) *oracle.BalanceOracle {
		return oracle.NewBalanceOracle(&fakeLedger{value: value, err: err}, "bobcoin", logger)
	}

	Context("when the contract returns a whole-unit balance", func() {
		It("should parse it", func() {
			balance, err := newOracle("250", nil).BalanceOf(context.Background(), "alice")

			Expect(err).ToNot(HaveOccurred())
			Expect(balance).To(Equal(int64(250)))
		})
	})

	Context("when the account has never transacted", func() {
		It("should read as zero", func() {
			balance, err := newOracle("", nil).BalanceOf(context.Background(), "ghost")

			Expect(err).ToNot(HaveOccurred())
			Expect(balance).To(Equal(int64(0)))
		})
	})

	Context("when the contract returns a fractional balance", func() {
		It("should round rather than fail the read", func() {
			balance, err := newOracle("99.6", nil).BalanceOf(context.Background(), "alice")

			Expect(err).ToNot(HaveOccurred())
			Expect(balance).To(Equal(int64(100)))
		})
	})

	Context("when the contract returns garbage", func() {
		It("should surface an error", func() {
			_, err := newOracle("not-a-number", nil).BalanceOf(context.Background(), "alice")

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unparseable balance"))
		})
	})

	Context("when the query itself fails", func() {
		It("should surface the error instead of defaulting to zero", func() {
			_, err := newOracle("", errors.New("session dropped")).BalanceOf(context.Background(), "alice")

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("session dropped"))
		})
	})

	Context("when the balance is negative", func() {
		It("should return it as-is", func() {
			balance, err := newOracle("-5", nil).BalanceOf(context.Background(), "alice")

			Expect(err).ToNot(HaveOccurred())
			Expect(balance).To(Equal(int64(-5)))
		})
	})
})
