package ledger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/wallet-settlement/internal"
)

func TestLedgerClient(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Ledger Client Suite")
}

type fakeContract struct {
	submitPayload []byte
	submitErr     error
	evalPayload   []byte
	evalErr       error
	submitCalls   int
	evalCalls     int
}

func (f *fakeContract) SubmitTransaction(name string, args ...string) ([]byte, error) {
	f.submitCalls++
	return f.submitPayload, f.submitErr
}

func (f *fakeContract) EvaluateTransaction(name string, args ...string) ([]byte, error) {
	f.evalCalls++
	return f.evalPayload, f.evalErr
}

type fakeSession struct {
	contract *fakeContract
	closed   bool
}

func (f *fakeSession) Contract(name string) contractAPI {
	return f.contract
}

func (f *fakeSession) Close() {
	f.closed = true
}

func newTestClient(connect connectFunc) *Client {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewClient(internal.LedgerConfig{Channel: "testchannel", Identity: "tester"}, logger)
	c.connect = connect
	return c
}

var _ = ginkgo.Describe("Ledger Client", func() {
	ginkgo.Describe("Invoke", func() {
		ginkgo.Context("when the chaincode returns a transaction reference", func() {
			ginkgo.It("should produce a confirmed receipt", func() {
				contract := &fakeContract{submitPayload: []byte(" tx-123 \n")}
				client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
					return &fakeSession{contract: contract}, nil
				})

				receipt, err := client.Invoke(context.Background(), "bobcoin", "mint", "alice", "100")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(receipt.Confirmed()).To(gomega.BeTrue())
				gomega.Expect(receipt.ID()).To(gomega.Equal("tx-123"))
			})
		})

		ginkgo.Context("when the chaincode commits with an empty payload", func() {
			ginkgo.It("should produce an unconfirmed receipt, not an error", func() {
				contract := &fakeContract{submitPayload: []byte("")}
				client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
					return &fakeSession{contract: contract}, nil
				})

				receipt, err := client.Invoke(context.Background(), "bobcoin", "mint", "alice", "100")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(receipt.Confirmed()).To(gomega.BeFalse())
			})
		})

		ginkgo.Context("when the session dropped", func() {
			ginkgo.It("should relogin once and retry the call", func() {
				brokenContract := &fakeContract{submitErr: errors.New("rpc error: transport is closing")}
				brokenSession := &fakeSession{contract: brokenContract}
				healthyContract := &fakeContract{submitPayload: []byte("tx-after-relogin")}

				connects := 0
				client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
					connects++
					if connects == 1 {
						return brokenSession, nil
					}
					return &fakeSession{contract: healthyContract}, nil
				})

				receipt, err := client.Invoke(context.Background(), "bobcoin", "mint", "alice", "100")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(receipt.ID()).To(gomega.Equal("tx-after-relogin"))
				gomega.Expect(connects).To(gomega.Equal(2))
				gomega.Expect(brokenSession.closed).To(gomega.BeTrue())
			})

			ginkgo.It("should give up after the single retry", func() {
				contract := &fakeContract{submitErr: errors.New("connection refused")}
				connects := 0
				client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
					connects++
					return &fakeSession{contract: contract}, nil
				})

				_, err := client.Invoke(context.Background(), "bobcoin", "mint", "alice", "100")

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(IsConnectionError(err)).To(gomega.BeTrue())
				gomega.Expect(connects).To(gomega.Equal(2))
			})
		})

		ginkgo.Context("when the chaincode rejects the call", func() {
			ginkgo.It("should not retry", func() {
				contract := &fakeContract{submitErr: errors.New("insufficient funds")}
				connects := 0
				client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
					connects++
					return &fakeSession{contract: contract}, nil
				})

				_, err := client.Invoke(context.Background(), "bobcoin", "transfer", "alice", "admin", "100")

				gomega.Expect(err).To(gomega.HaveOccurred())
				var ccErr *ChaincodeError
				gomega.Expect(errors.As(err, &ccErr)).To(gomega.BeTrue())
				gomega.Expect(connects).To(gomega.Equal(1))
				gomega.Expect(contract.submitCalls).To(gomega.Equal(1))
			})
		})

		ginkgo.Context("when the context is already cancelled", func() {
			ginkgo.It("should return a timeout error without calling the gateway", func() {
				contract := &fakeContract{submitPayload: []byte("tx-1")}
				client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
					return &fakeSession{contract: contract}, nil
				})

				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				_, err := client.Invoke(ctx, "bobcoin", "mint", "alice", "100")

				gomega.Expect(err).To(gomega.HaveOccurred())
				var toErr *TimeoutError
				gomega.Expect(errors.As(err, &toErr)).To(gomega.BeTrue())
				gomega.Expect(contract.submitCalls).To(gomega.Equal(0))
			})
		})
	})

	ginkgo.Describe("Query", func() {
		ginkgo.It("should return the trimmed payload", func() {
			contract := &fakeContract{evalPayload: []byte("42\n")}
			client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
				return &fakeSession{contract: contract}, nil
			})

			value, err := client.Query(context.Background(), "bobcoin", "balanceOf", "alice")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(value).To(gomega.Equal("42"))
		})
	})

	ginkgo.Describe("error classification", func() {
		ginkgo.It("should bucket timeouts before connection errors", func() {
			err := classify(errors.New("awaiting commit: context deadline exceeded"))
			var toErr *TimeoutError
			gomega.Expect(errors.As(err, &toErr)).To(gomega.BeTrue())
		})

		ginkgo.It("should treat unavailable endpoints as connection errors", func() {
			err := classify(errors.New("endorser unavailable"))
			gomega.Expect(IsConnectionError(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should default to a chaincode rejection", func() {
			err := classify(errors.New("mint denied for account"))
			var ccErr *ChaincodeError
			gomega.Expect(errors.As(err, &ccErr)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("session reuse", func() {
		ginkgo.It("should establish the session once across calls", func() {
			contract := &fakeContract{submitPayload: []byte("tx-1"), evalPayload: []byte("10")}
			connects := 0
			client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
				connects++
				return &fakeSession{contract: contract}, nil
			})

			_, err := client.Invoke(context.Background(), "bobcoin", "mint", "alice", "100")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = client.Query(context.Background(), "bobcoin", "balanceOf", "alice")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(connects).To(gomega.Equal(1))
		})

		ginkgo.It("should report unreadiness when the session cannot be established", func() {
			client := newTestClient(func(cfg internal.LedgerConfig) (session, error) {
				return nil, errors.New("no such connection profile")
			})

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			gomega.Expect(client.Ping(ctx)).To(gomega.HaveOccurred())
		})
	})
})
