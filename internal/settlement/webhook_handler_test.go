package settlement_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/wallet-settlement/internal"
	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	settlementPkg "github.com/frahmantamala/wallet-settlement/internal/settlement"
	"github.com/frahmantamala/wallet-settlement/internal/transport"
)

type mockService struct {
	settleOutcome *settlementPkg.Outcome
	settleErr     error
	lastRequest   *settlementPkg.Request
	getOutcome    *settlementPkg.Outcome
	getErr        error
	balance       int64
	balanceErr    error
}

func (m *mockService) Settle(ctx context.Context, req *settlementPkg.Request) (*settlementPkg.Outcome, error) {
	m.lastRequest = req
	if m.settleErr != nil {
		return nil, m.settleErr
	}
	return m.settleOutcome, nil
}

func (m *mockService) GetOutcome(requestID string) (*settlementPkg.Outcome, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getOutcome, nil
}

func (m *mockService) BalanceOf(ctx context.Context, userID string) (int64, error) {
	if m.balanceErr != nil {
		return 0, m.balanceErr
	}
	return m.balance, nil
}

var _ = Describe("Settlement HTTP handlers", func() {
	var (
		service *mockService
		router  *chi.Mux
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = &mockService{}

		base := transport.NewBaseHandler(logger)
		webhookHandler := settlementPkg.NewWebhookHandler(base, service, logger)
		handler := settlementPkg.NewHandler(base, service, logger)

		router = chi.NewRouter()
		router.Post("/webhooks/{gateway}", webhookHandler.HandleGatewayWebhook)
		router.Post("/withdrawals/process", handler.HandleProcessWithdrawal)
		router.Get("/settlements/{requestID}", handler.HandleGetSettlement)
		router.Get("/balance/{userID}", handler.HandleGetBalance)
	})

	paidPayload := `{"orderId": "order-1", "orderStatus": "PAID", "orderAmount": "100", "userId": "alice"}`

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	Describe("POST /webhooks/{gateway}", func() {
		Context("when the settlement completes", func() {
			It("should return 200 with the outcome", func() {
				service.settleOutcome = &settlementPkg.Outcome{
					RequestID:   "order-1",
					Status:      settlement.StatusCompleted,
					Direction:   settlement.DirectionDeposit,
					LedgerTxRef: "tx-1",
				}

				rec := post("/webhooks/cashfree", paidPayload)

				Expect(rec.Code).To(Equal(http.StatusOK))
				var outcome settlementPkg.Outcome
				Expect(json.Unmarshal(rec.Body.Bytes(), &outcome)).To(Succeed())
				Expect(outcome.LedgerTxRef).To(Equal("tx-1"))
				Expect(rec.Body.String()).To(ContainSubstring(`"received":true`))
				Expect(rec.Body.String()).To(ContainSubstring(`"processed":true`))
				Expect(service.lastRequest.RequestID).To(Equal("order-1"))
			})
		})

		Context("when settlement continues in the background", func() {
			It("should return 202", func() {
				service.settleOutcome = &settlementPkg.Outcome{
					RequestID:  "order-1",
					Status:     settlement.StatusProcessing,
					Processing: true,
				}

				rec := post("/webhooks/cashfree", paidPayload)

				Expect(rec.Code).To(Equal(http.StatusAccepted))
			})
		})

		Context("when the settlement reached a terminal failed state", func() {
			It("should return 422", func() {
				service.settleOutcome = &settlementPkg.Outcome{
					RequestID:     "order-1",
					Status:        settlement.StatusFailed,
					FailureReason: "mint failed",
				}

				rec := post("/webhooks/cashfree", paidPayload)

				Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		Context("when another delivery is still processing", func() {
			It("should return 409", func() {
				service.settleErr = apperrors.ErrSettlementInProgress

				rec := post("/webhooks/cashfree", paidPayload)

				Expect(rec.Code).To(Equal(http.StatusConflict))
			})
		})

		Context("when the gateway status is not a final success", func() {
			It("should acknowledge with 200 and not settle", func() {
				rec := post("/webhooks/cashfree", `{"orderId": "order-1", "orderStatus": "FAILED", "userId": "alice"}`)

				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(service.lastRequest).To(BeNil())
				Expect(rec.Body.String()).To(ContainSubstring("ignored"))
			})
		})

		Context("when the gateway is unknown", func() {
			It("should return 400", func() {
				rec := post("/webhooks/paypal", paidPayload)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(service.lastRequest).To(BeNil())
			})
		})

		Context("when the payload is malformed", func() {
			It("should return 400", func() {
				rec := post("/webhooks/cashfree", "not-json")

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /withdrawals/process", func() {
		It("should settle a withdrawal request", func() {
			service.settleOutcome = &settlementPkg.Outcome{
				RequestID: "wd-1",
				Status:    settlement.StatusCompleted,
				Direction: settlement.DirectionWithdrawal,
			}

			rec := post("/withdrawals/process", `{
				"request_id": "wd-1",
				"user_id": "alice",
				"amount": 100,
				"bank_account": "12345",
				"bank_ifsc": "HDFC0001"
			}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(service.lastRequest.Direction).To(Equal(settlement.DirectionWithdrawal))
			Expect(service.lastRequest.BankDetails.AccountNumber).To(Equal("12345"))
		})

		It("should generate a request id when none is supplied", func() {
			service.settleOutcome = &settlementPkg.Outcome{Status: settlement.StatusCompleted}

			rec := post("/withdrawals/process", `{"user_id": "alice", "amount": 100}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(service.lastRequest.RequestID).To(HavePrefix("WITHDRAW-"))
		})
	})

	Describe("GET /settlements/{requestID}", func() {
		It("should return the stored outcome", func() {
			service.getOutcome = &settlementPkg.Outcome{
				RequestID: "order-1",
				Status:    settlement.StatusCompleted,
			}

			rec := get("/settlements/order-1")

			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should return 404 for an unknown request id", func() {
			service.getErr = apperrors.ErrSettlementNotFound

			rec := get("/settlements/nope")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /balance/{userID}", func() {
		It("should return the ledger balance", func() {
			service.balance = 420

			rec := get("/balance/alice")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("420"))
		})

		It("should return 502 when the ledger is unreachable", func() {
			service.balanceErr = &apperrors.AppError{
				Type:       apperrors.ErrorTypeExternal,
				Code:       apperrors.ErrCodeLedgerConnectionError,
				Message:    "session dropped",
				StatusCode: http.StatusBadGateway,
			}

			rec := get("/balance/alice")

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})
	})
})
