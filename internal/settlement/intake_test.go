package settlement_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/wallet-settlement/internal/core/datamodel/settlement"
	settlementPkg "github.com/frahmantamala/wallet-settlement/internal/settlement"
)

var _ = Describe("Webhook payload normalization", func() {
	Describe("cashfree payloads", func() {
		Context("when the order is paid", func() {
			It("should produce a deposit request keyed by order id", func() {
				payload := []byte(`{
					"orderId": "order-42",
					"orderAmount": "250",
					"orderStatus": "PAID",
					"paymentId": "cf-pay-9",
					"userId": "alice"
				}`)

				req, err := settlementPkg.Normalize(settlementPkg.GatewayCashfree, payload)

				Expect(err).ToNot(HaveOccurred())
				Expect(req.RequestID).To(Equal("order-42"))
				Expect(req.UserID).To(Equal("alice"))
				Expect(req.Amount).To(Equal(int64(250)))
				Expect(req.Direction).To(Equal(settlement.DirectionDeposit))
				Expect(req.PaymentReference).To(Equal("cf-pay-9"))
			})

			It("should truncate fractional currency amounts to whole units", func() {
				payload := []byte(`{
					"orderId": "order-42",
					"orderAmount": "250.75",
					"orderStatus": "PAID",
					"userId": "alice"
				}`)

				req, err := settlementPkg.Normalize(settlementPkg.GatewayCashfree, payload)

				Expect(err).ToNot(HaveOccurred())
				Expect(req.Amount).To(Equal(int64(250)))
			})
		})

		Context("when the order is not paid", func() {
			It("should signal the event must be ignored", func() {
				payload := []byte(`{"orderId": "order-42", "orderStatus": "FAILED", "userId": "alice"}`)

				_, err := settlementPkg.Normalize(settlementPkg.GatewayCashfree, payload)

				Expect(err).To(MatchError(settlementPkg.ErrIgnoredStatus))
			})
		})

		Context("when required fields are missing", func() {
			It("should reject a missing order id", func() {
				payload := []byte(`{"orderStatus": "PAID", "orderAmount": "100", "userId": "alice"}`)

				_, err := settlementPkg.Normalize(settlementPkg.GatewayCashfree, payload)

				Expect(err).To(HaveOccurred())
			})

			It("should reject a missing user id", func() {
				payload := []byte(`{"orderId": "order-42", "orderStatus": "PAID", "orderAmount": "100"}`)

				_, err := settlementPkg.Normalize(settlementPkg.GatewayCashfree, payload)

				Expect(err).To(HaveOccurred())
			})

			It("should reject a zero amount", func() {
				payload := []byte(`{"orderId": "order-42", "orderStatus": "PAID", "orderAmount": "0", "userId": "alice"}`)

				_, err := settlementPkg.Normalize(settlementPkg.GatewayCashfree, payload)

				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("instamojo payloads", func() {
		Context("when the payment is credited", func() {
			It("should extract the order id from the purpose text", func() {
				payload := []byte(`{
					"payment_id": "MOJO123",
					"status": "Credit",
					"amount": "500",
					"purpose": "Wallet topup Order-3f2a81c0-11",
					"userId": "bob"
				}`)

				req, err := settlementPkg.Normalize(settlementPkg.GatewayInstamojo, payload)

				Expect(err).ToNot(HaveOccurred())
				Expect(req.RequestID).To(Equal("3f2a81c0-11"))
				Expect(req.UserID).To(Equal("bob"))
				Expect(req.Amount).To(Equal(int64(500)))
				Expect(req.PaymentReference).To(Equal("MOJO123"))
			})
		})

		Context("when the purpose does not reference an order", func() {
			It("should reject the payload", func() {
				payload := []byte(`{
					"payment_id": "MOJO123",
					"status": "Credit",
					"amount": "500",
					"purpose": "donation",
					"userId": "bob"
				}`)

				_, err := settlementPkg.Normalize(settlementPkg.GatewayInstamojo, payload)

				Expect(err).To(HaveOccurred())
			})
		})

		Context("when the status is not Credit", func() {
			It("should signal the event must be ignored", func() {
				payload := []byte(`{"payment_id": "MOJO123", "status": "Failed", "userId": "bob"}`)

				_, err := settlementPkg.Normalize(settlementPkg.GatewayInstamojo, payload)

				Expect(err).To(MatchError(settlementPkg.ErrIgnoredStatus))
			})
		})
	})

	Describe("dummy gateway payloads", func() {
		It("should accept numeric amounts without quotes", func() {
			payload := []byte(`{"orderId": "d-1", "orderStatus": "PAID", "amount": 75, "userId": "carol"}`)

			req, err := settlementPkg.Normalize(settlementPkg.GatewayDummy, payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(req.Amount).To(Equal(int64(75)))
		})

		It("should generate request and payment references when absent", func() {
			payload := []byte(`{"orderStatus": "PAID", "amount": 75, "userId": "carol"}`)

			req, err := settlementPkg.Normalize(settlementPkg.GatewayDummy, payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(req.RequestID).To(HavePrefix("DEPOSIT-"))
			Expect(req.PaymentReference).To(HavePrefix("PAYMENT-"))
		})
	})

	Describe("unknown gateways", func() {
		It("should reject the payload outright", func() {
			_, err := settlementPkg.Normalize("paypal", []byte(`{}`))

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("malformed payloads", func() {
		It("should reject invalid JSON", func() {
			_, err := settlementPkg.Normalize(settlementPkg.GatewayCashfree, []byte(`not-json`))

			Expect(err).To(HaveOccurred())
		})
	})
})
