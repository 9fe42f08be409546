package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/meetstake/internal/adapters/ledger"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGatewayClient(t *testing.T) {
	Convey("Given a gateway that accepts transactions", t, func() {
		var gotPath string
		var gotBody map[string]any
		receiptStatus := "confirmed"

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/v1/transactions":
				_ = json.NewDecoder(r.Body).Decode(&gotBody)
				_ = json.NewEncoder(w).Encode(map[string]any{"tx_hash": "0xfeed", "event_id": 9})
			case r.URL.Path == "/v1/receipts/0xfeed":
				_ = json.NewEncoder(w).Encode(map[string]any{
					"tx_hash":      "0xfeed",
					"status":       receiptStatus,
					"confirmed_at": time.Now().Format(time.RFC3339),
				})
			case r.URL.Path == "/v1/balances/0xabc":
				_ = json.NewEncoder(w).Encode(map[string]any{"balance": "1.25"})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		client := ledger.NewGatewayClient(srv.URL, "0xcontract",
			ledger.WithReceiptPollInterval(10*time.Millisecond))
		signer := ledger.StaticSigner("0xabc")

		Convey("When creating an event", func() {
			id, tx, err := client.CreateEvent(context.Background(), signer, "Beach Cleanup",
				time.Unix(1900000000, 0), decimal.RequireFromString("0.01"))

			Convey("Then the ledger-assigned id and tx hash come back", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, 9)
				So(tx, ShouldEqual, ledger.TxHandle("0xfeed"))
				So(gotBody["method"], ShouldEqual, "createEvent")
				So(gotBody["signer"], ShouldEqual, "0xabc")
			})
		})

		Convey("When confirming a transaction", func() {
			receipt, err := client.Confirm(context.Background(), "0xfeed")

			Convey("Then a successful receipt is returned", func() {
				So(err, ShouldBeNil)
				So(receipt.Succeeded, ShouldBeTrue)
				So(gotPath, ShouldEqual, "/v1/receipts/0xfeed")
			})
		})

		Convey("When the transaction reverted", func() {
			receiptStatus = "reverted"
			_, err := client.Confirm(context.Background(), "0xfeed")

			Convey("Then ErrConfirmFailed is returned", func() {
				So(err, ShouldEqual, ledger.ErrConfirmFailed)
			})
		})

		Convey("When confirmation never lands and the context expires", func() {
			receiptStatus = "pending"
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err := client.Confirm(ctx, "0xfeed")

			Convey("Then the context error surfaces", func() {
				// The deadline may fire mid-poll, in which case the context
				// error arrives wrapped in the receipt GET failure.
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When reading a balance", func() {
			bal, err := client.Balance(context.Background(), "0xabc")

			Convey("Then the decimal value is decoded", func() {
				So(err, ShouldBeNil)
				So(bal.String(), ShouldEqual, "1.25")
			})
		})
	})

	Convey("Given a gateway that rejects submissions", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "insufficient funds", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		client := ledger.NewGatewayClient(srv.URL, "0xcontract")

		Convey("When joining an event", func() {
			_, err := client.JoinEvent(context.Background(), ledger.StaticSigner("0xabc"), 1, decimal.New(1, -2))

			Convey("Then ErrSubmitFailed wraps the gateway message", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "insufficient funds")
			})
		})
	})
}
