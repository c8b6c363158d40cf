package webhook_test

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	gatewayconfigdomain "github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters/verotel"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"github.com/smallbiznis/creatorpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	k           *testkit.Kit
	userID      snowflake.ID
	performerID snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	k := testkit.New(t)
	f := fixture{k: k, userID: k.Node.Generate(), performerID: k.Node.Generate()}
	dbtest.SeedUser(t, k.DB, f.userID, "0")
	dbtest.SeedPerformer(t, k.DB, f.performerID, "9.99", "99.00")

	ctx := context.Background()
	_, err := k.GatewayConfigs.Upsert(ctx, gatewayconfigdomain.UpsertRequest{Gateway: paymentdomain.GatewayCCBill, Config: map[string]any{
		"client_accnum": "900100", "client_subacc": "0000", "flexform_id": "ff-test", "salt": "pepper",
	}})
	require.NoError(t, err)
	_, err = k.GatewayConfigs.Upsert(ctx, gatewayconfigdomain.UpsertRequest{Gateway: paymentdomain.GatewayVerotel, Config: map[string]any{
		"shop_id": "55", "signature_key": "verokey",
	}})
	require.NoError(t, err)
	return f
}

// pendingSubscription opens a monthly subscription checkout on gateway.
func (f fixture) pendingSubscription(t *testing.T, gateway string) snowflake.ID {
	t.Helper()
	ctx := context.Background()
	order, err := f.k.Orders.CreateSubscriptionOrder(ctx, orderdomain.CreateSubscriptionOrderRequest{
		UserID: f.userID, PerformerID: f.performerID, Period: orderdomain.PeriodMonthly, Gateway: gateway,
	})
	require.NoError(t, err)
	checkout, err := f.k.Payments.Checkout(ctx, paymentdomain.CheckoutInput{OrderID: order.ID, BuyerID: f.userID})
	require.NoError(t, err)
	return checkout.TransactionID
}

func ccbillSale(txnID snowflake.ID, ccTxn string) paymentdomain.InboundRequest {
	return paymentdomain.InboundRequest{
		Method: "POST",
		Query:  url.Values{"eventType": {"NewSaleSuccess"}},
		Body:   []byte(`{"X-transactionId":"` + txnID.String() + `","subscriptionId":"0101","transactionId":"` + ccTxn + `","billedInitialPrice":"9.99"}`),
	}
}

func ccbillRenewal(ref, ccTxn, amount string) paymentdomain.InboundRequest {
	return paymentdomain.InboundRequest{
		Method: "POST",
		Query:  url.Values{"eventType": {"RenewalSuccess"}},
		Form:   url.Values{"subscriptionId": {ref}, "billedAmount": {amount}, "transactionId": {ccTxn}},
	}
}

func TestCCBillSaleAppliedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txnID := f.pendingSubscription(t, paymentdomain.GatewayCCBill)

	for i := 0; i < 3; i++ {
		ack, err := f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, ccbillSale(txnID, "cc-1"))
		require.NoError(t, err)
		require.NotNil(t, ack)
	}
	f.k.Settle(t)

	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL", 1)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM transactions WHERE status = 'success' AND subscription_ref = '0101'", 1)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM earnings", 1)
	assert.True(t, dbtest.Balance(t, f.k.DB, "performers", f.performerID).Equal(decimal.RequireFromString("7.99")))

	// a second delivery of the same sale under a new gateway id is a replay of the transaction
	_, err := f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, ccbillSale(txnID, "cc-2"))
	require.NoError(t, err)
	f.k.Settle(t)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM earnings", 1)
}

func TestUnknownTransactionLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, ccbillSale(f.k.Node.Generate(), "cc-9"))
	require.ErrorIs(t, err, paymentdomain.ErrTransactionNotFound)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM payment_events", 0)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM outbox_events", 0)

	// the gateway retries once the transaction exists
	txnID := f.pendingSubscription(t, paymentdomain.GatewayCCBill)
	_, err = f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, ccbillSale(txnID, "cc-9"))
	require.NoError(t, err)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL", 1)
}

func TestConcurrentDeliveriesSettleOnce(t *testing.T) {
	tests := []struct {
		name       string
		deliveries func(txnID snowflake.ID) []paymentdomain.InboundRequest
	}{
		{
			name: "same event id",
			deliveries: func(txnID snowflake.ID) []paymentdomain.InboundRequest {
				return []paymentdomain.InboundRequest{
					ccbillSale(txnID, "cc-1"), ccbillSale(txnID, "cc-1"),
					ccbillSale(txnID, "cc-1"), ccbillSale(txnID, "cc-1"),
				}
			},
		},
		{
			name: "different event ids",
			deliveries: func(txnID snowflake.ID) []paymentdomain.InboundRequest {
				return []paymentdomain.InboundRequest{
					ccbillSale(txnID, "cc-1"), ccbillSale(txnID, "cc-2"),
					ccbillSale(txnID, "cc-3"), ccbillSale(txnID, "cc-4"),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			txnID := f.pendingSubscription(t, paymentdomain.GatewayCCBill)
			deliveries := tt.deliveries(txnID)

			var wg sync.WaitGroup
			start := make(chan struct{})
			errs := make([]error, len(deliveries))
			for i, req := range deliveries {
				wg.Add(1)
				go func(i int, req paymentdomain.InboundRequest) {
					defer wg.Done()
					<-start
					_, errs[i] = f.k.Webhooks.IngestWebhook(context.Background(), paymentdomain.GatewayCCBill, req)
				}(i, req)
			}
			close(start)
			wg.Wait()
			for _, err := range errs {
				require.NoError(t, err)
			}
			f.k.Settle(t)

			dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM transactions WHERE status = 'success'", 1)
			dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM outbox_events WHERE event_type = 'transaction.succeeded'", 1)
			dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM earnings", 1)
			dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NULL", 0)
			assert.True(t, dbtest.Balance(t, f.k.DB, "performers", f.performerID).Equal(decimal.RequireFromString("7.99")))
		})
	}
}

func TestIgnoredEventAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ack, err := f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, paymentdomain.InboundRequest{
		Query: url.Values{"eventType": {"Cancellation"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "OK", string(ack.Body))
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM payment_events", 0)
}

func TestUnknownGateway(t *testing.T) {
	f := newFixture(t)
	_, err := f.k.Webhooks.IngestWebhook(context.Background(), "wallet", paymentdomain.InboundRequest{})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
	_, err = f.k.Webhooks.IngestWebhook(context.Background(), paymentdomain.GatewayEmerchantpay, paymentdomain.InboundRequest{})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound, "no configuration stored")
}

func TestVerotelSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txnID := f.pendingSubscription(t, paymentdomain.GatewayVerotel)

	postback := url.Values{
		"type":          {"subscription"},
		"event":         {"initial"},
		"saleID":        {"S-1"},
		"referenceID":   {txnID.String()},
		"priceAmount":   {"9.99"},
		"transactionID": {"T-1"},
	}
	postback.Set("signature", verotel.Sign("wrong-key", postback))
	_, err := f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayVerotel, paymentdomain.InboundRequest{Query: postback})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM payment_events", 0)

	postback.Set("signature", verotel.Sign("verokey", postback))
	ack, err := f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayVerotel, paymentdomain.InboundRequest{Query: postback})
	require.NoError(t, err)
	assert.Equal(t, "OK", string(ack.Body))
	f.k.Settle(t)

	sub, err := f.k.SubRepo.FindByRef(ctx, f.k.DB, paymentdomain.GatewayVerotel, "S-1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.Contains(t, string(sub.Meta), "S-1", "the postback is kept on the subscription")
}

func TestRenewalExtendsKnownSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txnID := f.pendingSubscription(t, paymentdomain.GatewayCCBill)
	_, err := f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, ccbillSale(txnID, "cc-1"))
	require.NoError(t, err)
	f.k.Settle(t)

	before, err := f.k.SubRepo.FindByRef(ctx, f.k.DB, paymentdomain.GatewayCCBill, "0101")
	require.NoError(t, err)
	require.NotNil(t, before)

	// the gateway rebills when the period runs out
	f.k.Clock.Set(before.ExpiredAt)
	for i := 0; i < 2; i++ {
		_, err = f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, ccbillRenewal("0101", "cc-2", "9.99"))
		require.NoError(t, err)
	}
	f.k.Settle(t)

	after, err := f.k.SubRepo.FindByRef(ctx, f.k.DB, paymentdomain.GatewayCCBill, "0101")
	require.NoError(t, err)
	assert.Equal(t, before.ExpiredAt.AddDate(0, 0, 30).Unix(), after.ExpiredAt.Unix())
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM transactions WHERE status = 'success'", 2)
	assert.True(t, dbtest.Balance(t, f.k.DB, "performers", f.performerID).Equal(decimal.RequireFromString("15.98")))
}

func TestRenewalSelfHealsMissingSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txnID := f.pendingSubscription(t, paymentdomain.GatewayCCBill)

	// the initial sale settled but its subscription row is gone
	_, err := f.k.Payments.MarkSucceeded(ctx, txnID, paymentdomain.SuccessInput{SubscriptionRef: "0202", Source: paymentdomain.SourceWebhook})
	require.NoError(t, err)
	f.k.Settle(t)
	require.NoError(t, f.k.DB.Exec("DELETE FROM subscriptions").Error)

	_, err = f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, ccbillRenewal("0202", "cc-3", "9.99"))
	require.NoError(t, err)
	f.k.Settle(t)

	sub, err := f.k.SubRepo.FindByRef(ctx, f.k.DB, paymentdomain.GatewayCCBill, "0202")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, f.userID, sub.UserID)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
}

func TestRenewalForUnknownReferenceIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.k.Webhooks.IngestWebhook(ctx, paymentdomain.GatewayCCBill, ccbillRenewal("9999", "cc-4", "9.99"))
	require.NoError(t, err)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM transactions", 0)
	dbtest.AssertCount(t, f.k.DB, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL", 1)
}
