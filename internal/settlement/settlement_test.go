package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	gatewayconfigdomain "github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"github.com/smallbiznis/creatorpay/internal/testkit"
	walletdomain "github.com/smallbiznis/creatorpay/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func seedPair(t *testing.T, k *testkit.Kit, balance string) (snowflake.ID, snowflake.ID) {
	t.Helper()
	userID := k.Node.Generate()
	performerID := k.Node.Generate()
	dbtest.SeedUser(t, k.DB, userID, balance)
	dbtest.SeedPerformer(t, k.DB, performerID, "9.99", "99.00")
	return userID, performerID
}

func configure(t *testing.T, k *testkit.Kit, gateway string, cfg map[string]any) {
	t.Helper()
	_, err := k.GatewayConfigs.Upsert(context.Background(), gatewayconfigdomain.UpsertRequest{Gateway: gateway, Config: cfg})
	require.NoError(t, err)
}

func ccbillConfig() map[string]any {
	return map[string]any{"client_accnum": "900100", "client_subacc": "0000", "flexform_id": "ff-test", "salt": "pepper"}
}

func findSubscription(t *testing.T, db *gorm.DB, performerID, userID snowflake.ID) subscriptiondomain.Subscription {
	t.Helper()
	var sub subscriptiondomain.Subscription
	require.NoError(t, db.Where("performer_id = ? AND user_id = ?", performerID, userID).First(&sub).Error)
	return sub
}

func TestGatewaySubscriptionSettlesOnce(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, performerID := seedPair(t, k, "0")
	configure(t, k, paymentdomain.GatewayCCBill, ccbillConfig())

	order, err := k.Orders.CreateSubscriptionOrder(ctx, orderdomain.CreateSubscriptionOrderRequest{
		UserID: userID, PerformerID: performerID, Period: orderdomain.PeriodMonthly, Gateway: paymentdomain.GatewayCCBill,
	})
	require.NoError(t, err)
	checkout, err := k.Payments.Checkout(ctx, paymentdomain.CheckoutInput{OrderID: order.ID, BuyerID: userID, Gateway: paymentdomain.GatewayCCBill})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.TransactionStatusPending, checkout.Status)
	assert.NotEmpty(t, checkout.PaymentURL)

	moved, err := k.Payments.MarkSucceeded(ctx, checkout.TransactionID, paymentdomain.SuccessInput{
		SubscriptionRef: "0123456789",
		Source:          paymentdomain.SourceWebhook,
		OccurredAt:      testkit.Start,
	})
	require.NoError(t, err)
	require.True(t, moved)
	k.Settle(t)

	paid, err := k.Orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPaid, paid.Status)

	sub := findSubscription(t, k.DB, performerID, userID)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.Equal(t, "0123456789", sub.SubscriptionRef)
	assert.WithinDuration(t, testkit.Start.AddDate(0, 0, 30), sub.ExpiredAt, time.Second)
	assert.True(t, dbtest.Balance(t, k.DB, "performers", performerID).Equal(dec("7.99")))
	assert.Len(t, k.Mail.Messages(), 4)
	assert.Empty(t, k.Tasks.IDs(), "ccbill renews on its own schedule")

	// a redelivered success is a no-op
	moved, err = k.Payments.MarkSucceeded(ctx, checkout.TransactionID, paymentdomain.SuccessInput{Source: paymentdomain.SourceReconcile})
	require.NoError(t, err)
	assert.False(t, moved)
	k.Settle(t)
	assert.True(t, dbtest.Balance(t, k.DB, "performers", performerID).Equal(dec("7.99")))
	dbtest.AssertCount(t, k.DB, "SELECT COUNT(1) FROM earnings", 1)
	dbtest.AssertCount(t, k.DB, "SELECT COUNT(1) FROM outbox_events WHERE event_type = 'order.paid'", 1)
}

func TestWalletCheckoutWithCoupon(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, performerID := seedPair(t, k, "50")
	couponID := k.Node.Generate()
	dbtest.SeedCoupon(t, k.DB, couponID, "WELCOME10", "0.1", 5, nil)

	order, err := k.Orders.CreateSubscriptionOrder(ctx, orderdomain.CreateSubscriptionOrderRequest{
		UserID: userID, PerformerID: performerID, Period: orderdomain.PeriodMonthly,
		CouponCode: "WELCOME10", Gateway: paymentdomain.GatewayWallet,
	})
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(dec("8.99")), "discounted total %s", order.TotalPrice)

	checkout, err := k.Payments.Checkout(ctx, paymentdomain.CheckoutInput{OrderID: order.ID, BuyerID: userID})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.TransactionStatusSuccess, checkout.Status)
	assert.True(t, dbtest.Balance(t, k.DB, "users", userID).Equal(dec("41.01")))

	k.Settle(t)
	k.Settle(t)
	dbtest.AssertCount(t, k.DB, "SELECT COUNT(1) FROM coupons WHERE id = ? AND used_count = 1", 1, couponID)
	dbtest.AssertCount(t, k.DB, "SELECT COUNT(1) FROM subscriptions WHERE performer_id = ? AND status = ?", 1, performerID, subscriptiondomain.StatusActive)
	// 8.99 at 20% is 7.192
	assert.True(t, dbtest.Balance(t, k.DB, "performers", performerID).Equal(dec("7.19")))
}

func TestWalletPackageCreditsTokens(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, _ := seedPair(t, k, "0")
	packageID := k.Node.Generate()
	dbtest.SeedWalletPackage(t, k.DB, packageID, "20.00", "25.00")
	configure(t, k, paymentdomain.GatewayCCBill, ccbillConfig())

	order, err := k.Orders.CreateWalletPackageOrder(ctx, orderdomain.CreateWalletPackageOrderRequest{
		UserID: userID, PackageID: packageID, Gateway: paymentdomain.GatewayCCBill,
	})
	require.NoError(t, err)
	checkout, err := k.Payments.Checkout(ctx, paymentdomain.CheckoutInput{OrderID: order.ID, BuyerID: userID, Gateway: paymentdomain.GatewayCCBill})
	require.NoError(t, err)
	_, err = k.Payments.MarkSucceeded(ctx, checkout.TransactionID, paymentdomain.SuccessInput{Source: paymentdomain.SourceWebhook})
	require.NoError(t, err)
	k.Settle(t)

	assert.True(t, dbtest.Balance(t, k.DB, "users", userID).Equal(dec("25")))
	dbtest.AssertCount(t, k.DB, "SELECT COUNT(1) FROM earnings", 0)
}

func TestWalletTopupCreditsPrice(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, _ := seedPair(t, k, "1")
	configure(t, k, paymentdomain.GatewayCCBill, ccbillConfig())

	order, err := k.Orders.CreateWalletTopupOrder(ctx, orderdomain.CreateWalletTopupOrderRequest{
		UserID: userID, Amount: dec("42.50"), Gateway: paymentdomain.GatewayCCBill,
	})
	require.NoError(t, err)
	checkout, err := k.Payments.Checkout(ctx, paymentdomain.CheckoutInput{OrderID: order.ID, BuyerID: userID, Gateway: paymentdomain.GatewayCCBill})
	require.NoError(t, err)
	_, err = k.Payments.MarkSucceeded(ctx, checkout.TransactionID, paymentdomain.SuccessInput{Source: paymentdomain.SourceWebhook})
	require.NoError(t, err)
	k.Settle(t)

	assert.True(t, dbtest.Balance(t, k.DB, "users", userID).Equal(dec("43.50")))
}

func TestRecurringGatewaySchedulesAndCancels(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, performerID := seedPair(t, k, "0")
	configure(t, k, paymentdomain.GatewayEmerchantpay, map[string]any{"username": "user", "password": "secret"})

	var sub *subscriptiondomain.Subscription
	err := k.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, _, err = k.Subscriptions.ApplyPaymentTx(ctx, tx, subscriptiondomain.PaymentApplied{
			PerformerID:     performerID,
			UserID:          userID,
			Type:            subscriptiondomain.TypeMonthly,
			Gateway:         paymentdomain.GatewayEmerchantpay,
			SubscriptionRef: "emp-ref-1",
			TransactionID:   k.Node.Generate(),
			PaidAt:          testkit.Start,
		})
		return err
	})
	require.NoError(t, err)
	k.Settle(t)

	require.Len(t, k.Tasks.IDs(), 1)
	assert.Contains(t, k.Tasks.IDs()[0], "20260701")

	_, err = k.Subscriptions.Cancel(ctx, subscriptiondomain.CancelRequest{SubscriptionID: sub.ID, ActorID: userID})
	require.NoError(t, err)
	k.Settle(t)

	assert.Empty(t, k.Tasks.IDs())
	assert.Len(t, k.Tasks.Deleted, 1)
	assert.Equal(t, subscriptiondomain.StatusDeactivated, findSubscription(t, k.DB, performerID, userID).Status)
}

func TestSettingsUpdateReloadsCommission(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, performerID := seedPair(t, k, "100")

	require.NoError(t, k.Settings.Update(ctx, "commission.tip", "0.5"))
	k.Settle(t)
	assert.True(t, k.Settings.Current().Commissions["tip"].Equal(dec("0.5")))

	_, err := k.Wallet.Tip(ctx, walletdomain.TipRequest{UserID: userID, PerformerID: performerID, Amount: dec("10")})
	require.NoError(t, err)
	k.Settle(t)
	assert.True(t, dbtest.Balance(t, k.DB, "performers", performerID).Equal(dec("5")))
}
