package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"github.com/smallbiznis/creatorpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func apply(t *testing.T, k *testkit.Kit, in subscriptiondomain.PaymentApplied) (*subscriptiondomain.Subscription, bool) {
	t.Helper()
	var (
		sub       *subscriptiondomain.Subscription
		activated bool
	)
	err := k.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, activated, err = k.Subscriptions.ApplyPaymentTx(context.Background(), tx, in)
		return err
	})
	require.NoError(t, err)
	return sub, activated
}

func subscribers(t *testing.T, k *testkit.Kit, performerID snowflake.ID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, k.DB.Raw("SELECT stats_subscribers FROM performers WHERE id = ?", performerID).Scan(&n).Error)
	return n
}

func seedPair(t *testing.T, k *testkit.Kit) (snowflake.ID, snowflake.ID) {
	t.Helper()
	userID, performerID := k.Node.Generate(), k.Node.Generate()
	dbtest.SeedUser(t, k.DB, userID, "0")
	dbtest.SeedPerformer(t, k.DB, performerID, "9.99", "99.00")
	return userID, performerID
}

func TestApplyPaymentActivatesOnce(t *testing.T) {
	k := testkit.New(t)
	userID, performerID := seedPair(t, k)
	txID := k.Node.Generate()

	in := subscriptiondomain.PaymentApplied{
		PerformerID:   performerID,
		UserID:        userID,
		Type:          subscriptiondomain.TypeMonthly,
		Gateway:       paymentdomain.GatewayWallet,
		TransactionID: txID,
		PaidAt:        testkit.Start,
	}
	sub, activated := apply(t, k, in)
	assert.True(t, activated)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	assert.WithinDuration(t, testkit.Start.AddDate(0, 0, 30), sub.ExpiredAt, time.Second)
	assert.Equal(t, int64(1), subscribers(t, k, performerID))

	// the same payment settled twice changes nothing
	_, activated = apply(t, k, in)
	assert.False(t, activated)
	assert.Equal(t, int64(1), subscribers(t, k, performerID))
	dbtest.AssertCount(t, k.DB, "SELECT COUNT(1) FROM outbox_events WHERE event_type = 'subscription.activated'", 1)
}

func TestApplyPaymentNeverShortensExpiry(t *testing.T) {
	k := testkit.New(t)
	userID, performerID := seedPair(t, k)

	yearly, _ := apply(t, k, subscriptiondomain.PaymentApplied{
		PerformerID: performerID, UserID: userID, Type: subscriptiondomain.TypeYearly,
		Gateway: paymentdomain.GatewayWallet, TransactionID: k.Node.Generate(), PaidAt: testkit.Start,
	})
	yearEnd := yearly.ExpiredAt

	renewed, activated := apply(t, k, subscriptiondomain.PaymentApplied{
		PerformerID: performerID, UserID: userID, Type: subscriptiondomain.TypeMonthly,
		Gateway: paymentdomain.GatewayWallet, TransactionID: k.Node.Generate(), PaidAt: testkit.Start.AddDate(0, 1, 0),
	})
	assert.False(t, activated)
	assert.WithinDuration(t, yearEnd, renewed.ExpiredAt, time.Second)
	assert.Equal(t, subscriptiondomain.TypeMonthly, renewed.SubscriptionType)
	assert.Equal(t, int64(1), subscribers(t, k, performerID))
}

func TestApplyPaymentStoresGatewayPayload(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, performerID := seedPair(t, k)

	first := datatypes.JSON(`{"body":"{\"subscriptionId\":\"0101\"}"}`)
	sub, _ := apply(t, k, subscriptiondomain.PaymentApplied{
		PerformerID: performerID, UserID: userID, Type: subscriptiondomain.TypeMonthly,
		Gateway: paymentdomain.GatewayCCBill, SubscriptionRef: "0101",
		TransactionID: k.Node.Generate(), PaidAt: testkit.Start, Meta: first,
	})
	stored, err := k.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(stored.Meta))

	// a payment without a payload keeps the last one
	apply(t, k, subscriptiondomain.PaymentApplied{
		PerformerID: performerID, UserID: userID, Type: subscriptiondomain.TypeMonthly,
		Gateway: paymentdomain.GatewayCCBill, TransactionID: k.Node.Generate(), PaidAt: testkit.Start.AddDate(0, 0, 30),
	})
	stored, err = k.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(stored.Meta))

	renewal := datatypes.JSON(`{"form":{"transactionId":["cc-2"]}}`)
	apply(t, k, subscriptiondomain.PaymentApplied{
		PerformerID: performerID, UserID: userID, Type: subscriptiondomain.TypeMonthly,
		Gateway: paymentdomain.GatewayCCBill, TransactionID: k.Node.Generate(), PaidAt: testkit.Start.AddDate(0, 0, 60), Meta: renewal,
	})
	stored, err = k.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(renewal), string(stored.Meta))
}

func TestApplyPaymentRejectsInvalidInput(t *testing.T) {
	k := testkit.New(t)
	err := k.DB.Transaction(func(tx *gorm.DB) error {
		_, _, err := k.Subscriptions.ApplyPaymentTx(context.Background(), tx, subscriptiondomain.PaymentApplied{
			PerformerID: k.Node.Generate(), UserID: k.Node.Generate(), Type: "weekly",
		})
		return err
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrInvalidSubscription)
}

func TestCancelWalletSubscription(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, performerID := seedPair(t, k)
	sub, _ := apply(t, k, subscriptiondomain.PaymentApplied{
		PerformerID: performerID, UserID: userID, Type: subscriptiondomain.TypeMonthly,
		Gateway: paymentdomain.GatewayWallet, TransactionID: k.Node.Generate(), PaidAt: testkit.Start,
	})

	_, err := k.Subscriptions.Cancel(ctx, subscriptiondomain.CancelRequest{SubscriptionID: sub.ID, ActorID: k.Node.Generate()})
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound, "strangers cannot cancel")

	cancelled, err := k.Subscriptions.Cancel(ctx, subscriptiondomain.CancelRequest{SubscriptionID: sub.ID, ActorID: performerID})
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusDeactivated, cancelled.Status)
	assert.Equal(t, int64(0), subscribers(t, k, performerID))
	dbtest.AssertCount(t, k.DB, "SELECT COUNT(1) FROM outbox_events WHERE event_type = 'subscription.deactivated'", 1)

	_, err = k.Subscriptions.Cancel(ctx, subscriptiondomain.CancelRequest{SubscriptionID: sub.ID, ActorID: userID})
	require.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestCancelKeepsRowWhenGatewayRefuses(t *testing.T) {
	ctx := context.Background()
	k := testkit.New(t)
	userID, performerID := seedPair(t, k)
	sub, _ := apply(t, k, subscriptiondomain.PaymentApplied{
		PerformerID: performerID, UserID: userID, Type: subscriptiondomain.TypeMonthly,
		Gateway: paymentdomain.GatewayCCBill, SubscriptionRef: "0123456789",
		TransactionID: k.Node.Generate(), PaidAt: testkit.Start,
	})

	// no ccbill credentials are configured
	_, err := k.Subscriptions.Cancel(ctx, subscriptiondomain.CancelRequest{SubscriptionID: sub.ID, ActorID: userID})
	require.Error(t, err)

	current, err := k.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, current.Status)
	assert.Equal(t, int64(1), subscribers(t, k, performerID))
}
