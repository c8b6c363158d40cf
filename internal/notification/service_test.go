package notification_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogrepo "github.com/smallbiznis/creatorpay/internal/catalog/repository"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	"github.com/smallbiznis/creatorpay/internal/events"
	"github.com/smallbiznis/creatorpay/internal/notification"
	"github.com/smallbiznis/creatorpay/internal/providers/email"
	"github.com/smallbiznis/creatorpay/internal/providers/pdf"
	"github.com/smallbiznis/creatorpay/internal/testkit"
	walletdomain "github.com/smallbiznis/creatorpay/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPDF struct {
	data pdf.ReceiptData
	err  error
}

func (s *stubPDF) GenerateReceipt(_ context.Context, data pdf.ReceiptData) (io.Reader, error) {
	s.data = data
	if s.err != nil {
		return nil, s.err
	}
	return strings.NewReader("%PDF-1.4"), nil
}

type failingMail struct{ calls int }

func (f *failingMail) Send(context.Context, email.Message) error {
	f.calls++
	return errors.New("smtp down")
}

func newNotifier(k *testkit.Kit, mail email.Provider, receipts pdf.Provider) *notification.Service {
	return notification.NewService(notification.Params{
		Log:       zap.NewNop(),
		Email:     mail,
		PDF:       receipts,
		OrderRepo: k.OrderRepo,
		Catalog:   catalogrepo.Provide(),
	})
}

func seedTip(t *testing.T, k *testkit.Kit) (*walletdomain.Receipt, snowflake.ID, snowflake.ID) {
	t.Helper()
	userID, performerID := k.Node.Generate(), k.Node.Generate()
	dbtest.SeedUser(t, k.DB, userID, "40")
	dbtest.SeedPerformer(t, k.DB, performerID, "9.99", "99.00")
	receipt, err := k.Wallet.Tip(context.Background(), walletdomain.TipRequest{
		UserID:      userID,
		PerformerID: performerID,
		Amount:      decimal.RequireFromString("12.50"),
	})
	require.NoError(t, err)
	return receipt, userID, performerID
}

func TestOrderPaidMailsReceiptAndSale(t *testing.T) {
	k := testkit.New(t)
	receipt, userID, performerID := seedTip(t, k)

	mail := &testkit.Mailbox{}
	receipts := &stubPDF{}
	svc := newNotifier(k, mail, receipts)

	evt := events.Event{
		ID:   k.Node.Generate(),
		Type: events.ChannelOrderPaid,
		Payload: events.OrderPaid{
			OrderID: receipt.Order.ID,
			Gateway: "wallet",
			PaidAt:  testkit.Start,
		},
	}
	require.NoError(t, svc.OrderPaid(context.Background(), k.DB, evt))

	msgs := mail.Messages()
	require.Len(t, msgs, 2)

	buyer := msgs[0]
	assert.Equal(t, []string{"user" + userID.String() + "@example.com"}, buyer.To)
	assert.Equal(t, "order_paid", buyer.Template)
	assert.Equal(t, "12.50", buyer.Data["total"])
	require.Len(t, buyer.Attachments, 1)
	assert.Equal(t, "application/pdf", buyer.Attachments[0].ContentType)
	assert.Equal(t, "receipt-"+receipt.Order.OrderNumber+".pdf", buyer.Attachments[0].Filename)
	assert.Equal(t, "wallet", receipts.data.PaymentMethod)
	require.Len(t, receipts.data.Items, 1)

	seller := msgs[1]
	assert.Equal(t, []string{"performer" + performerID.String() + "@example.com"}, seller.To)
	assert.Equal(t, "performer_sale", seller.Template)
}

func TestOrderPaidSkipsReceiptWhenPDFFails(t *testing.T) {
	k := testkit.New(t)
	receipt, _, _ := seedTip(t, k)

	mail := &testkit.Mailbox{}
	svc := newNotifier(k, mail, &stubPDF{err: errors.New("render failed")})
	evt := events.Event{ID: k.Node.Generate(), Payload: events.OrderPaid{OrderID: receipt.Order.ID, PaidAt: testkit.Start}}
	require.NoError(t, svc.OrderPaid(context.Background(), k.DB, evt))

	msgs := mail.Messages()
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[0].Attachments)
}

func TestDeliveryFailuresAreSwallowed(t *testing.T) {
	k := testkit.New(t)
	receipt, userID, performerID := seedTip(t, k)

	mail := &failingMail{}
	svc := newNotifier(k, mail, nil)
	ctx := context.Background()

	require.NoError(t, svc.OrderPaid(ctx, k.DB, events.Event{
		ID: k.Node.Generate(), Payload: events.OrderPaid{OrderID: receipt.Order.ID, PaidAt: testkit.Start},
	}))
	require.NoError(t, svc.SubscriptionActivated(ctx, k.DB, events.Event{
		ID: k.Node.Generate(),
		Payload: events.SubscriptionChanged{
			UserID: userID, PerformerID: performerID, SubscriptionType: "monthly",
			ExpiredAt: testkit.Start.Add(30 * 24 * time.Hour),
		},
	}))
	assert.Equal(t, 4, mail.calls)

	// missing rows and bad payloads are logged, not retried
	require.NoError(t, svc.OrderPaid(ctx, k.DB, events.Event{ID: k.Node.Generate(), Payload: "{"}))
	require.NoError(t, svc.SubscriptionDeactivated(ctx, k.DB, events.Event{
		ID: k.Node.Generate(), Payload: events.SubscriptionChanged{UserID: k.Node.Generate(), PerformerID: performerID},
	}))
	assert.Equal(t, 4, mail.calls)
}

func TestSubscriptionDeactivatedMailsBothParties(t *testing.T) {
	k := testkit.New(t)
	userID, performerID := k.Node.Generate(), k.Node.Generate()
	dbtest.SeedUser(t, k.DB, userID, "0")
	dbtest.SeedPerformer(t, k.DB, performerID, "9.99", "99.00")

	mail := &testkit.Mailbox{}
	svc := newNotifier(k, mail, nil)
	require.NoError(t, svc.SubscriptionDeactivated(context.Background(), k.DB, events.Event{
		ID: k.Node.Generate(),
		Payload: events.SubscriptionChanged{
			UserID: userID, PerformerID: performerID, SubscriptionType: "yearly",
			ExpiredAt: time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}))

	msgs := mail.Messages()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		assert.Equal(t, "subscription_cancelled", msg.Template)
		assert.Equal(t, "2027-06-01", msg.Data["expired_at"])
	}
}
