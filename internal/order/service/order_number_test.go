package service

import (
	"context"
	"testing"
	"time"

	catalogrepo "github.com/smallbiznis/creatorpay/internal/catalog/repository"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	"github.com/smallbiznis/creatorpay/internal/order/domain"
	"github.com/smallbiznis/creatorpay/internal/order/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// blindRepo never sees an existing number, as when two orders race.
type blindRepo struct {
	domain.Repository
}

func (blindRepo) OrderNumberExists(context.Context, *gorm.DB, string) (bool, error) {
	return false, nil
}

func sequence(numbers ...string) func(time.Time) (string, error) {
	i := 0
	return func(time.Time) (string, error) {
		n := numbers[i%len(numbers)]
		i++
		return n, nil
	}
}

func TestCreateRetriesTakenOrderNumber(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	node := dbtest.Node(t)
	userID, performerID := node.Generate(), node.Generate()
	dbtest.SeedUser(t, conn, userID, "0")
	dbtest.SeedPerformer(t, conn, performerID, "9.99", "99.00")

	svc, err := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		GenID:   node,
		Config:  config.Config{NonWalletCeiling: "300.00"},
		Repo:    blindRepo{Repository: repository.Provide()},
		Catalog: catalogrepo.Provide(),
	})
	require.NoError(t, err)
	s := svc.(*Service)
	req := domain.CreateSubscriptionOrderRequest{UserID: userID, PerformerID: performerID, Period: domain.PeriodMonthly}

	s.newOrderNumber = sequence("CP0000000001")
	first, err := s.CreateSubscriptionOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "CP0000000001", first.OrderNumber)

	s.newOrderNumber = sequence("CP0000000001", "CP0000000002")
	second, err := s.CreateSubscriptionOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "CP0000000002", second.OrderNumber)
	dbtest.AssertCount(t, conn, "SELECT COUNT(1) FROM orders", 2)
	dbtest.AssertCount(t, conn, "SELECT COUNT(1) FROM order_details", 2)

	s.newOrderNumber = sequence("CP0000000001")
	_, err = s.CreateSubscriptionOrder(ctx, req)
	require.ErrorIs(t, err, domain.ErrOrderNumberExhausted)
	dbtest.AssertCount(t, conn, "SELECT COUNT(1) FROM orders", 2)
}
