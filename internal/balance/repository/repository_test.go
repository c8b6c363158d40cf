package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/balance/domain"
	"github.com/smallbiznis/creatorpay/internal/balance/repository"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebitUser(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	repo := repository.Provide(clock.New())

	userID := node.Generate()
	dbtest.SeedUser(t, db, userID, "100")

	require.NoError(t, repo.DebitUser(ctx, db, userID, decimal.NewFromInt(20)))
	assert.True(t, dbtest.Balance(t, db, "users", userID).Equal(decimal.NewFromInt(80)))

	err := repo.DebitUser(ctx, db, userID, decimal.NewFromInt(81))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.True(t, dbtest.Balance(t, db, "users", userID).Equal(decimal.NewFromInt(80)))

	err = repo.DebitUser(ctx, db, node.Generate(), decimal.NewFromInt(1))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	require.ErrorIs(t, repo.DebitUser(ctx, db, userID, decimal.Zero), domain.ErrInvalidAmount)
}

func TestConcurrentCreditsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	repo := repository.Provide(clock.New())

	performerID := node.Generate()
	dbtest.SeedPerformer(t, db, performerID, "10", "100")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.CreditPerformer(ctx, db, performerID, decimal.RequireFromString("1.5")))
		}()
	}
	wg.Wait()

	assert.True(t, dbtest.Balance(t, db, "performers", performerID).Equal(decimal.NewFromInt(15)))
}

func TestAdjustSubscribersFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	repo := repository.Provide(clock.New())

	performerID := node.Generate()
	dbtest.SeedPerformer(t, db, performerID, "10", "100")

	require.NoError(t, repo.AdjustSubscribers(ctx, db, performerID, 1))
	require.NoError(t, repo.AdjustSubscribers(ctx, db, performerID, -1))
	require.NoError(t, repo.AdjustSubscribers(ctx, db, performerID, -1))
	dbtest.AssertCount(t, db, "SELECT stats_subscribers FROM performers WHERE id = ?", 0, performerID)
}

func TestUpdatesStampClockTime(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	at := time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC)
	repo := repository.Provide(clock.NewFakeClock(at))

	userID, performerID := node.Generate(), node.Generate()
	dbtest.SeedUser(t, db, userID, "10")
	dbtest.SeedPerformer(t, db, performerID, "5", "50")

	require.NoError(t, repo.DebitUser(ctx, db, userID, decimal.NewFromInt(1)))
	require.NoError(t, repo.CreditPerformer(ctx, db, performerID, decimal.NewFromInt(1)))
	require.NoError(t, repo.AdjustSubscribers(ctx, db, performerID, 1))

	var userStamp, performerStamp time.Time
	require.NoError(t, db.Raw("SELECT updated_at FROM users WHERE id = ?", userID).Scan(&userStamp).Error)
	require.NoError(t, db.Raw("SELECT updated_at FROM performers WHERE id = ?", performerID).Scan(&performerStamp).Error)
	assert.True(t, userStamp.Equal(at), "users.updated_at = %s", userStamp)
	assert.True(t, performerStamp.Equal(at), "performers.updated_at = %s", performerStamp)
}
