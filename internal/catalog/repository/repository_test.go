package repository_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/catalog/domain"
	"github.com/smallbiznis/creatorpay/internal/catalog/repository"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindItemsAndOverrides(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	repo := repository.Provide()

	performerID := node.Generate()
	videoID := node.Generate()
	dbtest.SeedPerformer(t, db, performerID, "9.99", "99.99")
	dbtest.SeedVideo(t, db, videoID, performerID, "4.50")
	dbtest.SeedCommission(t, db, performerID, "video", "0.15")

	video, err := repo.FindItem(ctx, db, domain.ItemKindVideo, videoID)
	require.NoError(t, err)
	require.NotNil(t, video)
	assert.Equal(t, performerID, video.PerformerID)
	assert.True(t, video.Price.Equal(decimal.RequireFromString("4.5")))

	missing, err := repo.FindItem(ctx, db, domain.ItemKindPhoto, videoID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	rate, err := repo.FindCommissionOverride(ctx, db, performerID, "video")
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.15")))

	none, err := repo.FindCommissionOverride(ctx, db, performerID, "tip")
	require.NoError(t, err)
	assert.Nil(t, none)

	performer, err := repo.FindPerformer(ctx, db, performerID)
	require.NoError(t, err)
	assert.True(t, performer.MonthlyPrice.Equal(decimal.RequireFromString("9.99")))
}
