package settings_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	"github.com/smallbiznis/creatorpay/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHolderReadsFileAndDatabaseOverlay(t *testing.T) {
	db := dbtest.Open(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
settings:
  commissions:
    video: 0.3
  tip:
    min: 2
    max: 50
`), 0o600))

	holder, err := settings.NewHolder(settings.Params{DB: db, Log: zap.NewNop(), Config: config.Config{SettingsPath: path}})
	require.NoError(t, err)

	rate, ok := holder.Get().Commission("video")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, holder.Get().Tip.Max.Equal(decimal.NewFromInt(50)))

	require.NoError(t, settings.Set(context.Background(), db, "commission.video", "0.25", time.Now()))
	before := holder.Get().Version
	require.NoError(t, holder.Reload(context.Background(), nil))

	rate, _ = holder.Get().Commission("video")
	assert.True(t, rate.Equal(decimal.RequireFromString("0.25")))
	assert.Greater(t, holder.Get().Version, before)
}

func TestSetRejectsOutOfRangeCommission(t *testing.T) {
	db := dbtest.Open(t)
	err := settings.Set(context.Background(), db, "commission.tip", "1.5", time.Now())
	require.ErrorIs(t, err, settings.ErrInvalidSettings)
	dbtest.AssertCount(t, db, "SELECT COUNT(1) FROM settings", 0)
}

func TestBoundsContains(t *testing.T) {
	b := settings.Bounds{Min: decimal.NewFromInt(5), Max: decimal.NewFromInt(300)}
	assert.True(t, b.Contains(decimal.NewFromInt(5)))
	assert.True(t, b.Contains(decimal.NewFromInt(300)))
	assert.False(t, b.Contains(decimal.RequireFromString("300.01")))
	assert.False(t, b.Contains(decimal.NewFromInt(4)))

	open := settings.Bounds{Min: decimal.NewFromInt(1)}
	assert.True(t, open.Contains(decimal.NewFromInt(1_000_000)))
}

func TestDefaultsCarrySiteCommissions(t *testing.T) {
	rate, ok := settings.Defaults().Commission("performer_subscription")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.2")))
}
