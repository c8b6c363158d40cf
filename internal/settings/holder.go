package settings

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fileSettings struct {
	Commissions map[string]float64 `mapstructure:"commissions"`
	Tip         fileBounds         `mapstructure:"tip"`
	WalletTopup fileBounds         `mapstructure:"walletTopup"`
}

type fileBounds struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

func defaultFileSettings() fileSettings {
	return fileSettings{
		Commissions: map[string]float64{
			"performer_subscription": 0.2,
			"video":                  0.2,
			"photo":                  0.2,
			"product":                0.2,
			"feed":                   0.2,
			"tip":                    0.2,
			"private_chat":           0.2,
		},
		Tip:         fileBounds{Min: 1, Max: 1000},
		WalletTopup: fileBounds{Min: 5, Max: 300},
	}
}

func (f fileSettings) snapshot() Snapshot {
	out := Snapshot{
		Commissions: make(map[string]decimal.Decimal, len(f.Commissions)),
		Tip:         Bounds{Min: decimal.NewFromFloat(f.Tip.Min), Max: decimal.NewFromFloat(f.Tip.Max)},
		WalletTopup: Bounds{Min: decimal.NewFromFloat(f.WalletTopup.Min), Max: decimal.NewFromFloat(f.WalletTopup.Max)},
	}
	for source, rate := range f.Commissions {
		out.Commissions[strings.ToLower(source)] = decimal.NewFromFloat(rate)
	}
	return out
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
}

// Holder keeps the current settings snapshot. File defaults are watched with
// fsnotify; database overrides are re-read on Reload.
type Holder struct {
	db      *gorm.DB
	log     *zap.Logger
	base    atomic.Value // Snapshot from the settings file
	current atomic.Value // Snapshot with database overrides applied
	version atomic.Int64
}

func NewHolder(p Params) (*Holder, error) {
	h := &Holder{db: p.DB, log: p.Log.Named("settings")}

	v := viper.New()
	if path := strings.TrimSpace(p.Config.SettingsPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/creatorpay")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	defaults := defaultFileSettings()
	v.SetDefault("settings.commissions", defaults.Commissions)
	v.SetDefault("settings.tip", map[string]float64{"min": defaults.Tip.Min, "max": defaults.Tip.Max})
	v.SetDefault("settings.walletTopup", map[string]float64{"min": defaults.WalletTopup.Min, "max": defaults.WalletTopup.Max})

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
		h.log.Info("settings file not found, using defaults")
	}

	base, err := readFile(v)
	if err != nil {
		return nil, err
	}
	h.base.Store(base)
	if err := h.Reload(context.Background(), nil); err != nil {
		return nil, err
	}

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := readFile(v)
			if err != nil {
				h.log.Warn("settings reload failed", zap.String("file", e.Name), zap.Error(err))
				return
			}
			h.base.Store(updated)
			if err := h.Reload(context.Background(), nil); err != nil {
				h.log.Warn("settings overlay failed", zap.Error(err))
				return
			}
			h.log.Info("settings reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return h, nil
}

// NewStaticHolder builds a holder from a fixed snapshot. Reload keeps applying
// database overrides when db is set.
func NewStaticHolder(db *gorm.DB, snapshot Snapshot) *Holder {
	h := &Holder{db: db, log: zap.NewNop()}
	h.base.Store(snapshot.clone())
	h.version.Store(snapshot.Version)
	h.current.Store(snapshot.clone())
	return h
}

// Defaults returns the built-in snapshot used when no settings file exists.
func Defaults() Snapshot {
	return defaultFileSettings().snapshot()
}

func readFile(v *viper.Viper) (Snapshot, error) {
	// Unmarshal merges per leaf key, so a partial file keeps the other defaults.
	var raw struct {
		Settings fileSettings `mapstructure:"settings"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return Snapshot{}, err
	}
	snap := raw.Settings.snapshot()
	if err := validate(snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Get returns the current snapshot.
func (h *Holder) Get() Snapshot {
	return h.current.Load().(Snapshot)
}

type settingRow struct {
	Key   string `gorm:"column:key"`
	Value string `gorm:"column:value"`
}

// Reload rebuilds the snapshot from the file defaults and the settings table.
// tx may be nil, in which case the holder's own connection is used.
func (h *Holder) Reload(ctx context.Context, tx *gorm.DB) error {
	next := h.base.Load().(Snapshot).clone()

	conn := tx
	if conn == nil {
		conn = h.db
	}
	if conn != nil {
		var rows []settingRow
		if err := conn.WithContext(ctx).Raw(`SELECT key, value FROM settings ORDER BY key`).Scan(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			if err := next.apply(strings.TrimSpace(row.Key), strings.TrimSpace(row.Value)); err != nil {
				h.log.Warn("ignoring invalid setting", zap.String("key", row.Key), zap.Error(err))
			}
		}
	}
	if err := validate(next); err != nil {
		return err
	}

	next.Version = h.version.Add(1)
	h.current.Store(next)
	return nil
}

// Set validates and stores one override using tx.
func Set(ctx context.Context, tx *gorm.DB, key, value string, now time.Time) error {
	candidate := Defaults()
	if err := candidate.apply(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
		return err
	}
	if err := validate(candidate); err != nil {
		return err
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		strings.TrimSpace(key), strings.TrimSpace(value), now.UTC(),
	).Error
}
