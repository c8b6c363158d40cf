package dbtest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func SeedUser(t testing.TB, db *gorm.DB, id snowflake.ID, balance string) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO users (id, username, email, balance, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, "user"+id.String(), "user"+id.String()+"@example.com", decimal.RequireFromString(balance), now, now,
	).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func SeedPerformer(t testing.TB, db *gorm.DB, id snowflake.ID, monthly, yearly string) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO performers (id, username, email, balance, monthly_price, yearly_price, stats_subscribers, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, 0, ?, ?)`,
		id, "performer"+id.String(), "performer"+id.String()+"@example.com",
		decimal.RequireFromString(monthly), decimal.RequireFromString(yearly), now, now,
	).Error; err != nil {
		t.Fatalf("seed performer: %v", err)
	}
}

func SeedCommission(t testing.TB, db *gorm.DB, performerID snowflake.ID, sourceType, commission string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO performer_commissions (performer_id, source_type, commission, updated_at) VALUES (?, ?, ?, ?)`,
		performerID, sourceType, decimal.RequireFromString(commission), time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed commission: %v", err)
	}
}

func SeedVideo(t testing.TB, db *gorm.DB, id, performerID snowflake.ID, price string) {
	t.Helper()
	seedPriced(t, db, "videos", "title", id, performerID, price)
}

func SeedPhoto(t testing.TB, db *gorm.DB, id, performerID snowflake.ID, price string) {
	t.Helper()
	seedPriced(t, db, "photos", "title", id, performerID, price)
}

func SeedFeed(t testing.TB, db *gorm.DB, id, performerID snowflake.ID, price string) {
	t.Helper()
	seedPriced(t, db, "feeds", "text", id, performerID, price)
}

func seedPriced(t testing.TB, db *gorm.DB, table, label string, id, performerID snowflake.ID, price string) {
	t.Helper()
	if err := db.Exec(
		"INSERT INTO "+table+" (id, performer_id, "+label+", price, is_sale, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, performerID, table+" "+id.String(), decimal.RequireFromString(price), true, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed %s: %v", table, err)
	}
}

func SeedProduct(t testing.TB, db *gorm.DB, id, performerID snowflake.ID, productType, price string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO products (id, performer_id, name, description, product_type, price, stock, created_at)
		 VALUES (?, ?, ?, '', ?, ?, 10, ?)`,
		id, performerID, "product "+id.String(), productType, decimal.RequireFromString(price), time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func SeedWalletPackage(t testing.TB, db *gorm.DB, id snowflake.ID, price, tokens string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO wallet_packages (id, name, price, token_amount, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, "package "+id.String(), decimal.RequireFromString(price), decimal.RequireFromString(tokens), true, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed wallet package: %v", err)
	}
}

func SeedCoupon(t testing.TB, db *gorm.DB, id snowflake.ID, code, value string, limit int64, expiredAt *time.Time) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO coupons (id, code, value, expired_at, number_of_use_limit, used_count, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, code, decimal.RequireFromString(value), expiredAt, limit, true, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
}
