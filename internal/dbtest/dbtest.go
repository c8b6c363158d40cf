// Package dbtest provides an in-memory sqlite database with the creatorpay schema
// and fixtures for package tests.
package dbtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var dbCounter int64

// Open returns a fresh shared-cache in-memory database with the full schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	n := atomic.AddInt64(&dbCounter, 1)
	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), n)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps sqlite writes serialized
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Node returns a snowflake node for fixtures.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return node
}

// AssertCount fails the test when the row count for query differs from want.
func AssertCount(t testing.TB, db *gorm.DB, query string, want int64, args ...any) {
	t.Helper()
	var got int64
	if err := db.Raw(query, args...).Scan(&got).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d rows for %q, got %d", want, query, got)
	}
}

// Balance reads a scalar balance column.
func Balance(t testing.TB, db *gorm.DB, table string, id snowflake.ID) decimal.Decimal {
	t.Helper()
	var raw string
	if err := db.Raw(fmt.Sprintf("SELECT CAST(balance AS TEXT) FROM %s WHERE id = ?", table), id).Scan(&raw).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse balance %q: %v", raw, err)
	}
	return value
}

// AgeTransaction moves a transaction's created_at into the past.
func AgeTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID, createdAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transactions SET created_at = ?, updated_at = ? WHERE id = ?`,
		createdAt.UTC(), createdAt.UTC(), id,
	).Error
}
