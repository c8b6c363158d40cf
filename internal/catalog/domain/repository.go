package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound          = errors.New("user_not_found")
	ErrPerformerNotFound     = errors.New("performer_not_found")
	ErrItemNotFound          = errors.New("item_not_found")
	ErrProductNotFound       = errors.New("product_not_found")
	ErrWalletPackageNotFound = errors.New("wallet_package_not_found")
)

// ItemKind selects the content table for FindItem.
type ItemKind string

const (
	ItemKindVideo ItemKind = "video"
	ItemKindPhoto ItemKind = "photo"
	ItemKindFeed  ItemKind = "feed"
)

// Repository returns nil, nil when a row does not exist.
type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindPerformer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Performer, error)
	FindItem(ctx context.Context, db *gorm.DB, kind ItemKind, id snowflake.ID) (*Item, error)
	FindProducts(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Product, error)
	FindWalletPackage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WalletPackage, error)
	// FindCommissionOverride returns the performer-specific rate for sourceType.
	FindCommissionOverride(ctx context.Context, db *gorm.DB, performerID snowflake.ID, sourceType string) (*decimal.Decimal, error)
}
