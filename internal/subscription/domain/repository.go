package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	// FindByPairForUpdate locks the (performer, user) row on postgres.
	FindByPairForUpdate(ctx context.Context, db *gorm.DB, performerID, userID snowflake.ID) (*Subscription, error)
	FindByRef(ctx context.Context, db *gorm.DB, gateway, ref string) (*Subscription, error)
	// Deactivate is an active to deactivated compare-and-set.
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
