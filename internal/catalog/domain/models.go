package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Username  string          `gorm:"column:username" json:"username"`
	Email     string          `gorm:"column:email" json:"email"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2)" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

type Performer struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	Username         string          `gorm:"column:username" json:"username"`
	Email            string          `gorm:"column:email" json:"email"`
	Balance          decimal.Decimal `gorm:"type:decimal(20,2)" json:"balance"`
	MonthlyPrice     decimal.Decimal `gorm:"type:decimal(20,2)" json:"monthly_price"`
	YearlyPrice      decimal.Decimal `gorm:"type:decimal(20,2)" json:"yearly_price"`
	StatsSubscribers int64           `gorm:"column:stats_subscribers" json:"stats_subscribers"`
}

// Item is a single priced piece of content: a video, photo or feed post.
type Item struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	PerformerID snowflake.ID    `gorm:"column:performer_id" json:"performer_id"`
	Title       string          `gorm:"column:title" json:"title"`
	Price       decimal.Decimal `gorm:"type:decimal(20,2)" json:"price"`
	IsSale      bool            `gorm:"column:is_sale" json:"is_sale"`
}

type ProductType string

const (
	ProductTypeDigital  ProductType = "digital"
	ProductTypePhysical ProductType = "physical"
)

type Product struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	PerformerID snowflake.ID    `gorm:"column:performer_id" json:"performer_id"`
	Name        string          `gorm:"column:name" json:"name"`
	Description string          `gorm:"column:description" json:"description"`
	ProductType ProductType     `gorm:"column:product_type" json:"product_type"`
	Price       decimal.Decimal `gorm:"type:decimal(20,2)" json:"price"`
	Stock       int64           `gorm:"column:stock" json:"stock"`
}

type WalletPackage struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"column:name" json:"name"`
	Price       decimal.Decimal `gorm:"type:decimal(20,2)" json:"price"`
	TokenAmount decimal.Decimal `gorm:"type:decimal(20,2)" json:"token_amount"`
	IsActive    bool            `gorm:"column:is_active" json:"is_active"`
}
