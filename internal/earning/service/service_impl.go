package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	balancedomain "github.com/smallbiznis/creatorpay/internal/balance/domain"
	catalogdomain "github.com/smallbiznis/creatorpay/internal/catalog/domain"
	"github.com/smallbiznis/creatorpay/internal/clock"
	earningdomain "github.com/smallbiznis/creatorpay/internal/earning/domain"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	"github.com/smallbiznis/creatorpay/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       earningdomain.Repository
	Catalog    catalogdomain.Repository
	Balance    balancedomain.Repository
	Settings   *settings.Holder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       earningdomain.Repository
	catalog    catalogdomain.Repository
	balance    balancedomain.Repository
	settings   *settings.Holder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) earningdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("earning.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		catalog:    p.Catalog,
		balance:    p.Balance,
		settings:   p.Settings,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CommissionRate(ctx context.Context, db *gorm.DB, performerID snowflake.ID, sourceType string) (decimal.Decimal, error) {
	sourceType = strings.ToLower(strings.TrimSpace(sourceType))

	override, err := s.catalog.FindCommissionOverride(ctx, db, performerID, sourceType)
	if err != nil {
		return decimal.Zero, err
	}
	if override != nil {
		return checkRate(*override)
	}
	if s.settings != nil {
		if rate, ok := s.settings.Get().Commission(sourceType); ok {
			return checkRate(rate)
		}
	}
	return settings.FallbackCommission, nil
}

func checkRate(rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, earningdomain.ErrInvalidCommission
	}
	return rate, nil
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, in earningdomain.RecordInput) (*earningdomain.Earning, bool, error) {
	if in.TransactionID == 0 || in.OrderID == 0 {
		return nil, false, earningdomain.ErrInvalidTransaction
	}
	detail := in.Detail
	if detail.ID == 0 || detail.SellerID == 0 || detail.SellerSource != orderdomain.SourcePerformer {
		return nil, false, earningdomain.ErrInvalidLineItem
	}
	sourceType, ok := earningdomain.SourceTypeFor(detail.ProductType)
	if !ok {
		return nil, false, earningdomain.ErrInvalidLineItem
	}

	rate, err := s.CommissionRate(ctx, tx, detail.SellerID, sourceType)
	if err != nil {
		return nil, false, err
	}

	now := s.clock.Now()
	gross := detail.TotalPrice.Round(2)
	earning := &earningdomain.Earning{
		ID:            s.genID.Generate(),
		TransactionID: in.TransactionID,
		OrderID:       in.OrderID,
		OrderDetailID: detail.ID,
		PerformerID:   detail.SellerID,
		UserID:        detail.BuyerID,
		SourceType:    sourceType,
		GrossPrice:    gross,
		Commission:    rate,
		NetPrice:      earningdomain.NetPrice(gross, rate),
		PayoutStatus:  earningdomain.PayoutStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	inserted, err := s.repo.Insert(ctx, tx, earning)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		return earning, false, nil
	}

	if earning.NetPrice.IsPositive() {
		if err := s.balance.CreditPerformer(ctx, tx, earning.PerformerID, earning.NetPrice); err != nil {
			return nil, false, err
		}
	}
	s.obsMetrics.RecordEarningCreated(ctx, sourceType)

	s.log.Info("earning recorded",
		zap.String("transaction_id", in.TransactionID.String()),
		zap.String("order_detail_id", detail.ID.String()),
		zap.String("performer_id", earning.PerformerID.String()),
		zap.String("source_type", sourceType),
		zap.String("net_price", earning.NetPrice.StringFixed(2)),
	)
	return earning, true, nil
}

func (s *Service) ListByTransaction(ctx context.Context, transactionID snowflake.ID) ([]earningdomain.Earning, error) {
	return s.repo.ListByTransaction(ctx, s.db, transactionID)
}
