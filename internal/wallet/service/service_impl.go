package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	balancedomain "github.com/smallbiznis/creatorpay/internal/balance/domain"
	catalogdomain "github.com/smallbiznis/creatorpay/internal/catalog/domain"
	"github.com/smallbiznis/creatorpay/internal/events"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"github.com/smallbiznis/creatorpay/internal/settings"
	walletdomain "github.com/smallbiznis/creatorpay/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Orders     orderdomain.Service
	OrderRepo  orderdomain.Repository
	Payments   paymentdomain.Service
	Balance    balancedomain.Repository
	Catalog    catalogdomain.Repository
	Settings   *settings.Holder
	Outbox     *events.Outbox
	Limiter    walletdomain.Limiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	orders     orderdomain.Service
	orderRepo  orderdomain.Repository
	payments   paymentdomain.Service
	balance    balancedomain.Repository
	catalog    catalogdomain.Repository
	settings   *settings.Holder
	outbox     *events.Outbox
	limiter    walletdomain.Limiter
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		orders:     p.Orders,
		orderRepo:  p.OrderRepo,
		payments:   p.Payments,
		balance:    p.Balance,
		catalog:    p.Catalog,
		settings:   p.Settings,
		outbox:     p.Outbox,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Tip(ctx context.Context, req walletdomain.TipRequest) (*walletdomain.Receipt, error) {
	if err := s.checkTip(req.Amount); err != nil {
		return nil, err
	}
	return s.pay(ctx, walletdomain.PurposeTip, orderdomain.PaidOrderInput{
		BuyerID:     req.UserID,
		SellerID:    req.PerformerID,
		Type:        orderdomain.OrderTypeTip,
		ProductType: orderdomain.ProductTypeTip,
		ProductID:   req.PerformerID,
		Name:        "Tip",
		Amount:      req.Amount,
	})
}

func (s *Service) FeedTip(ctx context.Context, req walletdomain.FeedTipRequest) (*walletdomain.Receipt, error) {
	if err := s.checkTip(req.Amount); err != nil {
		return nil, err
	}
	feed, err := s.catalog.FindItem(ctx, s.db, catalogdomain.ItemKindFeed, req.FeedID)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, catalogdomain.ErrItemNotFound
	}
	return s.pay(ctx, walletdomain.PurposeFeedTip, orderdomain.PaidOrderInput{
		BuyerID:     req.UserID,
		SellerID:    feed.PerformerID,
		Type:        orderdomain.OrderTypeTip,
		ProductType: orderdomain.ProductTypeFeedTip,
		ProductID:   feed.ID,
		Name:        "Tip on post",
		Description: feed.Title,
		Amount:      req.Amount,
	})
}

func (s *Service) StartPrivateChat(ctx context.Context, req walletdomain.PrivateChatRequest) (*walletdomain.Receipt, error) {
	if !req.Amount.IsPositive() {
		return nil, walletdomain.ErrAmountOutOfBounds
	}
	return s.pay(ctx, walletdomain.PurposePrivateChat, orderdomain.PaidOrderInput{
		BuyerID:     req.UserID,
		SellerID:    req.PerformerID,
		Type:        orderdomain.OrderTypePrivateChat,
		ProductType: orderdomain.ProductTypePrivateChat,
		ProductID:   req.PerformerID,
		Name:        "Private chat",
		Amount:      req.Amount,
	})
}

// ChargePrivateChat debits one metered increment and appends it to the open
// chat order and its transaction.
func (s *Service) ChargePrivateChat(ctx context.Context, req walletdomain.ChatChargeRequest) (*walletdomain.Receipt, error) {
	if !req.Amount.IsPositive() {
		return nil, walletdomain.ErrAmountOutOfBounds
	}
	if err := s.allow(ctx, req.UserID, walletdomain.PurposePrivateChat); err != nil {
		return nil, err
	}
	amount := req.Amount.Round(2)

	receipt := &walletdomain.Receipt{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByID(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil || order.BuyerID != req.UserID || order.Type != orderdomain.OrderTypePrivateChat ||
			order.PaymentGateway != paymentdomain.GatewayWallet {
			return walletdomain.ErrChatSessionNotFound
		}

		if err := s.balance.DebitUser(ctx, tx, req.UserID, amount); err != nil {
			return err
		}
		detail, err := s.orders.AppendChargeTx(ctx, tx, order, orderdomain.PaidOrderInput{
			BuyerID:     req.UserID,
			SellerID:    order.SellerID,
			Type:        orderdomain.OrderTypePrivateChat,
			ProductType: orderdomain.ProductTypePrivateChat,
			ProductID:   order.SellerID,
			Name:        "Private chat",
			Amount:      amount,
		})
		if err != nil {
			return err
		}
		txn, err := s.payments.AppendWalletChargeTx(ctx, tx, order.ID, detail)
		if err != nil {
			return err
		}
		refreshed, err := s.orderRepo.FindByID(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		receipt.Order = refreshed
		receipt.Detail = detail
		receipt.Transaction = txn
		return nil
	})
	s.recordDebit(ctx, walletdomain.PurposePrivateChat, err)
	if err != nil {
		return nil, err
	}
	s.outbox.Notify()
	s.obsMetrics.RecordTransactionSucceeded(ctx, paymentdomain.GatewayWallet, paymentdomain.SourceWallet)

	s.log.Info("private chat charged",
		zap.String("order_id", req.OrderID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)
	return receipt, nil
}

// pay debits the buyer and writes a PAID order with its SUCCESS transaction
// in one database transaction.
func (s *Service) pay(ctx context.Context, purpose string, in orderdomain.PaidOrderInput) (*walletdomain.Receipt, error) {
	if err := s.allow(ctx, in.BuyerID, purpose); err != nil {
		return nil, err
	}
	in.Amount = in.Amount.Round(2)

	receipt := &walletdomain.Receipt{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.balance.DebitUser(ctx, tx, in.BuyerID, in.Amount); err != nil {
			return err
		}
		order, detail, err := s.orders.CreatePaidOrderTx(ctx, tx, in)
		if err != nil {
			return err
		}
		txn, err := s.payments.RecordWalletPaymentTx(ctx, tx, order)
		if err != nil {
			return err
		}
		receipt.Order = order
		receipt.Detail = detail
		receipt.Transaction = txn
		return nil
	})
	s.recordDebit(ctx, purpose, err)
	if err != nil {
		return nil, err
	}
	s.outbox.Notify()
	s.obsMetrics.RecordTransactionSucceeded(ctx, paymentdomain.GatewayWallet, paymentdomain.SourceWallet)

	s.log.Info("wallet payment recorded",
		zap.String("purpose", purpose),
		zap.String("order_id", receipt.Order.ID.String()),
		zap.String("user_id", in.BuyerID.String()),
		zap.String("performer_id", in.SellerID.String()),
		zap.String("amount", in.Amount.StringFixed(2)),
	)
	return receipt, nil
}

func (s *Service) checkTip(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return walletdomain.ErrAmountOutOfBounds
	}
	if s.settings != nil && !s.settings.Get().Tip.Contains(amount) {
		return walletdomain.ErrAmountOutOfBounds
	}
	return nil
}

func (s *Service) allow(ctx context.Context, userID snowflake.ID, purpose string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.AllowDebit(ctx, userID, purpose)
}

func (s *Service) recordDebit(ctx context.Context, purpose string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, balancedomain.ErrInsufficientBalance):
		outcome = "insufficient"
	default:
		outcome = "error"
	}
	s.obsMetrics.RecordWalletDebit(ctx, purpose, outcome)
}
