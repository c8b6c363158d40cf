package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	balancedomain "github.com/smallbiznis/creatorpay/internal/balance/domain"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/events"
	gatewayconfigdomain "github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	reconcileBatchSize = 200
	monthlyPeriodDays  = 30
	yearlyPeriodDays   = 365
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	GenID          *snowflake.Node
	Config         config.Config
	Repo           paymentdomain.Repository
	Orders         orderdomain.Service
	OrderRepo      orderdomain.Repository
	GatewayConfigs gatewayconfigdomain.Service
	Adapters       *adapters.Registry
	Outbox         *events.Outbox
	Balance        balancedomain.Repository
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	genID          *snowflake.Node
	repo           paymentdomain.Repository
	orders         orderdomain.Service
	orderRepo      orderdomain.Repository
	gatewayConfigs gatewayconfigdomain.Service
	adapters       *adapters.Registry
	outbox         *events.Outbox
	balance        balancedomain.Repository
	obsMetrics     *obsmetrics.Metrics

	ceiling          decimal.Decimal
	publicBaseURL    string
	enforceAllowlist bool
}

func NewService(p Params) (paymentdomain.Service, error) {
	ceiling, err := decimal.NewFromString(strings.TrimSpace(p.Config.NonWalletCeiling))
	if err != nil {
		return nil, fmt.Errorf("parse non-wallet ceiling: %w", err)
	}
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.service"),
		clock:            p.Clock,
		genID:            p.GenID,
		repo:             p.Repo,
		orders:           p.Orders,
		orderRepo:        p.OrderRepo,
		gatewayConfigs:   p.GatewayConfigs,
		adapters:         p.Adapters,
		outbox:           p.Outbox,
		balance:          p.Balance,
		obsMetrics:       p.ObsMetrics,
		ceiling:          ceiling,
		publicBaseURL:    strings.TrimRight(p.Config.PublicBaseURL, "/"),
		enforceAllowlist: p.Config.Webhook.EnforceIPAllowlist,
	}, nil
}

func (s *Service) Checkout(ctx context.Context, in paymentdomain.CheckoutInput) (*paymentdomain.CheckoutResponse, error) {
	order, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != in.BuyerID {
		return nil, orderdomain.ErrOrderNotFound
	}
	if order.Status != orderdomain.OrderStatusCreated {
		return nil, orderdomain.ErrInvalidOrderStatus
	}

	gateway := paymentdomain.NormalizeGateway(in.Gateway)
	if gateway == "" {
		gateway = paymentdomain.NormalizeGateway(order.PaymentGateway)
	}
	if !paymentdomain.IsKnownGateway(gateway) {
		return nil, paymentdomain.ErrInvalidGateway
	}
	if order.PaymentGateway != "" && paymentdomain.NormalizeGateway(order.PaymentGateway) != gateway {
		return nil, paymentdomain.ErrInvalidGateway
	}

	open, err := s.repo.FindOpenByOrder(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if open != nil && open.Status == paymentdomain.TransactionStatusSuccess {
		return nil, orderdomain.ErrInvalidOrderStatus
	}

	if gateway == paymentdomain.GatewayWallet {
		return s.checkoutWallet(ctx, order)
	}
	return s.checkoutExternal(ctx, order, gateway, in.ReturnURL)
}

func (s *Service) checkoutWallet(ctx context.Context, order *orderdomain.Order) (*paymentdomain.CheckoutResponse, error) {
	if order.Type == orderdomain.OrderTypeWallet {
		return nil, paymentdomain.ErrInvalidGateway
	}

	txn := s.newTransaction(order, paymentdomain.GatewayWallet)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if order.TotalPrice.IsPositive() {
			if err := s.balance.DebitUser(ctx, tx, order.BuyerID, order.TotalPrice); err != nil {
				return err
			}
		}
		if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		_, err := s.markSucceededTx(ctx, tx, txn.ID, paymentdomain.SuccessInput{Source: paymentdomain.SourceWallet})
		return err
	})
	if err != nil {
		s.recordWalletDebit(ctx, "checkout", err)
		return nil, err
	}
	s.recordWalletDebit(ctx, "checkout", nil)
	s.afterSuccess(ctx, paymentdomain.GatewayWallet, paymentdomain.SourceWallet)

	return &paymentdomain.CheckoutResponse{
		TransactionID: txn.ID,
		Status:        paymentdomain.TransactionStatusSuccess,
	}, nil
}

func (s *Service) checkoutExternal(ctx context.Context, order *orderdomain.Order, gateway, returnURL string) (*paymentdomain.CheckoutResponse, error) {
	if order.TotalPrice.GreaterThan(s.ceiling) {
		return nil, orderdomain.ErrPriceOutOfBounds
	}
	adapter, err := s.adapterFor(ctx, gateway, order.SellerID)
	if err != nil {
		return nil, err
	}

	txn := s.newTransaction(order, gateway)
	if err := s.repo.InsertTransaction(ctx, s.db, txn); err != nil {
		return nil, err
	}

	req := paymentdomain.CheckoutRequest{
		TransactionID:   txn.ID,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Description:     describe(order),
		Amount:          order.TotalPrice,
		BuyerEmail:      buyerEmail(order),
		NotificationURL: s.publicBaseURL + "/webhooks/" + gateway,
		ReturnURL:       returnURL,
	}

	var result *paymentdomain.CheckoutResult
	if order.Type.IsSubscription() {
		req.PeriodDays = periodDays(order.Type)
		result, err = adapter.InitiateSubscription(ctx, req)
	} else {
		result, err = adapter.InitiateSinglePurchase(ctx, req)
	}
	if err != nil {
		s.log.Warn("gateway checkout failed",
			zap.String("gateway", gateway),
			zap.String("transaction_id", txn.ID.String()),
			zap.Error(err),
		)
		if _, cancelErr := s.repo.MarkCancelled(ctx, s.db, txn.ID, s.clock.Now()); cancelErr != nil {
			s.log.Error("cancel failed checkout transaction", zap.String("transaction_id", txn.ID.String()), zap.Error(cancelErr))
		}
		if errors.Is(err, paymentdomain.ErrInvalidConfig) ||
			errors.Is(err, paymentdomain.ErrInvalidPayload) ||
			errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}

	if result.PaymentToken != "" {
		if err := s.repo.SetPaymentToken(ctx, s.db, txn.ID, result.PaymentToken, s.clock.Now()); err != nil {
			return nil, err
		}
	}

	return &paymentdomain.CheckoutResponse{
		TransactionID: txn.ID,
		PaymentURL:    result.PaymentURL,
		Status:        paymentdomain.TransactionStatusPending,
	}, nil
}

func (s *Service) Get(ctx context.Context, id, buyerID snowflake.ID) (*paymentdomain.Transaction, error) {
	txn, err := s.repo.FindTransaction(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if txn == nil || txn.BuyerID != buyerID {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	return txn, nil
}

func (s *Service) Cancel(ctx context.Context, id, buyerID snowflake.ID) error {
	if _, err := s.Get(ctx, id, buyerID); err != nil {
		return err
	}
	moved, err := s.repo.MarkCancelled(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return err
	}
	if !moved {
		return paymentdomain.ErrInvalidTransactionState
	}
	return nil
}

// MarkSucceeded moves a PENDING transaction to SUCCESS. A transaction in any
// other state is left untouched and reports false.
func (s *Service) MarkSucceeded(ctx context.Context, id snowflake.ID, in paymentdomain.SuccessInput) (bool, error) {
	var (
		moved   bool
		gateway string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.repo.FindTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return paymentdomain.ErrTransactionNotFound
		}
		gateway = txn.PaymentGateway
		moved, err = s.markSucceededTx(ctx, tx, id, in)
		return err
	})
	if err != nil {
		return false, err
	}
	if moved {
		s.afterSuccess(ctx, gateway, in.Source)
	}
	return moved, nil
}

// MarkSucceededTx runs the transition inside tx. The caller notifies the
// outbox once tx commits.
func (s *Service) MarkSucceededTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, in paymentdomain.SuccessInput) (bool, error) {
	return s.markSucceededTx(ctx, tx, id, in)
}

func (s *Service) markSucceededTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, in paymentdomain.SuccessInput) (bool, error) {
	now := s.clock.Now()
	moved, err := s.repo.MarkSucceeded(ctx, tx, id, in.SubscriptionRef, responseInfo(in.Payload), now)
	if err != nil || !moved {
		return false, err
	}

	txn, err := s.repo.FindTransaction(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if txn == nil {
		return false, paymentdomain.ErrTransactionNotFound
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	_, err = s.outbox.PublishTx(ctx, tx, events.Event{
		Type: events.ChannelTransactionSucceeded,
		Payload: events.TransactionSucceeded{
			TransactionID: txn.ID,
			OrderID:       txn.OrderID,
			Gateway:       txn.PaymentGateway,
			Type:          txn.Type,
			TotalPrice:    txn.TotalPrice.StringFixed(2),
			Source:        in.Source,
			OccurredAt:    occurredAt.UTC(),
		},
		DedupeKey:  "txn_succeeded:" + txn.ID.String(),
		OccurredAt: occurredAt,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) RecordWalletPaymentTx(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) (*paymentdomain.Transaction, error) {
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	txn := s.newTransaction(order, paymentdomain.GatewayWallet)
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if _, err := s.markSucceededTx(ctx, tx, txn.ID, paymentdomain.SuccessInput{Source: paymentdomain.SourceWallet}); err != nil {
		return nil, err
	}
	return s.repo.FindTransaction(ctx, tx, txn.ID)
}

func (s *Service) AppendWalletChargeTx(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, detail *orderdomain.OrderDetail) (*paymentdomain.Transaction, error) {
	if detail == nil || !detail.TotalPrice.IsPositive() {
		return nil, paymentdomain.ErrInvalidPayload
	}
	txn, err := s.repo.FindOpenByOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	if txn.PaymentGateway != paymentdomain.GatewayWallet || txn.Status != paymentdomain.TransactionStatusSuccess {
		return nil, paymentdomain.ErrInvalidTransactionState
	}

	now := s.clock.Now()
	if err := s.repo.AddAmount(ctx, tx, txn.ID, detail.TotalPrice, now); err != nil {
		return nil, err
	}

	_, err = s.outbox.PublishTx(ctx, tx, events.Event{
		Type: events.ChannelTransactionSucceeded,
		Payload: events.TransactionSucceeded{
			TransactionID: txn.ID,
			OrderID:       txn.OrderID,
			Gateway:       txn.PaymentGateway,
			Type:          txn.Type,
			TotalPrice:    detail.TotalPrice.StringFixed(2),
			Source:        paymentdomain.SourceWallet,
			OccurredAt:    now,
			OrderDetailID: detail.ID,
		},
		DedupeKey:  "txn_succeeded:" + txn.ID.String() + ":" + detail.ID.String(),
		OccurredAt: now,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindTransaction(ctx, tx, txn.ID)
}

// CreateRenewal opens a renewal order and its PENDING transaction for a
// subscription billed on the gateway side.
func (s *Service) CreateRenewal(ctx context.Context, in paymentdomain.RenewalInput) (*paymentdomain.Transaction, error) {
	gateway := paymentdomain.NormalizeGateway(in.Gateway)
	if !paymentdomain.IsExternalGateway(gateway) {
		return nil, paymentdomain.ErrInvalidGateway
	}
	order, err := s.orders.CreateRenewalOrder(ctx, orderdomain.RenewalOrderRequest{
		UserID:      in.UserID,
		PerformerID: in.PerformerID,
		Period:      in.Period,
		Amount:      in.Amount,
		Gateway:     gateway,
	})
	if err != nil {
		return nil, err
	}

	txn := s.newTransaction(order, gateway)
	txn.SubscriptionRef = in.SubscriptionRef
	txn.PaymentToken = in.PaymentToken
	if err := s.repo.InsertTransaction(ctx, s.db, txn); err != nil {
		return nil, err
	}
	s.log.Info("renewal transaction opened",
		zap.String("gateway", gateway),
		zap.String("transaction_id", txn.ID.String()),
		zap.String("order_id", order.ID.String()),
	)
	return txn, nil
}

func (s *Service) ChargeRenewal(ctx context.Context, in paymentdomain.RenewalInput) (*paymentdomain.Transaction, error) {
	gateway := paymentdomain.NormalizeGateway(in.Gateway)
	if in.SubscriptionRef == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	adapter, err := s.adapterFor(ctx, gateway, in.PerformerID)
	if err != nil {
		return nil, err
	}
	charger, ok := adapter.(paymentdomain.RecurringCharger)
	if !ok {
		return nil, paymentdomain.ErrUnsupportedOperation
	}

	txn, err := s.CreateRenewal(ctx, in)
	if err != nil {
		return nil, err
	}

	result, err := charger.ChargeRecurring(ctx, paymentdomain.RecurringCharge{
		TransactionID:   txn.ID,
		SubscriptionRef: in.SubscriptionRef,
		Amount:          txn.TotalPrice,
		Description:     txn.OrderID.String(),
	})
	if err != nil {
		if _, cancelErr := s.repo.MarkCancelled(ctx, s.db, txn.ID, s.clock.Now()); cancelErr != nil {
			s.log.Error("cancel failed renewal transaction", zap.String("transaction_id", txn.ID.String()), zap.Error(cancelErr))
		}
		return nil, err
	}
	if result.PaymentToken != "" {
		if err := s.repo.SetPaymentToken(ctx, s.db, txn.ID, result.PaymentToken, s.clock.Now()); err != nil {
			return nil, err
		}
	}

	switch result.Status {
	case paymentdomain.RemoteStatusApproved:
		if _, err := s.MarkSucceeded(ctx, txn.ID, paymentdomain.SuccessInput{
			SubscriptionRef: in.SubscriptionRef,
			Payload:         result.Raw,
			Source:          paymentdomain.SourceRecurring,
		}); err != nil {
			return nil, err
		}
	case paymentdomain.RemoteStatusDeclined:
		if _, err := s.repo.MarkCancelled(ctx, s.db, txn.ID, s.clock.Now()); err != nil {
			return nil, err
		}
	}
	// pending charges are picked up by reconciliation
	return s.repo.FindTransaction(ctx, s.db, txn.ID)
}

func (s *Service) CancelSubscription(ctx context.Context, gateway string, performerID snowflake.ID, subscriptionRef string) error {
	gateway = paymentdomain.NormalizeGateway(gateway)
	if !paymentdomain.IsExternalGateway(gateway) {
		return nil
	}
	adapter, err := s.adapterFor(ctx, gateway, performerID)
	if err != nil {
		return err
	}
	return adapter.CancelSubscription(ctx, subscriptionRef)
}

// ReconcilePending re-queries the gateway for PENDING transactions created in
// [from, to] and settles the ones the gateway reports as final.
func (s *Service) ReconcilePending(ctx context.Context, gateway string, from, to time.Time) (paymentdomain.ReconcileResult, error) {
	var result paymentdomain.ReconcileResult
	gateway = paymentdomain.NormalizeGateway(gateway)
	if !paymentdomain.IsExternalGateway(gateway) {
		return result, paymentdomain.ErrInvalidGateway
	}

	items, err := s.repo.ListPending(ctx, s.db, gateway, from, to, reconcileBatchSize)
	if err != nil {
		return result, err
	}

	queriers := map[snowflake.ID]paymentdomain.StatusQuerier{}
	for _, txn := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		if txn.PaymentToken == "" {
			continue
		}

		querier, err := s.querierFor(ctx, queriers, txn)
		if err != nil {
			result.Failed++
			s.log.Warn("reconcile adapter unavailable",
				zap.String("gateway", gateway),
				zap.String("transaction_id", txn.ID.String()),
				zap.Error(err),
			)
			continue
		}

		status, raw, err := querier.QueryStatus(ctx, txn.PaymentToken)
		if err != nil {
			result.Failed++
			s.log.Warn("reconcile status query failed",
				zap.String("gateway", gateway),
				zap.String("transaction_id", txn.ID.String()),
				zap.Error(err),
			)
			continue
		}

		switch status {
		case paymentdomain.RemoteStatusApproved:
			moved, err := s.MarkSucceeded(ctx, txn.ID, paymentdomain.SuccessInput{
				Payload: raw,
				Source:  paymentdomain.SourceReconcile,
			})
			if err != nil {
				result.Failed++
				s.log.Error("reconcile mark succeeded failed", zap.String("transaction_id", txn.ID.String()), zap.Error(err))
				continue
			}
			if moved {
				result.Succeeded++
			}
		case paymentdomain.RemoteStatusDeclined:
			moved, err := s.repo.MarkCancelled(ctx, s.db, txn.ID, s.clock.Now())
			if err != nil {
				result.Failed++
				continue
			}
			if moved {
				result.Cancelled++
			}
		}
	}
	return result, nil
}

func (s *Service) querierFor(ctx context.Context, cache map[snowflake.ID]paymentdomain.StatusQuerier, txn paymentdomain.Transaction) (paymentdomain.StatusQuerier, error) {
	order, err := s.orderRepo.FindByID(ctx, s.db, txn.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	if querier, ok := cache[order.SellerID]; ok {
		return querier, nil
	}
	adapter, err := s.adapterFor(ctx, txn.PaymentGateway, order.SellerID)
	if err != nil {
		return nil, err
	}
	querier, ok := adapter.(paymentdomain.StatusQuerier)
	if !ok {
		return nil, paymentdomain.ErrUnsupportedOperation
	}
	cache[order.SellerID] = querier
	return querier, nil
}

func (s *Service) CountStuck(ctx context.Context, gateway string, before time.Time) (int64, error) {
	return s.repo.CountPendingBefore(ctx, s.db, paymentdomain.NormalizeGateway(gateway), before)
}

func (s *Service) adapterFor(ctx context.Context, gateway string, performerID snowflake.ID) (paymentdomain.GatewayAdapter, error) {
	if !s.adapters.GatewayExists(gateway) {
		return nil, paymentdomain.ErrInvalidGateway
	}
	resolved, err := s.gatewayConfigs.Resolve(ctx, gateway, performerID)
	if err != nil {
		return nil, err
	}
	return s.adapters.NewAdapter(gateway, paymentdomain.AdapterConfig{
		PerformerID:      resolved.PerformerID,
		Config:           resolved.Config,
		EnforceAllowlist: s.enforceAllowlist,
	})
}

func (s *Service) newTransaction(order *orderdomain.Order, gateway string) *paymentdomain.Transaction {
	now := s.clock.Now()
	return &paymentdomain.Transaction{
		ID:             s.genID.Generate(),
		OrderID:        order.ID,
		PaymentGateway: gateway,
		BuyerID:        order.BuyerID,
		BuyerSource:    order.BuyerSource,
		Type:           string(order.Type),
		TotalPrice:     order.TotalPrice.Round(2),
		Status:         paymentdomain.TransactionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Service) afterSuccess(ctx context.Context, gateway, source string) {
	s.outbox.Notify()
	if s.obsMetrics != nil {
		s.obsMetrics.RecordTransactionSucceeded(ctx, gateway, source)
	}
}

func (s *Service) recordWalletDebit(ctx context.Context, purpose string, err error) {
	if s.obsMetrics == nil {
		return
	}
	outcome := "ok"
	if errors.Is(err, balancedomain.ErrInsufficientBalance) {
		outcome = "insufficient"
	} else if err != nil {
		outcome = "error"
	}
	s.obsMetrics.RecordWalletDebit(ctx, purpose, outcome)
}

// responseInfo keeps gateway payloads that are not JSON as a quoted raw value.
func responseInfo(payload []byte) datatypes.JSON {
	if len(payload) == 0 {
		return nil
	}
	if json.Valid(payload) {
		return datatypes.JSON(payload)
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(payload)})
	if err != nil {
		return nil
	}
	return datatypes.JSON(wrapped)
}

func periodDays(orderType orderdomain.OrderType) int {
	if orderType == orderdomain.OrderTypeYearlySubscription {
		return yearlyPeriodDays
	}
	return monthlyPeriodDays
}

func describe(order *orderdomain.Order) string {
	if len(order.Details) == 0 {
		return order.OrderNumber
	}
	if len(order.Details) == 1 {
		return order.Details[0].Name
	}
	return fmt.Sprintf("%s and %d more", order.Details[0].Name, len(order.Details)-1)
}

func buyerEmail(order *orderdomain.Order) string {
	for _, detail := range order.Details {
		if detail.BuyerEmail != "" {
			return detail.BuyerEmail
		}
	}
	return ""
}
