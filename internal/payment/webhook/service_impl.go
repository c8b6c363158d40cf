package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	gatewayconfigdomain "github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	GenID          *snowflake.Node
	Cfg            config.Config
	Repo           paymentdomain.Repository
	PaymentSvc     paymentdomain.Service
	OrderRepo      orderdomain.Repository
	Subscriptions  subscriptiondomain.Repository
	GatewayConfigs gatewayconfigdomain.Service
	Adapters       *adapters.Registry
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	clock            clock.Clock
	genID            *snowflake.Node
	repo             paymentdomain.Repository
	paymentSvc       paymentdomain.Service
	orderRepo        orderdomain.Repository
	subscriptions    subscriptiondomain.Repository
	gatewayConfigs   gatewayconfigdomain.Service
	adapters         *adapters.Registry
	obsMetrics       *obsmetrics.Metrics
	enforceAllowlist bool
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.webhook"),
		clock:            p.Clock,
		genID:            p.GenID,
		repo:             p.Repo,
		paymentSvc:       p.PaymentSvc,
		orderRepo:        p.OrderRepo,
		subscriptions:    p.Subscriptions,
		gatewayConfigs:   p.GatewayConfigs,
		adapters:         p.Adapters,
		obsMetrics:       p.ObsMetrics,
		enforceAllowlist: p.Cfg.Webhook.EnforceIPAllowlist,
	}
}

// IngestWebhook verifies, records and applies one gateway notification.
// Replays and events that carry no settlement are acknowledged without side
// effects so the gateway stops retrying.
func (s *Service) IngestWebhook(ctx context.Context, gateway string, req paymentdomain.InboundRequest) (*paymentdomain.Ack, error) {
	gateway = paymentdomain.NormalizeGateway(gateway)
	if !paymentdomain.IsExternalGateway(gateway) || s.adapters == nil || !s.adapters.GatewayExists(gateway) {
		return nil, paymentdomain.ErrProviderNotFound
	}

	configs, err := s.gatewayConfigs.ListActive(ctx, gateway)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, paymentdomain.ErrProviderNotFound
	}

	adapter, event, err := s.matchAdapter(ctx, gateway, req, configs)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.obsMetrics.RecordWebhookEvent(ctx, gateway, "", "ignored")
			return acknowledge(adapter, req), nil
		}
		s.obsMetrics.RecordWebhookEvent(ctx, gateway, "", "rejected")
		s.log.Warn("payment webhook rejected", zap.String("gateway", gateway), zap.Error(err))
		return nil, err
	}
	event.Provider = gateway

	// sales for a transaction we never issued are refused before anything is stored
	var saleTxn *paymentdomain.Transaction
	if event.Type == paymentdomain.EventTypeSale {
		saleTxn, err = s.findSaleTransaction(ctx, gateway, event)
		if err != nil {
			s.obsMetrics.RecordWebhookEvent(ctx, gateway, event.Type, "failed")
			return nil, err
		}
	}

	receivedAt := s.clock.Now()
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        gateway,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         snapshot(req),
		ReceivedAt:      receivedAt,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, gateway, event.ProviderEventID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.obsMetrics.RecordWebhookEvent(ctx, gateway, event.Type, "duplicate")
			return acknowledge(adapter, req), nil
		}
		record = stored
	}

	txnID, err := s.apply(ctx, gateway, event, record, saleTxn)
	if err != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, gateway, event.Type, "failed")
		return nil, err
	}
	if err := s.repo.MarkEventProcessed(ctx, s.db, record.ID, txnID, s.clock.Now()); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordWebhookEvent(ctx, gateway, event.Type, "processed")
	return acknowledge(adapter, req), nil
}

func (s *Service) matchAdapter(
	ctx context.Context,
	gateway string,
	req paymentdomain.InboundRequest,
	configs []gatewayconfigdomain.Resolved,
) (paymentdomain.GatewayAdapter, *paymentdomain.WebhookEvent, error) {
	var configErr error
	for _, cfg := range configs {
		adapter, err := s.adapters.NewAdapter(gateway, paymentdomain.AdapterConfig{
			PerformerID:      cfg.PerformerID,
			Config:           cfg.Config,
			EnforceAllowlist: s.enforceAllowlist,
		})
		if err != nil {
			configErr = err
			continue
		}

		if err := adapter.Verify(ctx, req); err != nil {
			if errors.Is(err, paymentdomain.ErrInvalidSignature) {
				continue
			}
			return nil, nil, err
		}

		event, err := adapter.Parse(ctx, req)
		if err != nil {
			if errors.Is(err, paymentdomain.ErrEventIgnored) {
				return adapter, nil, err
			}
			return nil, nil, err
		}
		event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
		if event.ProviderEventID == "" {
			return nil, nil, paymentdomain.ErrInvalidEvent
		}
		return adapter, event, nil
	}

	if configErr != nil {
		return nil, nil, configErr
	}
	return nil, nil, paymentdomain.ErrInvalidSignature
}

func (s *Service) apply(
	ctx context.Context,
	gateway string,
	event *paymentdomain.WebhookEvent,
	record *paymentdomain.EventRecord,
	saleTxn *paymentdomain.Transaction,
) (*snowflake.ID, error) {
	switch event.Type {
	case paymentdomain.EventTypeSale:
		return s.applySale(ctx, gateway, saleTxn, event, record)
	case paymentdomain.EventTypeRenewal:
		return s.applyRenewal(ctx, gateway, event, record)
	default:
		return nil, paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) findSaleTransaction(ctx context.Context, gateway string, event *paymentdomain.WebhookEvent) (*paymentdomain.Transaction, error) {
	var txn *paymentdomain.Transaction
	var err error
	if event.TransactionID != 0 {
		txn, err = s.repo.FindTransaction(ctx, s.db, event.TransactionID)
		if err != nil {
			return nil, err
		}
	}
	if txn == nil && event.PaymentToken != "" {
		txn, err = s.repo.FindByPaymentToken(ctx, s.db, gateway, event.PaymentToken)
		if err != nil {
			return nil, err
		}
	}
	if txn == nil || txn.PaymentGateway != gateway {
		s.log.Warn("payment webhook for unknown transaction",
			zap.String("gateway", gateway),
			zap.String("transaction_id", event.TransactionID.String()),
		)
		return nil, paymentdomain.ErrTransactionNotFound
	}
	return txn, nil
}

func (s *Service) applySale(
	ctx context.Context,
	gateway string,
	txn *paymentdomain.Transaction,
	event *paymentdomain.WebhookEvent,
	record *paymentdomain.EventRecord,
) (*snowflake.ID, error) {
	if txn == nil {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	moved, err := s.paymentSvc.MarkSucceeded(ctx, txn.ID, paymentdomain.SuccessInput{
		SubscriptionRef: event.SubscriptionRef,
		Payload:         record.Payload,
		Source:          paymentdomain.SourceWebhook,
		OccurredAt:      record.ReceivedAt,
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		s.log.Info("payment webhook replay ignored",
			zap.String("gateway", gateway),
			zap.String("transaction_id", txn.ID.String()),
			zap.String("status", string(txn.Status)),
		)
	}
	return &txn.ID, nil
}

// applyRenewal bills the next period for a known subscription, or for a
// subscription only the gateway knows about when its first payment is ours.
func (s *Service) applyRenewal(ctx context.Context, gateway string, event *paymentdomain.WebhookEvent, record *paymentdomain.EventRecord) (*snowflake.ID, error) {
	token := "renewal:" + event.ProviderEventID
	existing, err := s.repo.FindByPaymentToken(ctx, s.db, gateway, token)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if _, err := s.markRenewal(ctx, existing.ID, event, record); err != nil {
			return nil, err
		}
		return &existing.ID, nil
	}

	in, ok, err := s.renewalTarget(ctx, gateway, event.SubscriptionRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Info("renewal for unknown subscription ignored",
			zap.String("gateway", gateway),
			zap.String("subscription_ref", event.SubscriptionRef),
		)
		return nil, nil
	}
	in.Amount = event.BilledAmount
	in.PaymentToken = token

	txn, err := s.paymentSvc.CreateRenewal(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.markRenewal(ctx, txn.ID, event, record); err != nil {
		return nil, err
	}
	return &txn.ID, nil
}

func (s *Service) markRenewal(ctx context.Context, id snowflake.ID, event *paymentdomain.WebhookEvent, record *paymentdomain.EventRecord) (bool, error) {
	return s.paymentSvc.MarkSucceeded(ctx, id, paymentdomain.SuccessInput{
		SubscriptionRef: event.SubscriptionRef,
		Payload:         record.Payload,
		Source:          paymentdomain.SourceWebhook,
		OccurredAt:      record.ReceivedAt,
	})
}

func (s *Service) renewalTarget(ctx context.Context, gateway, ref string) (paymentdomain.RenewalInput, bool, error) {
	in := paymentdomain.RenewalInput{Gateway: gateway, SubscriptionRef: ref}
	if ref == "" {
		return in, false, nil
	}

	sub, err := s.subscriptions.FindByRef(ctx, s.db, gateway, ref)
	if err != nil {
		return in, false, err
	}
	if sub != nil {
		in.PerformerID = sub.PerformerID
		in.UserID = sub.UserID
		in.Period = orderdomain.PeriodMonthly
		if sub.SubscriptionType == subscriptiondomain.TypeYearly {
			in.Period = orderdomain.PeriodYearly
		}
		return in, true, nil
	}

	original, err := s.repo.FindBySubscriptionRef(ctx, s.db, gateway, ref)
	if err != nil || original == nil {
		return in, false, err
	}
	order, err := s.orderRepo.FindByID(ctx, s.db, original.OrderID)
	if err != nil || order == nil || !order.Type.IsSubscription() {
		return in, false, err
	}
	in.PerformerID = order.SellerID
	in.UserID = order.BuyerID
	in.Period = orderdomain.PeriodMonthly
	if order.Type == orderdomain.OrderTypeYearlySubscription {
		in.Period = orderdomain.PeriodYearly
	}
	return in, true, nil
}

func acknowledge(adapter paymentdomain.GatewayAdapter, req paymentdomain.InboundRequest) *paymentdomain.Ack {
	if responder, ok := adapter.(paymentdomain.WebhookResponder); ok {
		contentType, body := responder.Acknowledge(req)
		return &paymentdomain.Ack{ContentType: contentType, Body: body}
	}
	return &paymentdomain.Ack{ContentType: "text/plain; charset=utf-8", Body: []byte("OK")}
}

type requestSnapshot struct {
	Method   string              `json:"method,omitempty"`
	Query    map[string][]string `json:"query,omitempty"`
	Form     map[string][]string `json:"form,omitempty"`
	Body     string              `json:"body,omitempty"`
	RemoteIP string              `json:"remote_ip,omitempty"`
}

// snapshot stores what the gateway sent as JSON whatever its wire format.
func snapshot(req paymentdomain.InboundRequest) datatypes.JSON {
	encoded, err := json.Marshal(requestSnapshot{
		Method:   req.Method,
		Query:    req.Query,
		Form:     req.Form,
		Body:     string(req.Body),
		RemoteIP: req.RemoteIP,
	})
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(encoded)
}
