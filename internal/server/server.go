package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/events"
	gatewayconfigdomain "github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	"github.com/smallbiznis/creatorpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/creatorpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creatorpay/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"github.com/smallbiznis/creatorpay/internal/settings"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	walletdomain "github.com/smallbiznis/creatorpay/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
	fx.Invoke(runRelay),
)

// NewEngine builds the gin engine. Forwarded client addresses are honoured
// only from cfg.TrustedProxies; gateway allow-lists depend on it.
func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r, nil
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) (*gin.Engine, error) {
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// runRelay drains the outbox from the API process so settlement does not
// wait for the next scheduler tick.
func runRelay(lc fx.Lifecycle, cfg config.Config, relay *events.Relay) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			go relay.Run(ctx, cfg.Scheduler.RelayInterval)
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	orderSvc       orderdomain.Service
	paymentSvc     paymentdomain.Service
	webhookSvc     paymentdomain.WebhookService
	walletSvc      walletdomain.Service
	subscriptions  subscriptiondomain.Service
	gatewayConfigs gatewayconfigdomain.Service
	settings       *settings.Service
	audit          auditdomain.Service
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	OrderSvc       orderdomain.Service
	PaymentSvc     paymentdomain.Service
	WebhookSvc     paymentdomain.WebhookService
	WalletSvc      walletdomain.Service
	Subscriptions  subscriptiondomain.Service
	GatewayConfigs gatewayconfigdomain.Service
	Settings       *settings.Service
	Audit          auditdomain.Service `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("http"),
		orderSvc:       p.OrderSvc,
		paymentSvc:     p.PaymentSvc,
		webhookSvc:     p.WebhookSvc,
		walletSvc:      p.WalletSvc,
		subscriptions:  p.Subscriptions,
		gatewayConfigs: p.GatewayConfigs,
		settings:       p.Settings,
		audit:          p.Audit,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.UserRequired())

	orders := api.Group("/orders")
	orders.POST("/subscriptions", s.CreateSubscriptionOrder)
	orders.POST("/videos", s.CreateVideoOrder)
	orders.POST("/photos", s.CreatePhotoOrder)
	orders.POST("/feeds", s.CreateFeedOrder)
	orders.POST("/products", s.CreateProductOrder)
	orders.POST("/wallet-packages", s.CreateWalletPackageOrder)
	orders.POST("/wallet-topups", s.CreateWalletTopupOrder)
	orders.GET("/:id", s.GetOrder)
	orders.POST("/:id/delivery", s.UpdateDeliveryStatus)

	api.POST("/transactions", s.Checkout)
	api.GET("/transactions/:id", s.GetTransaction)
	api.POST("/transactions/:id/cancel", s.CancelTransaction)

	wallet := api.Group("/wallet")
	wallet.POST("/tips", s.Tip)
	wallet.POST("/feed-tips", s.FeedTip)
	wallet.POST("/private-chats", s.StartPrivateChat)
	wallet.POST("/private-chats/:order_id/charges", s.ChargePrivateChat)

	api.GET("/subscriptions/:id", s.GetSubscription)
	api.POST("/subscriptions/:id/cancel", s.CancelSubscription)
}

func (s *Server) registerWebhookRoutes() {
	hooks := s.engine.Group("/webhooks")
	hooks.GET("/ccbill", s.HandleGatewayWebhook(paymentdomain.GatewayCCBill))
	hooks.POST("/ccbill", s.HandleGatewayWebhook(paymentdomain.GatewayCCBill))
	hooks.GET("/verotel", s.HandleGatewayWebhook(paymentdomain.GatewayVerotel))
	hooks.POST("/emerchantpay", s.HandleGatewayWebhook(paymentdomain.GatewayEmerchantpay))
}

func (s *Server) registerAdminRoutes() {
	if s.cfg.AdminToken == "" {
		return
	}
	admin := s.engine.Group("/admin", s.AdminRequired())
	admin.PUT("/settings/:key", s.UpdateSetting)
	admin.PUT("/gateways/:gateway", s.UpsertGatewayConfig)
	admin.POST("/gateways/:gateway/active", s.SetGatewayActive)
	admin.GET("/audit-logs", s.ListAuditLogs)
}
