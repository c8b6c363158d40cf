package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/creatorpay/internal/catalog/domain"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	coupondomain "github.com/smallbiznis/creatorpay/internal/coupon/domain"
	"github.com/smallbiznis/creatorpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const orderNumberAttempts = 5

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Config  config.Config
	Repo    domain.Repository
	Catalog catalogdomain.Repository
	Coupons coupondomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	repo    domain.Repository
	catalog catalogdomain.Repository
	coupons coupondomain.Service
	ceiling decimal.Decimal

	newOrderNumber func(now time.Time) (string, error)
}

func New(p Params) (domain.Service, error) {
	ceiling, err := decimal.NewFromString(strings.TrimSpace(p.Config.NonWalletCeiling))
	if err != nil {
		return nil, err
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		repo:    p.Repo,
		catalog: p.Catalog,
		coupons: p.Coupons,
		ceiling: ceiling,

		newOrderNumber: ulidOrderNumber,
	}, nil
}

// line is a detail before it is bound to an order.
type line struct {
	kind        domain.ProductType
	productID   snowflake.ID
	sellerID    snowflake.ID
	sellerName  string
	name        string
	description string
	quantity    int64
	unitPrice   decimal.Decimal
	tokenAmount decimal.NullDecimal
}

type draft struct {
	buyer     *catalogdomain.User
	sellerID  snowflake.ID
	orderType domain.OrderType
	gateway   string
	coupon    *coupondomain.Applied
	lines     []line
	// renewal orders bill an amount the gateway already charged.
	renewal bool
}

func (s *Service) CreateSubscriptionOrder(ctx context.Context, req domain.CreateSubscriptionOrderRequest) (*domain.Order, error) {
	buyer, err := s.loadBuyer(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	performer, err := s.loadPerformer(ctx, s.db, req.PerformerID)
	if err != nil {
		return nil, err
	}
	orderType, productType, price, err := subscriptionTerms(performer, req.Period)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, domain.ErrItemNotForSale
	}
	coupon, err := s.applyCoupon(ctx, req.CouponCode, req.UserID)
	if err != nil {
		return nil, err
	}

	return s.create(ctx, draft{
		buyer:     buyer,
		sellerID:  performer.ID,
		orderType: orderType,
		gateway:   req.Gateway,
		coupon:    coupon,
		lines:     []line{subscriptionLine(performer, productType, price)},
	})
}

func (s *Service) CreateRenewalOrder(ctx context.Context, req domain.RenewalOrderRequest) (*domain.Order, error) {
	buyer, err := s.loadBuyer(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	performer, err := s.loadPerformer(ctx, s.db, req.PerformerID)
	if err != nil {
		return nil, err
	}
	orderType, productType, price, err := subscriptionTerms(performer, req.Period)
	if err != nil {
		return nil, err
	}
	if req.Amount.IsPositive() {
		price = req.Amount.Round(2)
	}
	if !price.IsPositive() {
		return nil, domain.ErrItemNotForSale
	}

	return s.create(ctx, draft{
		buyer:     buyer,
		sellerID:  performer.ID,
		orderType: orderType,
		gateway:   req.Gateway,
		renewal:   true,
		lines:     []line{subscriptionLine(performer, productType, price)},
	})
}

func subscriptionTerms(performer *catalogdomain.Performer, period string) (domain.OrderType, domain.ProductType, decimal.Decimal, error) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case domain.PeriodMonthly:
		return domain.OrderTypeMonthlySubscription, domain.ProductTypeMonthlySubscription, performer.MonthlyPrice, nil
	case domain.PeriodYearly:
		return domain.OrderTypeYearlySubscription, domain.ProductTypeYearlySubscription, performer.YearlyPrice, nil
	}
	return "", "", decimal.Zero, domain.ErrInvalidPeriod
}

func subscriptionLine(performer *catalogdomain.Performer, productType domain.ProductType, price decimal.Decimal) line {
	return line{
		kind:        productType,
		productID:   performer.ID,
		sellerID:    performer.ID,
		sellerName:  performer.Username,
		name:        string(productType) + " " + performer.Username,
		description: "subscription to " + performer.Username,
		quantity:    1,
		unitPrice:   price,
	}
}

func (s *Service) CreateVideoOrder(ctx context.Context, req domain.CreateItemOrderRequest) (*domain.Order, error) {
	return s.createItemOrder(ctx, req, catalogdomain.ItemKindVideo, domain.OrderTypeSaleVideo, domain.ProductTypeVideo)
}

func (s *Service) CreatePhotoOrder(ctx context.Context, req domain.CreateItemOrderRequest) (*domain.Order, error) {
	return s.createItemOrder(ctx, req, catalogdomain.ItemKindPhoto, domain.OrderTypeSalePhoto, domain.ProductTypePhoto)
}

func (s *Service) CreateFeedOrder(ctx context.Context, req domain.CreateItemOrderRequest) (*domain.Order, error) {
	return s.createItemOrder(ctx, req, catalogdomain.ItemKindFeed, domain.OrderTypeFeed, domain.ProductTypeFeed)
}

func (s *Service) createItemOrder(ctx context.Context, req domain.CreateItemOrderRequest, kind catalogdomain.ItemKind, orderType domain.OrderType, productType domain.ProductType) (*domain.Order, error) {
	buyer, err := s.loadBuyer(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	item, err := s.catalog.FindItem(ctx, s.db, kind, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrInvalidItem
	}
	if !item.IsSale || !item.Price.IsPositive() {
		return nil, domain.ErrItemNotForSale
	}
	performer, err := s.loadPerformer(ctx, s.db, item.PerformerID)
	if err != nil {
		return nil, err
	}
	coupon, err := s.applyCoupon(ctx, req.CouponCode, req.UserID)
	if err != nil {
		return nil, err
	}

	return s.create(ctx, draft{
		buyer:     buyer,
		sellerID:  performer.ID,
		orderType: orderType,
		gateway:   req.Gateway,
		coupon:    coupon,
		lines: []line{{
			kind:        productType,
			productID:   item.ID,
			sellerID:    performer.ID,
			sellerName:  performer.Username,
			name:        item.Title,
			quantity:    1,
			unitPrice:   item.Price,
		}},
	})
}

func (s *Service) CreateProductOrder(ctx context.Context, req domain.CreateProductOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	quantities := make(map[snowflake.ID]int64, len(req.Items))
	ids := make([]snowflake.ID, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	buyer, err := s.loadBuyer(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	products, err := s.catalog.FindProducts(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	if len(products) != len(ids) {
		return nil, domain.ErrInvalidItem
	}

	sellerID := products[0].PerformerID
	for _, product := range products {
		if product.PerformerID != sellerID {
			return nil, domain.ErrDifferentSeller
		}
	}
	performer, err := s.loadPerformer(ctx, s.db, sellerID)
	if err != nil {
		return nil, err
	}
	coupon, err := s.applyCoupon(ctx, req.CouponCode, req.UserID)
	if err != nil {
		return nil, err
	}

	lines := make([]line, 0, len(products))
	for _, product := range products {
		qty := quantities[product.ID]
		kind := domain.ProductTypeDigitalProduct
		if product.ProductType == catalogdomain.ProductTypePhysical {
			kind = domain.ProductTypePhysicalProduct
			if qty > product.Stock {
				return nil, domain.ErrOutOfStock
			}
		}
		if !product.Price.IsPositive() {
			return nil, domain.ErrItemNotForSale
		}
		lines = append(lines, line{
			kind:        kind,
			productID:   product.ID,
			sellerID:    performer.ID,
			sellerName:  performer.Username,
			name:        product.Name,
			description: product.Description,
			quantity:    qty,
			unitPrice:   product.Price,
		})
	}

	return s.create(ctx, draft{
		buyer:     buyer,
		sellerID:  performer.ID,
		orderType: domain.OrderTypeSaleProduct,
		gateway:   req.Gateway,
		coupon:    coupon,
		lines:     lines,
	})
}

func (s *Service) CreateWalletPackageOrder(ctx context.Context, req domain.CreateWalletPackageOrderRequest) (*domain.Order, error) {
	if paymentdomain.NormalizeGateway(req.Gateway) == paymentdomain.GatewayWallet {
		return nil, domain.ErrInvalidGateway
	}
	buyer, err := s.loadBuyer(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.catalog.FindWalletPackage(ctx, s.db, req.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, domain.ErrInvalidItem
	}
	if !pkg.IsActive {
		return nil, domain.ErrItemNotForSale
	}

	return s.create(ctx, draft{
		buyer:     buyer,
		orderType: domain.OrderTypeWallet,
		gateway:   req.Gateway,
		lines: []line{{
			kind:        domain.ProductTypeWalletPackage,
			productID:   pkg.ID,
			name:        pkg.Name,
			quantity:    1,
			unitPrice:   pkg.Price,
			tokenAmount: decimal.NewNullDecimal(pkg.TokenAmount),
		}},
	})
}

// CreateWalletTopupOrder credits exactly the paid amount; bounds are checked
// by the wallet service against live settings.
func (s *Service) CreateWalletTopupOrder(ctx context.Context, req domain.CreateWalletTopupOrderRequest) (*domain.Order, error) {
	if paymentdomain.NormalizeGateway(req.Gateway) == paymentdomain.GatewayWallet {
		return nil, domain.ErrInvalidGateway
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrPriceOutOfBounds
	}
	buyer, err := s.loadBuyer(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	amount := req.Amount.Round(2)

	return s.create(ctx, draft{
		buyer:     buyer,
		orderType: domain.OrderTypeWallet,
		gateway:   req.Gateway,
		lines: []line{{
			kind:        domain.ProductTypeWalletTopup,
			name:        "wallet top-up",
			quantity:    1,
			unitPrice:   amount,
			tokenAmount: decimal.NewNullDecimal(amount),
		}},
	})
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	details, err := s.repo.FindDetails(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.Details = details
	return order, nil
}

type deliveryStep struct {
	from      domain.DeliveryStatus
	status    domain.OrderStatus
	orderFrom []domain.OrderStatus
}

var deliverySteps = map[domain.DeliveryStatus]deliveryStep{
	domain.DeliveryStatusShipping: {
		from:      domain.DeliveryStatusProcessing,
		status:    domain.OrderStatusShipping,
		orderFrom: []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusProcessing},
	},
	domain.DeliveryStatusDelivered: {
		from:      domain.DeliveryStatusShipping,
		status:    domain.OrderStatusDelivered,
		orderFrom: []domain.OrderStatus{domain.OrderStatusShipping},
	},
}

func (s *Service) UpdateDeliveryStatus(ctx context.Context, req domain.UpdateDeliveryRequest) (*domain.Order, error) {
	step, ok := deliverySteps[req.Status]
	if !ok {
		return nil, domain.ErrInvalidOrderStatus
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByID(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil || order.SellerID != req.SellerID {
			return domain.ErrOrderNotFound
		}
		details, err := s.repo.FindDetails(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !hasPhysical(details) {
			return domain.ErrNotShippable
		}

		now := s.clock.Now()
		moved, err := s.repo.UpdateStatus(ctx, tx, order.ID, step.orderFrom, step.status, now)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidOrderStatus
		}
		n, err := s.repo.AdvanceDelivery(ctx, tx, order.ID, step.from, req.Status, step.status, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrInvalidOrderStatus
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order delivery updated",
		zap.String("order_id", req.OrderID.String()),
		zap.String("delivery_status", string(req.Status)),
	)
	return s.Get(ctx, req.OrderID)
}

func hasPhysical(details []domain.OrderDetail) bool {
	for _, d := range details {
		if d.IsPhysical() {
			return true
		}
	}
	return false
}

func (s *Service) CreatePaidOrderTx(ctx context.Context, tx *gorm.DB, in domain.PaidOrderInput) (*domain.Order, *domain.OrderDetail, error) {
	if !in.Amount.IsPositive() {
		return nil, nil, domain.ErrPriceOutOfBounds
	}
	buyer, err := s.loadBuyer(ctx, tx, in.BuyerID)
	if err != nil {
		return nil, nil, err
	}
	performer, err := s.loadPerformer(ctx, tx, in.SellerID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	number, err := s.nextOrderNumber(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	amount := in.Amount.Round(2)
	order := &domain.Order{
		ID:             s.genID.Generate(),
		OrderNumber:    number,
		BuyerID:        buyer.ID,
		BuyerSource:    domain.SourceUser,
		SellerID:       performer.ID,
		SellerSource:   domain.SourcePerformer,
		Type:           in.Type,
		Quantity:       1,
		OriginalPrice:  amount,
		TotalPrice:     amount,
		Status:         domain.OrderStatusPaid,
		PaymentGateway: paymentdomain.GatewayWallet,
		PaidAt:         &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, tx, order); err != nil {
		return nil, nil, err
	}

	detail := s.paidDetail(order, buyer, performer, in, now)
	if err := s.repo.InsertDetail(ctx, tx, detail); err != nil {
		return nil, nil, err
	}
	order.Details = []domain.OrderDetail{*detail}
	return order, detail, nil
}

// AppendChargeTx adds one paid line to an existing wallet-funded order and
// grows its totals.
func (s *Service) AppendChargeTx(ctx context.Context, tx *gorm.DB, order *domain.Order, in domain.PaidOrderInput) (*domain.OrderDetail, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !in.Amount.IsPositive() {
		return nil, domain.ErrPriceOutOfBounds
	}
	if order.BuyerID != in.BuyerID || order.SellerID != in.SellerID {
		return nil, domain.ErrInvalidBuyer
	}
	buyer, err := s.loadBuyer(ctx, tx, in.BuyerID)
	if err != nil {
		return nil, err
	}
	performer, err := s.loadPerformer(ctx, tx, in.SellerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	in.Amount = in.Amount.Round(2)
	detail := s.paidDetail(order, buyer, performer, in, now)
	if err := s.repo.InsertDetail(ctx, tx, detail); err != nil {
		return nil, err
	}
	if err := s.repo.AddCharge(ctx, tx, order.ID, in.Amount, now); err != nil {
		return nil, err
	}
	order.Quantity++
	order.OriginalPrice = order.OriginalPrice.Add(in.Amount)
	order.TotalPrice = order.TotalPrice.Add(in.Amount)
	order.UpdatedAt = now
	return detail, nil
}

func (s *Service) MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, paidAt time.Time) (*domain.Order, bool, error) {
	moved, err := s.repo.MarkPaid(ctx, tx, orderID, paidAt.UTC())
	if err != nil {
		return nil, false, err
	}
	if err := s.repo.MarkDetailsPaid(ctx, tx, orderID, s.clock.Now()); err != nil {
		return nil, false, err
	}
	order, err := s.repo.FindByID(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}
	if order == nil {
		return nil, false, domain.ErrOrderNotFound
	}
	details, err := s.repo.FindDetails(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}
	order.Details = details
	return order, moved, nil
}

func (s *Service) paidDetail(order *domain.Order, buyer *catalogdomain.User, performer *catalogdomain.Performer, in domain.PaidOrderInput, now time.Time) *domain.OrderDetail {
	return &domain.OrderDetail{
		ID:             s.genID.Generate(),
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		BuyerID:        buyer.ID,
		BuyerSource:    domain.SourceUser,
		BuyerUsername:  buyer.Username,
		BuyerEmail:     buyer.Email,
		SellerID:       performer.ID,
		SellerSource:   domain.SourcePerformer,
		SellerUsername: performer.Username,
		ProductType:    in.ProductType,
		ProductID:      in.ProductID,
		Name:           in.Name,
		Description:    in.Description,
		Quantity:       1,
		UnitPrice:      in.Amount,
		OriginalPrice:  in.Amount,
		TotalPrice:     in.Amount,
		Status:         domain.OrderStatusPaid,
		DeliveryStatus: domain.DeliveryStatusDelivered,
		PaymentStatus:  domain.PaymentStatusPaid,
		PaymentGateway: paymentdomain.GatewayWallet,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Service) create(ctx context.Context, d draft) (*domain.Order, error) {
	gateway := paymentdomain.NormalizeGateway(d.gateway)
	if gateway != "" && !paymentdomain.IsKnownGateway(gateway) {
		return nil, domain.ErrInvalidGateway
	}

	var couponInfo datatypes.JSON
	if d.coupon != nil {
		raw, err := json.Marshal(d.coupon)
		if err != nil {
			return nil, err
		}
		couponInfo = datatypes.JSON(raw)
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:             s.genID.Generate(),
		BuyerID:        d.buyer.ID,
		BuyerSource:    domain.SourceUser,
		SellerID:       d.sellerID,
		SellerSource:   domain.SourcePerformer,
		Type:           d.orderType,
		CouponInfo:     couponInfo,
		Status:         domain.OrderStatusCreated,
		PaymentGateway: gateway,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if d.sellerID == 0 {
		order.SellerSource = domain.SourceSystem
	}

	details := make([]domain.OrderDetail, 0, len(d.lines))
	for _, l := range d.lines {
		original := l.unitPrice.Mul(decimal.NewFromInt(l.quantity)).Round(2)
		total := original
		if d.coupon != nil {
			total = d.coupon.Discount(original)
		}
		detail := domain.OrderDetail{
			ID:             s.genID.Generate(),
			OrderID:        order.ID,
			BuyerID:        d.buyer.ID,
			BuyerSource:    domain.SourceUser,
			BuyerUsername:  d.buyer.Username,
			BuyerEmail:     d.buyer.Email,
			SellerID:       l.sellerID,
			SellerSource:   order.SellerSource,
			SellerUsername: l.sellerName,
			ProductType:    l.kind,
			ProductID:      l.productID,
			Name:           l.name,
			Description:    l.description,
			Quantity:       l.quantity,
			UnitPrice:      l.unitPrice,
			OriginalPrice:  original,
			TotalPrice:     total,
			TokenAmount:    l.tokenAmount,
			CouponInfo:     couponInfo,
			Status:         domain.OrderStatusCreated,
			DeliveryStatus: domain.DeliveryStatusCreated,
			PaymentStatus:  domain.PaymentStatusCreated,
			PaymentGateway: gateway,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		order.Quantity += l.quantity
		order.OriginalPrice = order.OriginalPrice.Add(original)
		order.TotalPrice = order.TotalPrice.Add(total)
		details = append(details, detail)
	}

	if !d.renewal && paymentdomain.IsExternalGateway(gateway) && order.TotalPrice.GreaterThan(s.ceiling) {
		return nil, domain.ErrPriceOutOfBounds
	}

	// a concurrent order can claim the number between the check and the insert
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := s.nextOrderNumber(ctx, tx)
			if err != nil {
				return err
			}
			order.OrderNumber = number
			if err := s.repo.Insert(ctx, tx, order); err != nil {
				return err
			}
			for i := range details {
				details[i].OrderNumber = number
				if err := s.repo.InsertDetail(ctx, tx, &details[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if !db.IsDuplicateKeyErr(err) {
			break
		}
		s.log.Warn("order number taken, retrying", zap.String("order_number", order.OrderNumber))
	}
	if db.IsDuplicateKeyErr(err) {
		return nil, domain.ErrOrderNumberExhausted
	}
	if err != nil {
		return nil, err
	}

	order.Details = details
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("type", string(order.Type)),
		zap.String("total_price", order.TotalPrice.StringFixed(2)),
	)
	return order, nil
}

// ulidOrderNumber derives a short number from the random tail of a ULID.
func ulidOrderNumber(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	raw := id.String()
	return "CP" + raw[len(raw)-10:], nil
}

// nextOrderNumber retries on the rare collision with an existing order.
func (s *Service) nextOrderNumber(ctx context.Context, conn *gorm.DB) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := s.newOrderNumber(s.clock.Now())
		if err != nil {
			return "", err
		}
		exists, err := s.repo.OrderNumberExists(ctx, conn, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", domain.ErrOrderNumberExhausted
}

func (s *Service) applyCoupon(ctx context.Context, code string, userID snowflake.ID) (*coupondomain.Applied, error) {
	if strings.TrimSpace(code) == "" || s.coupons == nil {
		return nil, nil
	}
	return s.coupons.ApplyCoupon(ctx, code, userID)
}

func (s *Service) loadBuyer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.User, error) {
	if id == 0 {
		return nil, domain.ErrInvalidBuyer
	}
	user, err := s.catalog.FindUser(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, catalogdomain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) loadPerformer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Performer, error) {
	performer, err := s.catalog.FindPerformer(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if performer == nil {
		return nil, catalogdomain.ErrPerformerNotFound
	}
	return performer, nil
}
