package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
)

type createSubscriptionOrderRequest struct {
	PerformerID snowflake.ID `json:"performer_id"`
	Period      string       `json:"period"`
	CouponCode  string       `json:"coupon_code"`
	Gateway     string       `json:"gateway"`
}

type createItemOrderRequest struct {
	ItemID     snowflake.ID `json:"item_id"`
	CouponCode string       `json:"coupon_code"`
	Gateway    string       `json:"gateway"`
}

type cartItemRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	Quantity  int64        `json:"quantity"`
}

type createProductOrderRequest struct {
	Items      []cartItemRequest `json:"items"`
	CouponCode string            `json:"coupon_code"`
	Gateway    string            `json:"gateway"`
}

type createWalletPackageOrderRequest struct {
	PackageID snowflake.ID `json:"package_id"`
	Gateway   string       `json:"gateway"`
}

type updateDeliveryRequest struct {
	Status string `json:"status"`
}

type createWalletTopupOrderRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Gateway string          `json:"gateway"`
}

func (s *Server) CreateSubscriptionOrder(c *gin.Context) {
	var req createSubscriptionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	order, err := s.orderSvc.CreateSubscriptionOrder(c.Request.Context(), orderdomain.CreateSubscriptionOrderRequest{
		UserID:      currentUserID(c),
		PerformerID: req.PerformerID,
		Period:      strings.TrimSpace(req.Period),
		CouponCode:  strings.TrimSpace(req.CouponCode),
		Gateway:     strings.TrimSpace(req.Gateway),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) CreateVideoOrder(c *gin.Context) {
	s.createItemOrder(c, s.orderSvc.CreateVideoOrder)
}

func (s *Server) CreatePhotoOrder(c *gin.Context) {
	s.createItemOrder(c, s.orderSvc.CreatePhotoOrder)
}

func (s *Server) CreateFeedOrder(c *gin.Context) {
	s.createItemOrder(c, s.orderSvc.CreateFeedOrder)
}

type itemOrderFunc func(ctx context.Context, req orderdomain.CreateItemOrderRequest) (*orderdomain.Order, error)

func (s *Server) createItemOrder(c *gin.Context, create itemOrderFunc) {
	var req createItemOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	order, err := create(c.Request.Context(), orderdomain.CreateItemOrderRequest{
		UserID:     currentUserID(c),
		ItemID:     req.ItemID,
		CouponCode: strings.TrimSpace(req.CouponCode),
		Gateway:    strings.TrimSpace(req.Gateway),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) CreateProductOrder(c *gin.Context) {
	var req createProductOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	items := make([]orderdomain.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orderdomain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	order, err := s.orderSvc.CreateProductOrder(c.Request.Context(), orderdomain.CreateProductOrderRequest{
		UserID:     currentUserID(c),
		Items:      items,
		CouponCode: strings.TrimSpace(req.CouponCode),
		Gateway:    strings.TrimSpace(req.Gateway),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) CreateWalletPackageOrder(c *gin.Context) {
	var req createWalletPackageOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	order, err := s.orderSvc.CreateWalletPackageOrder(c.Request.Context(), orderdomain.CreateWalletPackageOrderRequest{
		UserID:    currentUserID(c),
		PackageID: req.PackageID,
		Gateway:   strings.TrimSpace(req.Gateway),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) CreateWalletTopupOrder(c *gin.Context) {
	var req createWalletTopupOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	order, err := s.orderSvc.CreateWalletTopupOrder(c.Request.Context(), orderdomain.CreateWalletTopupOrderRequest{
		UserID:  currentUserID(c),
		Amount:  req.Amount,
		Gateway: strings.TrimSpace(req.Gateway),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID := currentUserID(c)
	if order.BuyerID != userID && order.SellerID != userID {
		AbortWithError(c, orderdomain.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// UpdateDeliveryStatus lets the seller mark physical goods shipped or delivered.
func (s *Server) UpdateDeliveryStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status := orderdomain.DeliveryStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if status != orderdomain.DeliveryStatusShipping && status != orderdomain.DeliveryStatusDelivered {
		AbortWithError(c, newValidationError("status", "invalid_status", "must be shipping or delivered"))
		return
	}
	order, err := s.orderSvc.UpdateDeliveryStatus(c.Request.Context(), orderdomain.UpdateDeliveryRequest{
		OrderID:  id,
		SellerID: currentUserID(c),
		Status:   status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionOrderDelivery,
		TargetType: auditdomain.TargetTypeOrder,
		TargetID:   order.ID.String(),
		Metadata:   map[string]any{"delivery_status": string(status), "order_status": string(order.Status)},
	})
	c.JSON(http.StatusOK, gin.H{"data": order})
}
