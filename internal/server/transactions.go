package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

type checkoutRequest struct {
	OrderID   snowflake.ID `json:"order_id"`
	Gateway   string       `json:"gateway"`
	ReturnURL string       `json:"return_url"`
}

// Checkout opens a transaction for a CREATED order and returns the hosted
// payment page when the gateway has one.
func (s *Server) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}
	resp, err := s.paymentSvc.Checkout(c.Request.Context(), paymentdomain.CheckoutInput{
		OrderID:   req.OrderID,
		BuyerID:   currentUserID(c),
		Gateway:   strings.TrimSpace(req.Gateway),
		ReturnURL: strings.TrimSpace(req.ReturnURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	txn, err := s.paymentSvc.Get(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) CancelTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.paymentSvc.Cancel(c.Request.Context(), id, currentUserID(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
