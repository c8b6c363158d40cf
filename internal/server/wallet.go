package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	walletdomain "github.com/smallbiznis/creatorpay/internal/wallet/domain"
)

type tipRequest struct {
	PerformerID snowflake.ID    `json:"performer_id"`
	Amount      decimal.Decimal `json:"amount"`
}

type feedTipRequest struct {
	FeedID snowflake.ID    `json:"feed_id"`
	Amount decimal.Decimal `json:"amount"`
}

type chargeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) Tip(c *gin.Context) {
	var req tipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	receipt, err := s.walletSvc.Tip(c.Request.Context(), walletdomain.TipRequest{
		UserID:      currentUserID(c),
		PerformerID: req.PerformerID,
		Amount:      req.Amount,
	})
	s.respondReceipt(c, receipt, err)
}

func (s *Server) FeedTip(c *gin.Context) {
	var req feedTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	receipt, err := s.walletSvc.FeedTip(c.Request.Context(), walletdomain.FeedTipRequest{
		UserID: currentUserID(c),
		FeedID: req.FeedID,
		Amount: req.Amount,
	})
	s.respondReceipt(c, receipt, err)
}

func (s *Server) StartPrivateChat(c *gin.Context) {
	var req tipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	receipt, err := s.walletSvc.StartPrivateChat(c.Request.Context(), walletdomain.PrivateChatRequest{
		UserID:      currentUserID(c),
		PerformerID: req.PerformerID,
		Amount:      req.Amount,
	})
	s.respondReceipt(c, receipt, err)
}

func (s *Server) ChargePrivateChat(c *gin.Context) {
	orderID, ok := pathID(c, "order_id")
	if !ok {
		return
	}
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	receipt, err := s.walletSvc.ChargePrivateChat(c.Request.Context(), walletdomain.ChatChargeRequest{
		UserID:  currentUserID(c),
		OrderID: orderID,
		Amount:  req.Amount,
	})
	s.respondReceipt(c, receipt, err)
}

func (s *Server) respondReceipt(c *gin.Context, receipt *walletdomain.Receipt, err error) {
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": receipt})
}
