package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
)

func (s *Server) GetSubscription(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sub, err := s.subscriptions.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID := currentUserID(c)
	if sub.UserID != userID && sub.PerformerID != userID {
		AbortWithError(c, subscriptiondomain.ErrSubscriptionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

// CancelSubscription is open to the subscriber and the performer.
func (s *Server) CancelSubscription(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sub, err := s.subscriptions.Cancel(c.Request.Context(), subscriptiondomain.CancelRequest{
		SubscriptionID: id,
		ActorID:        currentUserID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionSubscriptionCancel,
		TargetType: auditdomain.TargetTypeSubscription,
		TargetID:   id.String(),
		Metadata:   map[string]any{"gateway": sub.PaymentGateway},
	})
	c.JSON(http.StatusOK, gin.H{"data": sub})
}
