package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"github.com/smallbiznis/creatorpay/internal/audit/masking"
	gatewayconfigdomain "github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	"go.uber.org/zap"
)

type updateSettingRequest struct {
	Value string `json:"value"`
}

type upsertGatewayConfigRequest struct {
	PerformerID string         `json:"performer_id"`
	Config      map[string]any `json:"config"`
}

type setGatewayActiveRequest struct {
	PerformerID string `json:"performer_id"`
	IsActive    *bool  `json:"is_active"`
}

// UpdateSetting stores one settings override. Running processes pick it up
// when settings.updated is dispatched.
func (s *Server) UpdateSetting(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil || key == "" {
		AbortWithError(c, invalidRequestError())
		return
	}
	value := strings.TrimSpace(req.Value)
	if err := s.settings.Update(c.Request.Context(), key, value); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionSettingUpdate,
		TargetType: auditdomain.TargetTypeSetting,
		TargetID:   key,
		Metadata:   map[string]any{"value": value},
	})
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"key": key, "value": value}})
}

func (s *Server) UpsertGatewayConfig(c *gin.Context) {
	var req upsertGatewayConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	performerID, ok := optionalSnowflake(c, req.PerformerID, "performer_id")
	if !ok {
		return
	}

	summary, err := s.gatewayConfigs.Upsert(c.Request.Context(), gatewayconfigdomain.UpsertRequest{
		Gateway:     c.Param("gateway"),
		PerformerID: performerID,
		Config:      req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionGatewayConfigUpsert,
		TargetType: auditdomain.TargetTypeGatewayConfig,
		TargetID:   gatewayTarget(summary.Gateway, summary.PerformerID),
		Metadata:   map[string]any{"config": masking.MaskConfig(req.Config)},
	})
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) SetGatewayActive(c *gin.Context) {
	var req setGatewayActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	performerID, ok := optionalSnowflake(c, req.PerformerID, "performer_id")
	if !ok {
		return
	}

	summary, err := s.gatewayConfigs.SetActive(c.Request.Context(), c.Param("gateway"), performerID, *req.IsActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionGatewayConfigToggle,
		TargetType: auditdomain.TargetTypeGatewayConfig,
		TargetID:   gatewayTarget(summary.Gateway, summary.PerformerID),
		Metadata:   map[string]any{"is_active": summary.IsActive},
	})
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var req auditdomain.ListAuditLogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	resp, err := s.audit.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}

// recordAudit never fails the request; the action has already been applied.
func (s *Server) recordAudit(c *gin.Context, entry auditdomain.Entry) {
	if s.audit == nil {
		return
	}
	entry.IPAddress = c.ClientIP()
	entry.UserAgent = c.Request.UserAgent()
	ctx := context.WithoutCancel(c.Request.Context())
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("audit record failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

func optionalSnowflake(c *gin.Context, raw, field string) (snowflake.ID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	id, err := parseSnowflakeID(raw)
	if err != nil {
		AbortWithError(c, newValidationError(field, "invalid_"+field, "invalid value"))
		return 0, false
	}
	return id, true
}

func gatewayTarget(gateway string, performerID snowflake.ID) string {
	if performerID == 0 {
		return gateway
	}
	return gateway + ":" + performerID.String()
}
