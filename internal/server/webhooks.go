package server

import (
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/creatorpay/internal/observability/context"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

const maxWebhookBody = 1 << 20

// HandleGatewayWebhook feeds one gateway notification to the webhook service
// and answers with the body the gateway expects.
func (s *Server) HandleGatewayWebhook(gateway string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}

		req := paymentdomain.InboundRequest{
			Method:   c.Request.Method,
			Query:    c.Request.URL.Query(),
			Form:     url.Values{},
			Body:     body,
			Headers:  c.Request.Header.Clone(),
			RemoteIP: c.ClientIP(),
		}
		if mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type")); mediaType == "application/x-www-form-urlencoded" {
			form, err := url.ParseQuery(string(body))
			if err != nil {
				AbortWithError(c, invalidRequestError())
				return
			}
			req.Form = form
		}

		ctx := obscontext.WithGateway(c.Request.Context(), gateway)
		ack, err := s.webhookSvc.IngestWebhook(ctx, gateway, req)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		contentType := "text/plain; charset=utf-8"
		var payload []byte
		if ack != nil {
			payload = ack.Body
			if ack.ContentType != "" {
				contentType = ack.ContentType
			}
		}
		if len(payload) == 0 {
			payload = []byte("OK")
		}
		c.Data(http.StatusOK, contentType, payload)
	}
}
