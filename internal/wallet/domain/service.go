package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

var (
	ErrAmountOutOfBounds   = errors.New("amount_out_of_bounds")
	ErrChatSessionNotFound = errors.New("chat_session_not_found")
)

// Purposes label wallet debits in metrics and rate limit keys.
const (
	PurposeTip         = "tip"
	PurposeFeedTip     = "feed_tip"
	PurposePrivateChat = "private_chat"
)

type TipRequest struct {
	UserID      snowflake.ID
	PerformerID snowflake.ID
	Amount      decimal.Decimal
}

type FeedTipRequest struct {
	UserID snowflake.ID
	FeedID snowflake.ID
	Amount decimal.Decimal
}

type PrivateChatRequest struct {
	UserID      snowflake.ID
	PerformerID snowflake.ID
	Amount      decimal.Decimal
}

// ChatChargeRequest meters one more charge onto an open private chat order.
type ChatChargeRequest struct {
	UserID  snowflake.ID
	OrderID snowflake.ID
	Amount  decimal.Decimal
}

// Receipt is the synchronous result of a wallet payment.
type Receipt struct {
	Order       *orderdomain.Order         `json:"order"`
	Detail      *orderdomain.OrderDetail   `json:"detail"`
	Transaction *paymentdomain.Transaction `json:"transaction"`
}

// Limiter throttles wallet debits per buyer.
type Limiter interface {
	AllowDebit(ctx context.Context, userID snowflake.ID, purpose string) error
}

type Service interface {
	Tip(ctx context.Context, req TipRequest) (*Receipt, error)
	FeedTip(ctx context.Context, req FeedTipRequest) (*Receipt, error)
	StartPrivateChat(ctx context.Context, req PrivateChatRequest) (*Receipt, error)
	ChargePrivateChat(ctx context.Context, req ChatChargeRequest) (*Receipt, error)
}
