// Package recurring bills gateway-stored subscriptions on a schedule. Each
// charge is a delayed asynq task keyed by performer, user, gateway and due date.
package recurring

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

const (
	TypeCharge = "recurring:charge"
	Queue      = "recurring"

	maxRetry = 3
)

// ChargeGateways lists the gateways whose renewals are merchant initiated.
var ChargeGateways = map[string]struct{}{
	paymentdomain.GatewayEmerchantpay: {},
}

func Supports(gateway string) bool {
	_, ok := ChargeGateways[paymentdomain.NormalizeGateway(gateway)]
	return ok
}

type ChargePayload struct {
	PerformerID     snowflake.ID `json:"performer_id"`
	UserID          snowflake.ID `json:"user_id"`
	Gateway         string       `json:"gateway"`
	Period          string       `json:"period"`
	SubscriptionRef string       `json:"subscription_ref"`
	DueAt           time.Time    `json:"due_at"`
}

// TaskID is unique per billing cycle so a running charge can enqueue its
// successor.
func TaskID(performerID, userID snowflake.ID, gateway string, dueAt time.Time) string {
	return fmt.Sprintf("recurring:%s:%s:%s:%s",
		performerID.String(),
		userID.String(),
		paymentdomain.NormalizeGateway(gateway),
		dueAt.UTC().Format("20060102"),
	)
}

func newChargeTask(p ChargePayload) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(Queue),
		asynq.TaskID(TaskID(p.PerformerID, p.UserID, p.Gateway, p.DueAt)),
		asynq.ProcessAt(p.DueAt.UTC()),
		asynq.MaxRetry(maxRetry),
	}
	return asynq.NewTask(TypeCharge, payload), opts, nil
}
