package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrPaymentDeclined = errors.New("payment was declined")

type ChargeRequest struct {
	UserID      uuid.UUID
	AmountCents int64
	Currency    string
	Method      string
	CardToken   string
}

// Gateway charges a payment method
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (providerRef string, err error)
}

// SandboxGateway accepts every charge except card tokens containing
// "declined" in any case, e.g. "tok_chargeDeclined".
type SandboxGateway struct{}

func (SandboxGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Method == "card" && strings.Contains(strings.ToLower(req.CardToken), "declined") {
		return "", ErrPaymentDeclined
	}
	return "sbx_" + uuid.NewString(), nil
}
