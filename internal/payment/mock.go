package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

// DefaultSuccessRate is the share of charges MockGateway approves.
const DefaultSuccessRate = 0.9

// MockGateway simulates a processor.  Charges succeed with the configured
// probability and refunds always succeed.
type MockGateway struct {
	mu          sync.Mutex
	successRate float64
	latency     time.Duration
	roll        func() float64
}

// MockOption configures a MockGateway.
type MockOption func(*MockGateway)

// WithLatency delays every gateway call.
func WithLatency(d time.Duration) MockOption {
	return func(g *MockGateway) { g.latency = d }
}

// WithRoll replaces the random source; roll must return values in [0, 1).
func WithRoll(roll func() float64) MockOption {
	return func(g *MockGateway) { g.roll = roll }
}

// NewMockGateway builds a MockGateway.  Rates outside [0, 1] fall back to
// DefaultSuccessRate.
func NewMockGateway(successRate float64, opts ...MockOption) *MockGateway {
	if successRate < 0 || successRate > 1 {
		successRate = DefaultSuccessRate
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	g := &MockGateway{successRate: successRate, roll: rnd.Float64}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *MockGateway) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *MockGateway) ProcessPayment(ctx context.Context, req Request) (Result, error) {
	if err := g.wait(ctx); err != nil {
		return Result{}, err
	}
	if req.AmountCents <= 0 {
		return Result{Status: model.PaymentFailed, Message: "invalid amount"}, nil
	}

	g.mu.Lock()
	approved := g.roll() < g.successRate
	g.mu.Unlock()

	res := Result{GatewayPaymentID: "pay_" + shortuuid.New()[:8]}
	if approved {
		res.Status = model.PaymentSuccess
		res.TransactionID = "txn_" + shortuuid.New()[:8]
		res.Message = fmt.Sprintf("charged %d cents via %s", req.AmountCents, req.Method)
	} else {
		res.Status = model.PaymentFailed
		res.Message = "declined by issuer"
	}
	return res, nil
}

func (g *MockGateway) RefundPayment(ctx context.Context, req RefundRequest) (Result, error) {
	if err := g.wait(ctx); err != nil {
		return Result{}, err
	}
	return Result{
		Status:           model.PaymentSuccess,
		GatewayPaymentID: req.GatewayPaymentID,
		TransactionID:    "refund_" + shortuuid.New()[:8],
		Message:          fmt.Sprintf("refunded %d cents", req.AmountCents),
	}, nil
}
