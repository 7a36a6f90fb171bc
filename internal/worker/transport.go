package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Transport is the messaging capability the dispatcher sends through.
// Addresses are full transport addresses such as 554599306874@s.whatsapp.net.
type Transport interface {
	IsRegistered(ctx context.Context, address string) (bool, error)
	Send(ctx context.Context, address, text string) (string, error)
}

// mockTransport simulates WhatsApp with a configurable success rate
type mockTransport struct {
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
}

// NewMockTransport creates a transport for local development
// successRate: probability of success (0.0 to 1.0), default 0.92 (92%)
func NewMockTransport(successRate float64) Transport {
	if successRate <= 0 || successRate > 1.0 {
		successRate = 0.92
	}

	return &mockTransport{
		successRate: successRate,
		minDelay:    50 * time.Millisecond,
		maxDelay:    200 * time.Millisecond,
	}
}

// IsRegistered reports every address as registered after a simulated round trip
func (t *mockTransport) IsRegistered(ctx context.Context, address string) (bool, error) {
	if err := t.latency(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Send simulates sending a message
func (t *mockTransport) Send(ctx context.Context, address, text string) (string, error) {
	if err := t.latency(ctx); err != nil {
		return "", err
	}

	if rand.Float64() > t.successRate {
		return "", fmt.Errorf("mock transport failed: simulated network error")
	}

	return uuid.NewString(), nil
}

func (t *mockTransport) latency(ctx context.Context) error {
	delay := t.minDelay + rand.N(t.maxDelay-t.minDelay)

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
