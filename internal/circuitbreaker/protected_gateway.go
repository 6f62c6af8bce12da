package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/push"
)

// ProtectedGateway wraps a push.Gateway with a breaker. Only transport
// failures count against the breaker; a 4xx means the gateway is up.
type ProtectedGateway struct {
	gateway push.Gateway
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func NewProtectedGateway(gateway push.Gateway, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedGateway {
	return &ProtectedGateway{
		gateway: gateway,
		breaker: breaker,
		logger:  logger,
	}
}

// Send fails fast with an error matching both push.ErrTransport and
// ErrCircuitOpen while the breaker is open, so the dispatcher treats it as
// retryable.
func (p *ProtectedGateway) Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected push batch",
			zap.String("breaker", p.breaker.Name()),
			zap.Int("messages", len(messages)),
		)
		return nil, fmt.Errorf("%w: %w", push.ErrTransport, ErrCircuitOpen)
	}

	tickets, err := p.gateway.Send(ctx, messages)
	if err != nil && errors.Is(err, push.ErrTransport) {
		p.breaker.RecordFailure()
		return nil, err
	}

	p.breaker.RecordSuccess()
	return tickets, err
}

// Breaker exposes the wrapped breaker for health reporting.
func (p *ProtectedGateway) Breaker() *CircuitBreaker {
	return p.breaker
}
