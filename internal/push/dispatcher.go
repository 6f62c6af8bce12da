package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/metrics"
)

// TokenDisabler marks a token as permanently invalid.
type TokenDisabler interface {
	DisablePushToken(ctx context.Context, token string) error
}

// Alerter notifies operators about configuration faults.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

// Config controls batching and retry.
type Config struct {
	BatchSize   int           // capped at MaxBatchSize
	MaxAttempts int           // per batch
	RetryDelay  time.Duration // backoff is attempt × RetryDelay
}

// Dispatcher sends messages through a Gateway in batches and applies the
// per-ticket feedback.
type Dispatcher struct {
	gateway  Gateway
	disabler TokenDisabler
	alerter  Alerter
	cfg      Config
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. alerter may be nil.
func NewDispatcher(gateway Gateway, disabler TokenDisabler, alerter Alerter, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	return &Dispatcher{
		gateway:  gateway,
		disabler: disabler,
		alerter:  alerter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Dispatch sends every message and never fails; all outcomes land in the
// Result.
func (d *Dispatcher) Dispatch(ctx context.Context, messages []Message) Result {
	var result Result
	if len(messages) == 0 {
		return result
	}

	var alertOnce sync.Once
	batches := (len(messages) + d.cfg.BatchSize - 1) / d.cfg.BatchSize

	for i := 0; i < len(messages); i += d.cfg.BatchSize {
		end := i + d.cfg.BatchSize
		if end > len(messages) {
			end = len(messages)
		}

		d.sendBatch(ctx, messages[i:end], i/d.cfg.BatchSize+1, batches, &result, &alertOnce)
	}

	d.logger.Info("push dispatch complete",
		zap.Int("messages", len(messages)),
		zap.Int("batches", batches),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)

	return result
}

func (d *Dispatcher) sendBatch(ctx context.Context, batch []Message, index, total int, result *Result, alertOnce *sync.Once) {
	ctx, span := otel.Tracer("fellowship/push").Start(ctx, "push.send_batch")
	defer span.End()

	span.SetAttributes(
		attribute.Int("push.batch_index", index),
		attribute.Int("push.batch_size", len(batch)),
	)

	tickets, attempts, err := d.sendWithRetry(ctx, batch)
	span.SetAttributes(attribute.Int("push.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")

		d.logger.Error("push batch failed",
			zap.Int("batch", index),
			zap.Int("batches", total),
			zap.Int("messages", len(batch)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)

		code := ErrCodeTransport
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			code = fmt.Sprintf("HTTP%d", gwErr.StatusCode)
		}

		for _, msg := range batch {
			result.Failed++
			result.Errors = append(result.Errors, TicketError{Token: msg.To, Code: code, Message: err.Error()})
			metrics.RecordTicket(StatusError, code)
		}
		return
	}

	for i, msg := range batch {
		if i >= len(tickets) {
			result.Failed++
			result.Errors = append(result.Errors, TicketError{Token: msg.To, Code: ErrCodeNoTicket})
			metrics.RecordTicket(StatusError, ErrCodeNoTicket)
			continue
		}

		ticket := tickets[i]
		if ticket.Status == StatusOK {
			result.Sent++
			metrics.RecordTicket(StatusOK, "")
			continue
		}

		code := ticket.ErrorCode()
		result.Failed++
		result.Errors = append(result.Errors, TicketError{Token: msg.To, Code: code, Message: ticket.Message})
		metrics.RecordTicket(StatusError, code)

		d.handleTicketError(ctx, msg, ticket, alertOnce)
	}

	if len(tickets) < len(batch) {
		d.logger.Warn("push gateway returned fewer tickets than messages",
			zap.Int("messages", len(batch)),
			zap.Int("tickets", len(tickets)),
		)
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, batch []Message) ([]Ticket, int, error) {
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		tickets, err := d.gateway.Send(ctx, batch)
		if err == nil {
			metrics.RecordGatewayAttempt("ok")
			return tickets, attempt, nil
		}

		lastErr = err
		if !errors.Is(err, ErrTransport) {
			metrics.RecordGatewayAttempt("rejected")
			return nil, attempt, err
		}

		metrics.RecordGatewayAttempt("transport_error")
		d.logger.Warn("push gateway attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
			zap.Error(err),
		)

		if attempt == d.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, attempt, fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * d.cfg.RetryDelay):
		}
	}

	return nil, d.cfg.MaxAttempts, fmt.Errorf("after %d attempts: %w", d.cfg.MaxAttempts, lastErr)
}

func (d *Dispatcher) handleTicketError(ctx context.Context, msg Message, ticket Ticket, alertOnce *sync.Once) {
	code := ticket.ErrorCode()

	switch code {
	case ErrCodeDeviceNotRegistered:
		if err := d.disabler.DisablePushToken(ctx, msg.To); err != nil {
			d.logger.Error("failed to disable unregistered push token", zap.Error(err))
			return
		}
		metrics.RecordTokenDisabled("device_not_registered", 1)
		d.logger.Info("disabled unregistered push token")

	case ErrCodeInvalidCredentials:
		d.logger.Error("push gateway rejected credentials",
			zap.String("message", ticket.Message),
		)
		alertOnce.Do(func() {
			if d.alerter == nil {
				return
			}
			if err := d.alerter.Alert(ctx,
				"Expo push credentials rejected",
				"Expo returned InvalidCredentials: "+ticket.Message,
			); err != nil {
				d.logger.Error("failed to send operator alert", zap.Error(err))
			}
		})

	case ErrCodeMessageTooBig:
		d.logger.Warn("push message too big, dropped",
			zap.Int("title_len", len(msg.Title)),
			zap.Int("body_len", len(msg.Body)),
		)

	default:
		d.logger.Warn("push ticket error",
			zap.String("code", code),
			zap.String("message", ticket.Message),
		)
	}
}
