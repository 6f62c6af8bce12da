package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
	"github.com/lalithlochan/fellowship/internal/metrics"
	"github.com/lalithlochan/fellowship/internal/push"
)

// Store is the persistence the pipeline reads.
type Store interface {
	FollowerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	PreferencesForUsers(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]db.NotificationPreferences, error)
	ActiveTokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]db.PushToken, error)
}

// Dispatcher sends built messages. *push.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, messages []push.Message) push.Result
}

// DispatchResult summarizes one pipeline run.
type DispatchResult struct {
	Kind       string `json:"kind"`
	Candidates int    `json:"candidates"`
	Recipients int    `json:"recipients"`
	Tokens     int    `json:"tokens"`
	push.Result
}

// Notifier runs the pipeline.
type Notifier struct {
	store      Store
	dispatcher Dispatcher
	logger     *zap.Logger
	timeout    time.Duration

	wg sync.WaitGroup
}

// NewNotifier creates a notifier. timeout bounds each background dispatch;
// zero means two minutes.
func NewNotifier(store Store, dispatcher Dispatcher, timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Notifier{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		timeout:    timeout,
	}
}

// Dispatch runs every stage for n and waits for the result. It never fails;
// degraded stages show up as smaller counts.
func (s *Notifier) Dispatch(ctx context.Context, n Notification) DispatchResult {
	start := time.Now()
	kind := n.Kind()

	ctx, span := otel.Tracer("fellowship/notify").Start(ctx, "notify.dispatch",
		trace.WithAttributes(attribute.String("notify.kind", kind)),
	)
	defer span.End()

	result := DispatchResult{Kind: kind}
	defer func() {
		span.SetAttributes(
			attribute.Int("notify.candidates", result.Candidates),
			attribute.Int("notify.recipients", result.Recipients),
			attribute.Int("notify.tokens", result.Tokens),
			attribute.Int("notify.sent", result.Sent),
			attribute.Int("notify.failed", result.Failed),
		)
		metrics.RecordDispatch(kind, result.Recipients, result.Tokens, time.Since(start))
	}()

	content := BuildMessage(n)

	candidates := s.ResolveRecipients(ctx, n)
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		s.logger.Debug("no recipients for notification", zap.String("kind", kind))
		return result
	}

	recipients := s.FilterByPreference(ctx, candidates, n)
	result.Recipients = len(recipients)
	if len(recipients) == 0 {
		s.logger.Debug("no recipients after preference filtering",
			zap.String("kind", kind),
			zap.Int("candidates", len(candidates)),
		)
		return result
	}

	tokens := s.ResolveTokens(ctx, recipients)
	result.Tokens = len(tokens)
	if len(tokens) == 0 {
		s.logger.Debug("no active push tokens",
			zap.String("kind", kind),
			zap.Int("recipients", len(recipients)),
		)
		return result
	}

	result.Result = s.dispatcher.Dispatch(ctx, content.Messages(tokens))

	s.logger.Info("notification dispatched",
		zap.String("kind", kind),
		zap.Int("candidates", result.Candidates),
		zap.Int("recipients", result.Recipients),
		zap.Int("tokens", result.Tokens),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)),
	)

	return result
}

// NotifyEventCreated tells the creator's followers about a new event.
func (s *Notifier) NotifyEventCreated(ctx context.Context, event *db.Event, creator *db.User) <-chan DispatchResult {
	return s.spawn(ctx, EventCreated{
		Actor: ActorFromUser(creator),
		Event: ResourceFromEvent(event),
	})
}

// NotifyResourceLiked tells the owner of an event or prayer request about a
// like.
func (s *Notifier) NotifyResourceLiked(ctx context.Context, resource *db.Resource, like *db.Like, actor *db.User) <-chan DispatchResult {
	return s.spawn(ctx, ResourceLiked{
		Actor:    ActorFromUser(actor),
		Resource: ResourceFromDB(resource),
		Like:     Action{ID: like.ID},
	})
}

// NotifyResourceCommented tells the owner about a comment.
func (s *Notifier) NotifyResourceCommented(ctx context.Context, resource *db.Resource, comment *db.Comment, actor *db.User) <-chan DispatchResult {
	return s.spawn(ctx, ResourceCommented{
		Actor:    ActorFromUser(actor),
		Resource: ResourceFromDB(resource),
		Comment:  Action{ID: comment.ID, Text: comment.Text},
	})
}

// spawn runs Dispatch in the background. The returned channel yields the
// result and is then closed; callers are free to ignore it. The dispatch
// outlives the caller's context (values such as the trace are kept) and is
// bounded by the notifier timeout.
func (s *Notifier) spawn(ctx context.Context, n Notification) <-chan DispatchResult {
	out := make(chan DispatchResult, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("notification dispatch panicked",
					zap.String("kind", n.Kind()),
					zap.String("panic", fmt.Sprint(r)),
					zap.Stack("stack"),
				)
			}
		}()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		out <- s.Dispatch(dctx, n)
	}()

	return out
}

// Wait blocks until in-flight background dispatches finish or ctx is done.
func (s *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for dispatches: %w", ctx.Err())
	}
}
