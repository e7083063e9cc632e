package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/billie-coop/ollamagate/internal/llm"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
	"github.com/billie-coop/ollamagate/internal/origin"
)

// ErrUnauthorized is returned by OpenStream when the caller's origin is not allowed.
var ErrUnauthorized = errors.New("unauthorized origin")

// errUpstream marks an action whose Result is a failure. The Result itself
// carries the caller-facing message.
var errUpstream = errors.New("upstream request failed")

// Service is the caller-facing core: gate, classify, schedule, forward.
type Service struct {
	origins *origin.Manager
	client  *llm.OllamaClient
	queue   *queue.Manager
	logger  *zap.Logger
}

// NewService creates a new service
func NewService(origins *origin.Manager, client *llm.OllamaClient, q *queue.Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		origins: origins,
		client:  client,
		queue:   q,
		logger:  logger,
	}
}

// UnauthorizedMessage is the failure text for a caller outside the allow-list.
func UnauthorizedMessage(callerOrigin string) string {
	return fmt.Sprintf("Unauthorized domain: %s. Please add it to the allow-list.", callerOrigin)
}

// UnauthorizedStreamMessage is the error event text for a streaming caller
// outside the allow-list.
func UnauthorizedStreamMessage(callerOrigin string) string {
	return fmt.Sprintf("Unauthorized domain for streaming: %s.", callerOrigin)
}

// Handle runs a one-shot request on behalf of callerOrigin.
// Unauthorized callers are answered immediately and never queued.
func (s *Service) Handle(ctx context.Context, req llm.Request, callerOrigin string) llm.Result {
	if !s.origins.Authorize(ctx, callerOrigin) {
		s.logger.Info("Rejected request from unauthorized origin",
			zap.String("origin", callerOrigin),
			zap.String("request", llm.Name(req)))
		return llm.Failure(UnauthorizedMessage(callerOrigin))
	}
	return s.submit(ctx, req, callerOrigin)
}

// submit queues a one-shot request in its class and waits for the result.
func (s *Service) submit(ctx context.Context, req llm.Request, callerOrigin string) llm.Result {
	req = llm.WithStream(req, false)

	var result llm.Result
	fut := s.queue.Submit(ctx, req.Class(), func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result = s.client.Do(ctx, req)
		if !result.Success {
			return fmt.Errorf("%w: %s", errUpstream, result.Error)
		}
		return nil
	}, queue.WithType(llm.Name(req)), queue.WithMetadata("origin", callerOrigin))

	err := fut.Wait(ctx)
	switch {
	case err == nil, errors.Is(err, errUpstream):
		return result
	case errors.Is(err, queue.ErrQueueCleared):
		return llm.Failure(queue.ErrQueueCleared.Error())
	default:
		return llm.Failure(err.Error())
	}
}

// OpenStream relays a streaming request to sink once its class has a free slot.
// It returns when the stream has ended: done, error or disconnected has been sent.
//
// Unauthorized callers get a single error event and are never queued.
func (s *Service) OpenStream(ctx context.Context, req llm.Request, callerOrigin string, sink llm.Sink) error {
	if !s.origins.Authorize(ctx, callerOrigin) {
		s.logger.Info("Rejected stream from unauthorized origin",
			zap.String("origin", callerOrigin),
			zap.String("request", llm.Name(req)))
		_ = sink.Send(llm.Event{Type: llm.EventError, Error: UnauthorizedStreamMessage(callerOrigin)})
		return ErrUnauthorized
	}

	req = llm.WithStream(req, true)
	started := make(chan struct{})
	fut := s.queue.Submit(ctx, req.Class(), func(ctx context.Context) error {
		close(started)
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.client.Stream(ctx, req, sink)
	}, queue.WithType("stream:"+llm.Name(req)), queue.WithMetadata("origin", callerOrigin))

	select {
	case <-fut.Done():
	case <-ctx.Done():
		select {
		case <-started:
			// The transport aborts the upstream exchange when ctx ends and
			// Relay checks ctx between reads, so the item settles right
			// after sending disconnected.
			<-fut.Done()
		default:
			s.logger.Debug("Stream caller left while queued", zap.String("id", fut.ID()))
			return ctx.Err()
		}
	}

	err := fut.Err()
	if errors.Is(err, queue.ErrQueueCleared) {
		_ = sink.Send(llm.Event{Type: llm.EventError, Error: err.Error()})
	}
	return err
}

// SendPrompt runs a single non-streamed generation. Used by the local admin surface.
func (s *Service) SendPrompt(ctx context.Context, model, prompt string) llm.Result {
	return s.submit(ctx, llm.Generate{Params: llm.Params{"model": model, "prompt": prompt}}, "admin")
}
