// Package notify delivers review events to the collaborators outside the
// queue: the triage notifier for high-risk flags, the micro-task dispatcher
// for approvals, and the review trail.
//
// Each collaborator is a Sink. A Worker drains one bus subscription into one
// Sink, so a slow or failing collaborator never blocks the reviewer.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/raga-review/internal/review"
)

// Sink delivers a single event to an external collaborator.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt review.Event) error
}

// LogSink writes events to the structured log. It is the default sink when no
// remote transport is configured.
type LogSink struct {
	name   string
	logger *zap.Logger
}

// NewLogSink creates a sink that logs under name.
func NewLogSink(name string, logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{name: name, logger: logger.Named(name)}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, evt review.Event) error {
	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("type", string(evt.Type)),
		zap.String("summary", evt.SummaryID),
		zap.String("user", evt.UserName),
		zap.String("week", evt.WeekRange),
		zap.String("status", string(evt.Status)),
	}
	switch evt.Type {
	case review.EventFlaggedHighRisk:
		s.logger.Warn("high-risk summary escalated to triage", append(fields,
			zap.String("emotion", evt.Emotion),
			zap.Int("score", evt.Score),
		)...)
	case review.EventApproved:
		s.logger.Info("micro-tasks dispatched", append(fields,
			zap.Strings("micro_tasks", evt.MicroTasks),
		)...)
	default:
		s.logger.Info("review event", append(fields, zap.String("note", evt.Note))...)
	}
	return nil
}

// Trail is the human-readable review log.
type Trail interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// TrailSink appends a readable line per event to the review trail.
type TrailSink struct {
	trail Trail
}

// NewTrailSink wraps trail.
func NewTrailSink(trail Trail) *TrailSink {
	return &TrailSink{trail: trail}
}

// Name implements Sink.
func (s *TrailSink) Name() string { return "trail" }

// Deliver implements Sink.
func (s *TrailSink) Deliver(_ context.Context, evt review.Event) error {
	if s.trail == nil {
		return nil
	}
	switch evt.Type {
	case review.EventApproved:
		tasks := "no micro-tasks"
		if len(evt.MicroTasks) > 0 {
			tasks = strings.Join(evt.MicroTasks, "; ")
		}
		s.trail.Info("Approved · %s (%s) · dispatched: %s", evt.SummaryID, evt.UserName, tasks)
	case review.EventSentBack:
		s.trail.Info("Sent back · %s (%s) · %s", evt.SummaryID, evt.UserName, evt.Note)
	case review.EventFlaggedHighRisk:
		s.trail.Warn("High risk · %s (%s) · %s %d · triage notified", evt.SummaryID, evt.UserName, evt.Emotion, evt.Score)
	default:
		return fmt.Errorf("notify: unknown event type %q", evt.Type)
	}
	return nil
}
