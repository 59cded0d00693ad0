package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/kingrea/raga-review/internal/review"
)

// DefaultSource is the EventBridge source attribute for review events.
const DefaultSource = "raga-review.queue"

// PutEventsAPI is the subset of the EventBridge client the sink uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeSink publishes review events to an AWS EventBridge bus, where
// rules route them to the triage and task services.
type EventBridgeSink struct {
	client       PutEventsAPI
	eventBusName string
	source       string
	logger       *zap.Logger
}

// NewEventBridgeSink creates a sink bound to an existing client.
func NewEventBridgeSink(client PutEventsAPI, eventBusName, source string, logger *zap.Logger) *EventBridgeSink {
	if source == "" {
		source = DefaultSource
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgeSink{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		logger:       logger,
	}
}

// NewEventBridgeClient loads the default AWS credential chain for region.
func NewEventBridgeClient(ctx context.Context, region string) (*eventbridge.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: load aws config: %w", err)
	}
	return eventbridge.NewFromConfig(cfg), nil
}

// Name implements Sink.
func (s *EventBridgeSink) Name() string { return "eventbridge" }

// Deliver implements Sink.
func (s *EventBridgeSink) Deliver(ctx context.Context, evt review.Event) error {
	detail, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: encode %s: %w", evt.Type, err)
	}
	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(s.eventBusName),
		Source:       aws.String(s.source),
		DetailType:   aws.String(string(evt.Type)),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(evt.OccurredAt),
		Resources:    []string{fmt.Sprintf("summary/%s", evt.SummaryID)},
	}
	out, err := s.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("notify: put events: %w", err)
	}
	if out.FailedEntryCount > 0 {
		for _, failed := range out.Entries {
			if failed.ErrorCode != nil {
				s.logger.Error("eventbridge rejected entry",
					zap.String("type", string(evt.Type)),
					zap.String("summary", evt.SummaryID),
					zap.String("errorCode", aws.ToString(failed.ErrorCode)),
					zap.String("errorMessage", aws.ToString(failed.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("notify: %d event(s) failed to publish", out.FailedEntryCount)
	}
	s.logger.Debug("event published to eventbridge",
		zap.String("type", string(evt.Type)),
		zap.String("eventBus", s.eventBusName),
	)
	return nil
}
