package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kingrea/raga-review/internal/bus"
	"github.com/kingrea/raga-review/internal/review"
)

type mockPutEvents struct {
	mock.Mock
}

func (m *mockPutEvents) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

type fakeTrail struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeTrail) Info(format string, args ...any) { f.add("INFO " + fmt.Sprintf(format, args...)) }
func (f *fakeTrail) Warn(format string, args ...any) { f.add("WARN " + fmt.Sprintf(format, args...)) }

func (f *fakeTrail) add(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func (f *fakeTrail) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

type failingSink struct {
	calls int
}

func (s *failingSink) Name() string { return "flaky" }

func (s *failingSink) Deliver(context.Context, review.Event) error {
	s.calls++
	return errors.New("unavailable")
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *countingRecorder) RecordDelivery(topic, sink string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.outcomes = append(r.outcomes, topic+"/"+sink+"/"+outcome)
}

func flagEvent() review.Event {
	return review.Event{
		ID:         "evt-1",
		Type:       review.EventFlaggedHighRisk,
		SummaryID:  "w1",
		UserName:   "Priya S.",
		Status:     review.StatusPending,
		Emotion:    "Anxiety",
		Score:      62,
		OccurredAt: time.Date(2025, time.October, 13, 9, 30, 0, 0, time.UTC),
	}
}

func TestEventBridgeSinkPublishesEntry(t *testing.T) {
	client := &mockPutEvents{}
	client.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		if len(in.Entries) != 1 {
			return false
		}
		entry := in.Entries[0]
		var detail review.Event
		if err := json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail); err != nil {
			return false
		}
		return aws.ToString(entry.EventBusName) == "clinical" &&
			aws.ToString(entry.Source) == DefaultSource &&
			aws.ToString(entry.DetailType) == string(review.EventFlaggedHighRisk) &&
			detail.SummaryID == "w1"
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	sink := NewEventBridgeSink(client, "clinical", "", zap.NewNop())
	require.NoError(t, sink.Deliver(context.Background(), flagEvent()))
	client.AssertExpectations(t)
}

func TestEventBridgeSinkReportsFailedEntries(t *testing.T) {
	client := &mockPutEvents{}
	client.On("PutEvents", mock.Anything, mock.Anything).Return(&eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []types.PutEventsResultEntry{
			{ErrorCode: aws.String("ThrottlingException"), ErrorMessage: aws.String("slow down")},
		},
	}, nil)
	sink := NewEventBridgeSink(client, "clinical", "", nil)
	err := sink.Deliver(context.Background(), flagEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 event(s) failed")

	client2 := &mockPutEvents{}
	client2.On("PutEvents", mock.Anything, mock.Anything).Return(nil, errors.New("network down"))
	err = NewEventBridgeSink(client2, "clinical", "", nil).Deliver(context.Background(), flagEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}

func TestBreakerSinkOpensAfterFailures(t *testing.T) {
	next := &failingSink{}
	sink := NewBreakerSink(next, BreakerSettings{MinRequests: 2, FailureThreshold: 0.5, Timeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		require.Error(t, sink.Deliver(context.Background(), flagEvent()))
	}
	assert.Equal(t, gobreaker.StateOpen, sink.State())

	err := sink.Deliver(context.Background(), flagEvent())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls, "open breaker must not call the sink")
	assert.Equal(t, "flaky", sink.Name())
}

func TestTrailSinkFormatsEvents(t *testing.T) {
	trail := &fakeTrail{}
	sink := NewTrailSink(trail)
	ctx := context.Background()
	require.NoError(t, sink.Deliver(ctx, review.Event{Type: review.EventApproved, SummaryID: "w1", UserName: "Priya S.", MicroTasks: []string{"walk", "breathe"}}))
	require.NoError(t, sink.Deliver(ctx, review.Event{Type: review.EventSentBack, SummaryID: "w2", UserName: "Arjun K.", Note: "Please review tone."}))
	require.NoError(t, sink.Deliver(ctx, flagEvent()))
	require.Error(t, sink.Deliver(ctx, review.Event{Type: "summary.archived"}))

	lines := trail.snapshot()
	require.Len(t, lines, 3)
	assert.Equal(t, "INFO Approved · w1 (Priya S.) · dispatched: walk; breathe", lines[0])
	assert.Equal(t, "INFO Sent back · w2 (Arjun K.) · Please review tone.", lines[1])
	assert.Equal(t, "WARN High risk · w1 (Priya S.) · Anxiety 62 · triage notified", lines[2])
}

func TestLogSinkNeverFails(t *testing.T) {
	sink := NewLogSink("triage", zap.NewNop())
	assert.NoError(t, sink.Deliver(context.Background(), flagEvent()))
	assert.Equal(t, "log", sink.Name())
}

func TestDispatcherDeliversFromStoreToSinks(t *testing.T) {
	router := bus.NewRouter()
	trail := &fakeTrail{}
	recorder := &countingRecorder{}
	dispatcher := NewDispatcher(
		NewWorker(router.Subscribe(bus.TopicAudit), NewTrailSink(trail), WithRecorder(recorder)),
		NewWorker(router.Subscribe(bus.TopicTriage), &failingSink{}, WithRecorder(recorder)),
	)
	dispatcher.Start(context.Background())

	store, err := review.NewStore([]review.Summary{
		{ID: "w1", UserName: "Priya S.", Status: review.StatusPending, MicroTasks: []string{"walk"}},
	}, review.WithPublisher(router))
	require.NoError(t, err)
	require.NoError(t, store.FlagHighRisk("w1"))
	require.NoError(t, store.Approve("w1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dispatcher.Stop(ctx)

	lines := trail.snapshot()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "High risk · w1")
	assert.Contains(t, lines[1], "Approved · w1")

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.ElementsMatch(t, []string{"audit/trail/ok", "audit/trail/ok", "triage/flaky/error"}, recorder.outcomes)
}
