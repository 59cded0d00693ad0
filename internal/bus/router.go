// Package bus fans review events out to in-process consumers.
//
// Consumers subscribe to a topic (triage, tasks, audit). Events published
// before a topic has a subscriber are held in a bounded backlog and flushed on
// the first Subscribe. Each subscriber owns a bounded channel. When a backlog
// or channel is full the oldest routine event is dropped; a high-risk flag is
// only ever displaced by a newer flag, and surviving events keep their order.
package bus

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kingrea/raga-review/internal/review"
)

// Topic names a class of consumers.
type Topic string

const (
	TopicTriage Topic = "triage"
	TopicTasks  Topic = "tasks"
	TopicAudit  Topic = "audit"
)

const (
	defaultSubscriberCapacity = 64
	defaultBacklogLimit       = 32
	defaultDedupeWindow       = 512
)

// TopicsFor returns the topics an event is delivered to.
func TopicsFor(kind review.EventType) []Topic {
	switch kind {
	case review.EventApproved:
		return []Topic{TopicTasks, TopicAudit}
	case review.EventFlaggedHighRisk:
		return []Topic{TopicTriage, TopicAudit}
	case review.EventSentBack:
		return []Topic{TopicAudit}
	}
	return nil
}

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// WithLogger injects a logger for drop diagnostics.
func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.channelSize = n
		}
	}
}

// WithBacklogLimit overrides the per-topic backlog held before the first subscriber.
func WithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// WithDedupeWindow controls how many recent event ids are remembered.
func WithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Router delivers review events to topic subscribers.
type Router struct {
	mu           sync.RWMutex
	subscribers  map[Topic]map[*subscriber]struct{}
	backlog      map[Topic][]review.Event
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       *zap.Logger
}

// Subscription is an active topic subscription.
type Subscription struct {
	Topic  Topic
	Events <-chan review.Event
	cancel func()
}

// Close terminates the subscription and closes its channel.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with default bounds.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[Topic]map[*subscriber]struct{}{},
		backlog:      map[Topic][]review.Event{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Subscribe registers for events on topic and flushes any backlog.
func (r *Router) Subscribe(topic Topic) Subscription {
	topic = normalizeTopic(topic)
	sub := newSubscriber(r.channelSize, r.logger)
	var backlog []review.Event
	r.mu.Lock()
	if r.subscribers[topic] == nil {
		r.subscribers[topic] = map[*subscriber]struct{}{}
	}
	r.subscribers[topic][sub] = struct{}{}
	if existing := r.backlog[topic]; len(existing) > 0 {
		backlog = append(backlog, existing...)
		delete(r.backlog, topic)
	}
	r.mu.Unlock()
	for _, evt := range backlog {
		sub.deliver(evt)
	}
	return Subscription{
		Topic:  topic,
		Events: sub.channel(),
		cancel: func() {
			r.removeSubscriber(topic, sub)
		},
	}
}

// Publish satisfies review.Publisher.
func (r *Router) Publish(evt review.Event) {
	r.Route(evt)
}

// Route delivers evt to every topic it belongs to. Events without a known
// topic are ignored; repeated event ids are delivered once.
func (r *Router) Route(evt review.Event) {
	topics := TopicsFor(evt.Type)
	if len(topics) == 0 {
		return
	}
	if evt.ID != "" && r.isDuplicate(evt.ID) {
		return
	}
	for _, topic := range topics {
		r.mu.RLock()
		subs := r.snapshotSubscribers(topic)
		r.mu.RUnlock()
		if len(subs) == 0 {
			r.bufferEvent(topic, evt)
			continue
		}
		for _, sub := range subs {
			sub.deliver(evt)
		}
	}
}

// Close ends every subscription.
func (r *Router) Close() {
	r.mu.Lock()
	all := r.subscribers
	r.subscribers = map[Topic]map[*subscriber]struct{}{}
	r.mu.Unlock()
	for _, subs := range all {
		for sub := range subs {
			sub.close()
		}
	}
}

func (r *Router) snapshotSubscribers(topic Topic) []*subscriber {
	live := r.subscribers[topic]
	if len(live) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(live))
	for sub := range live {
		items = append(items, sub)
	}
	return items
}

func (r *Router) removeSubscriber(topic Topic, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs := r.subscribers[topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, topic)
		}
	}
	sub.close()
}

func (r *Router) bufferEvent(topic Topic, evt review.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.backlog[topic]
	if len(queue) >= r.backlogLimit {
		drop := evictionIndex(queue, evt)
		if drop < 0 {
			r.logger.Warn("bus: backlog full, dropping event",
				zap.String("topic", string(topic)),
				zap.String("type", string(evt.Type)),
				zap.Int("limit", r.backlogLimit),
			)
			return
		}
		r.logger.Warn("bus: backlog full, dropping event",
			zap.String("topic", string(topic)),
			zap.String("type", string(queue[drop].Type)),
			zap.Int("limit", r.backlogLimit),
		)
		queue = append(queue[:drop:drop], queue[drop+1:]...)
	}
	r.backlog[topic] = append(queue, evt)
}

// evictionIndex picks which held event to drop so incoming fits: the oldest
// routine event, else the oldest flag when incoming is itself a flag. It
// returns -1 when incoming should be dropped instead.
func evictionIndex(held []review.Event, incoming review.Event) int {
	for i, evt := range held {
		if !evt.Type.Critical() {
			return i
		}
	}
	if incoming.Type.Critical() && len(held) > 0 {
		return 0
	}
	return -1
}

func (r *Router) isDuplicate(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[eventID]; ok {
		return true
	}
	r.recentIDs[eventID] = struct{}{}
	r.recentOrder = append(r.recentOrder, eventID)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

func normalizeTopic(topic Topic) Topic {
	return Topic(strings.TrimSpace(strings.ToLower(string(topic))))
}

type subscriber struct {
	ch      chan review.Event
	logger  *zap.Logger
	closed  bool
	closeMu sync.Mutex
}

func newSubscriber(capacity int, logger *zap.Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan review.Event, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan review.Event {
	return s.ch
}

// deliver never blocks. The close lock is held for the whole send so a
// concurrent close cannot race the channel write; it also makes deliver the
// only writer, so on overflow the buffered events can be drained, one evicted
// by evictionIndex, and the rest put back in their original order.
func (s *subscriber) deliver(evt review.Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	held := make([]review.Event, 0, cap(s.ch))
drain:
	for {
		select {
		case queued := <-s.ch:
			held = append(held, queued)
		default:
			break drain
		}
	}
	if len(held) < cap(s.ch) {
		// the consumer made room in between
		for _, queued := range held {
			s.ch <- queued
		}
		s.ch <- evt
		return
	}
	drop := evictionIndex(held, evt)
	if drop < 0 {
		for _, queued := range held {
			s.ch <- queued
		}
		s.logDrop(evt, "queue overflow:incoming")
		return
	}
	s.logDrop(held[drop], "queue overflow")
	for i, queued := range held {
		if i != drop {
			s.ch <- queued
		}
	}
	s.ch <- evt
}

func (s *subscriber) logDrop(evt review.Event, reason string) {
	s.logger.Warn("bus: dropped event",
		zap.String("type", string(evt.Type)),
		zap.String("summary", evt.SummaryID),
		zap.String("reason", reason),
	)
}

func (s *subscriber) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
