package video

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handler receives each published record.
//
// The record is the publisher's live buffer: it is only valid until the
// handler returns. Use Record.Clone to keep it.
type Handler func(rec *Record)

// Subscription identifies a registered handler.
type Subscription struct {
	ID uuid.UUID
}

// String returns the subscription id.
func (s Subscription) String() string {
	return s.ID.String()
}

type subscriber struct {
	sub     Subscription
	handler Handler
}

// PublisherStats holds publisher counters.
type PublisherStats struct {
	Published        uint64 `json:"published"`
	Bytes            uint64 `json:"bytes"`
	Allocations      uint64 `json:"allocations"`
	Subscribers      int    `json:"subscribers"`
	SubscriberPanics uint64 `json:"subscriber_panics"`
}

// RecordPublisher wraps frames into records and fans them out to subscribers.
//
// It owns exactly one Record buffer. The first Publish allocates it; later
// calls renew it in place.
//
// Thread Safety:
//   - Publish must be called from a single goroutine (the capture loop).
//   - All other methods are safe for concurrent use.
type RecordPublisher struct {
	clock  func() time.Time
	logger Logger

	// mu guards the descriptors, the live record and its capture time.
	mu         sync.RWMutex
	schema     OutputSchema
	encoding   EncodingDescriptor
	latest     *Record
	latestTime time.Time

	// subs is replaced, never mutated, so delivery can iterate a snapshot.
	subMu sync.RWMutex
	subs  []subscriber

	published   atomic.Uint64
	bytes       atomic.Uint64
	allocations atomic.Uint64
	panics      atomic.Uint64
}

// NewRecordPublisher creates a publisher for records of the given schema.
func NewRecordPublisher(schema OutputSchema, encoding EncodingDescriptor) *RecordPublisher {
	return &RecordPublisher{
		schema:   schema.clone(),
		encoding: encoding.clone(),
		clock:    time.Now,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger used to report subscriber panics.
func (p *RecordPublisher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Schema returns a copy of the record schema.
func (p *RecordPublisher) Schema() OutputSchema {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.schema.clone()
}

// Encoding returns a copy of the encoding descriptor.
func (p *RecordPublisher) Encoding() EncodingDescriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.encoding.clone()
}

// describe replaces the descriptors and drops the record built for the old
// ones. It is only called while no capture loop is running.
func (p *RecordPublisher) describe(schema OutputSchema, encoding EncodingDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schema = schema.clone()
	p.encoding = encoding.clone()
	p.latest = nil
	p.latestTime = time.Time{}
}

func (p *RecordPublisher) described() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.schema.IsZero()
}

// Publish timestamps frame, stores it as the latest record and delivers it
// to every subscriber in registration order before returning.
//
// Timestamps never decrease, even if the wall clock steps backwards.
func (p *RecordPublisher) Publish(frame Frame) *Record {
	now := p.clock()
	ts := float64(now.UnixNano()) / float64(time.Second)

	p.mu.Lock()
	if p.latest == nil {
		p.latest = &Record{Frame: make([]byte, 0, len(frame))}
		p.allocations.Add(1)
	} else if ts < p.latest.Timestamp {
		ts = p.latest.Timestamp
	}
	p.latest.renew(ts, frame)
	p.latestTime = now
	rec := p.latest
	p.mu.Unlock()

	p.published.Add(1)
	p.bytes.Add(uint64(len(frame)))

	p.subMu.RLock()
	subs := p.subs
	p.subMu.RUnlock()

	for _, s := range subs {
		p.deliver(s, rec)
	}
	return rec
}

// deliver invokes one handler, containing any panic it raises.
func (p *RecordPublisher) deliver(s subscriber, rec *Record) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("video subscriber panic recovered",
				"subscription", s.sub.String(),
				"panic", r,
			)
		}
	}()
	s.handler(rec)
}

// Subscribe registers handler and returns its handle.
// A handler registered during a publish first sees the next record.
func (p *RecordPublisher) Subscribe(handler Handler) Subscription {
	sub := Subscription{ID: uuid.New()}

	p.subMu.Lock()
	next := make([]subscriber, len(p.subs), len(p.subs)+1)
	copy(next, p.subs)
	p.subs = append(next, subscriber{sub: sub, handler: handler})
	p.subMu.Unlock()

	return sub
}

// Unsubscribe removes a handler. A publish already in progress may still
// deliver to it once.
func (p *RecordPublisher) Unsubscribe(sub Subscription) error {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	for i, s := range p.subs {
		if s.sub == sub {
			next := make([]subscriber, 0, len(p.subs)-1)
			next = append(next, p.subs[:i]...)
			p.subs = append(next, p.subs[i+1:]...)
			return nil
		}
	}
	return ErrUnknownSubscription
}

// SubscriberCount returns the number of registered handlers.
func (p *RecordPublisher) SubscriberCount() int {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	return len(p.subs)
}

// Latest returns a copy of the most recent record, or false if nothing has
// been published yet.
func (p *RecordPublisher) Latest() (Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return Record{}, false
	}
	return p.latest.Clone(), true
}

// View calls fn with the live record while holding the read lock, so the
// record cannot be renewed underneath it. fn must not retain the pointer.
func (p *RecordPublisher) View(fn func(rec *Record)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return false
	}
	fn(p.latest)
	return true
}

// LatestTime returns the capture time of the latest record.
func (p *RecordPublisher) LatestTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latestTime
}

// Stats returns a snapshot of the publisher counters.
func (p *RecordPublisher) Stats() PublisherStats {
	return PublisherStats{
		Published:        p.published.Load(),
		Bytes:            p.bytes.Load(),
		Allocations:      p.allocations.Load(),
		Subscribers:      p.SubscriberCount(),
		SubscriberPanics: p.panics.Load(),
	}
}
