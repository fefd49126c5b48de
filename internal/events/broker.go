// Package events implements the in-process change feed that backs the live
// stream endpoint. Services publish domain changes after their writes commit;
// each stream connection holds one Subscription filtered to what its user may
// see.
//
// Delivery is best effort: Publish never blocks, and a subscriber whose buffer
// is full misses the event (counted in sahulat_events_dropped_total). The
// persisted tables remain the source of truth; a client that missed events
// recovers by re-reading them.
//
// Subscribe returns a Subscription whose Close method is the disposer. Callers
// must run it on every exit path; it is idempotent.
package events

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Topic names the kind of change carried by an Event.
type Topic string

const (
	TopicJobCreated       Topic = "job.created"
	TopicJobUpdated       Topic = "job.updated"
	TopicBidPlaced        Topic = "bid.placed"
	TopicBidAccepted      Topic = "bid.accepted"
	TopicJobStatusChanged Topic = "jobstatus.changed"
	TopicJobCompleted     Topic = "job.completed"
	TopicMessageCreated   Topic = "message.created"
	TopicSignedOut        Topic = "auth.signed_out"
)

// Change classifies an event relative to a live query result set.
type Change string

const (
	Added    Change = "added"
	Modified Change = "modified"
	Removed  Change = "removed"
)

// Event is one published change.
//
// Audience lists the user IDs the change concerns. Category is set for job
// events so category feeds can match them. Key identifies the changed record
// (job, bid or message ID) for de-duplication by consumers.
type Event struct {
	Topic    Topic     `json:"type"`
	Change   Change    `json:"change"`
	Key      string    `json:"key"`
	Data     any       `json:"data"`
	At       time.Time `json:"at"`
	Audience []string  `json:"-"`
	Category string    `json:"-"`
}

// Filter selects the events a subscription receives.
type Filter func(Event) bool

var (
	published = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sahulat_events_published_total",
			Help: "Change events published on the in-process feed.",
		},
		[]string{"topic"},
	)
	dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sahulat_events_dropped_total",
			Help: "Change events dropped because a subscriber buffer was full.",
		},
		[]string{"topic"},
	)
	subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sahulat_events_subscribers",
			Help: "Current number of live change feed subscriptions.",
		},
	)
)

func init() {
	prometheus.MustRegister(published, dropped, subscribers)
}

// Broker fans published events out to subscriptions. The zero value is not
// usable; construct with NewBroker.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	next   uint64
	buffer int
	closed bool
	now    func() time.Time
}

// NewBroker returns a Broker whose subscriptions buffer up to buffer events.
// Non-positive values fall back to 64.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		now:    time.Now,
	}
}

// Publish delivers ev to every matching subscription without blocking.
// A zero At is stamped with the current UTC time.
func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = b.now().UTC()
	}
	published.WithLabelValues(string(ev.Topic)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			dropped.WithLabelValues(string(ev.Topic)).Inc()
		}
	}
}

// Subscribe registers a subscription receiving events accepted by filter
// (nil accepts everything). On a closed broker the returned subscription's
// channel is already closed.
func (b *Broker) Subscribe(filter Filter) *Subscription {
	s := &Subscription{
		ch:     make(chan Event, b.buffer),
		filter: filter,
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.done = true
		close(s.ch)
		return s
	}
	b.next++
	s.id = b.next
	b.subs[s.id] = s
	subscribers.Inc()
	return s
}

// Len reports the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disposes every subscription and rejects further publishes.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.done = true
		close(s.ch)
		subscribers.Dec()
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done {
		return
	}
	delete(b.subs, s.id)
	s.done = true
	close(s.ch)
	subscribers.Dec()
}

// Subscription is a live, filtered view of the feed.
type Subscription struct {
	id     uint64
	ch     chan Event
	filter Filter
	broker *Broker
	done   bool // guarded by broker.mu
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close is the subscription disposer. It is safe to call more than once and
// from any goroutine.
func (s *Subscription) Close() { s.broker.remove(s) }

// ForUser matches events whose Audience contains userID.
func ForUser(userID string) Filter {
	return func(ev Event) bool {
		for _, id := range ev.Audience {
			if id == userID {
				return true
			}
		}
		return false
	}
}

// ForCategories matches job events whose Category equals one of cats,
// ignoring case.
func ForCategories(cats ...string) Filter {
	return func(ev Event) bool {
		if ev.Category == "" {
			return false
		}
		for _, c := range cats {
			if strings.EqualFold(strings.TrimSpace(c), ev.Category) {
				return true
			}
		}
		return false
	}
}

// Any matches when at least one of fs matches. Nil filters are skipped.
func Any(fs ...Filter) Filter {
	return func(ev Event) bool {
		for _, f := range fs {
			if f != nil && f(ev) {
				return true
			}
		}
		return false
	}
}
