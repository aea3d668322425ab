package sim

import "container/heap"

// Handler consumes the payload of a delivered event. A non-nil error aborts
// delivery and surfaces as a fatal simulation error; expected-operational
// outcomes (no fit, rejection) are carried in payloads, not errors.
type Handler func(args ...any) error

// busEvent is one scheduled publication. seq preserves insertion order so
// events with equal fire times are delivered in the order they were published.
type busEvent struct {
	topic  string
	fireAt int64
	seq    int64
	args   []any
}

// eventHeap implements heap.Interface and orders events by fire time.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type eventHeap []*busEvent

func (eh eventHeap) Len() int { return len(eh) }
func (eh eventHeap) Less(i, j int) bool {
	if eh[i].fireAt != eh[j].fireAt {
		return eh[i].fireAt < eh[j].fireAt
	}
	return eh[i].seq < eh[j].seq
}
func (eh eventHeap) Swap(i, j int) { eh[i], eh[j] = eh[j], eh[i] }

func (eh *eventHeap) Push(x any) {
	*eh = append(*eh, x.(*busEvent))
}

func (eh *eventHeap) Pop() any {
	old := *eh
	n := len(old)
	item := old[n-1]
	*eh = old[0 : n-1]
	return item
}

// EventBus is a topic-indexed queue of future publications. Subscribers are
// invoked in subscription order; publications are delivered in non-decreasing
// fire-time order with ties broken by publish order.
type EventBus struct {
	handlers map[string][]Handler
	events   eventHeap
	seq      int64
}

// NewEventBus returns an empty bus with no subscriptions.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string][]Handler),
		events:   make(eventHeap, 0),
	}
}

// Subscribe registers a handler for a topic. Multiple handlers per topic are
// permitted and fire in subscription order.
func (b *EventBus) Subscribe(topic string, h Handler) {
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish enqueues a payload for delivery at fireAt. Callers schedule at or
// after the current virtual time; the bus itself has no notion of "now".
// Publishing to a topic nobody subscribes to is a no-op at delivery.
func (b *EventBus) Publish(topic string, fireAt int64, args ...any) {
	heap.Push(&b.events, &busEvent{
		topic:  topic,
		fireAt: fireAt,
		seq:    b.seq,
		args:   args,
	})
	b.seq++
}

// RunUntil delivers every event whose fire time is ≤ t. Handlers may publish
// new events; publications that also fall within t are delivered in the same
// call. The first handler error aborts delivery and is returned.
func (b *EventBus) RunUntil(t int64) error {
	for b.events.Len() > 0 && b.events[0].fireAt <= t {
		ev := heap.Pop(&b.events).(*busEvent)
		for _, h := range b.handlers[ev.topic] {
			if err := h(ev.args...); err != nil {
				return err
			}
		}
	}
	return nil
}

// Empty reports whether no publications remain undelivered.
func (b *EventBus) Empty() bool {
	return b.events.Len() == 0
}
