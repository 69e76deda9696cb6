// Package eventbus implements the engine's typed publish/subscribe
// layer (spec.md §4.12): one unbounded serial delivery queue per
// subject, unsubscribe handles, and a filtered one-shot variant.
package eventbus

import "sync"

// Subject enumerates the event bus's typed channels (spec.md §4.12).
type Subject string

const (
	SubjectSignal           Subject = "signal"
	SubjectSignalBacktest   Subject = "signalBacktest"
	SubjectSignalLive       Subject = "signalLive"
	SubjectDoneBacktest     Subject = "doneBacktest"
	SubjectDoneLive         Subject = "doneLive"
	SubjectDoneWalker       Subject = "doneWalker"
	SubjectProgressBacktest Subject = "progressBacktest"
	SubjectProgressWalker   Subject = "progressWalker"
	SubjectPerformance      Subject = "performance"
	SubjectPartialProfit    Subject = "partialProfit"
	SubjectPartialLoss      Subject = "partialLoss"
	SubjectBreakeven        Subject = "breakeven"
	SubjectSchedulePing     Subject = "schedulePing"
	SubjectActivePing       Subject = "activePing"
	SubjectRisk             Subject = "risk"
	SubjectWalker           Subject = "walker"
	SubjectWalkerComplete   Subject = "walkerComplete"
	SubjectError            Subject = "error"
	SubjectExit             Subject = "exit"
)

// Event is one published message: Subject plus an arbitrary payload
// whose shape is subject-specific (documented alongside each emitter).
type Event struct {
	Subject Subject
	Payload any
}

// Handler receives one event. Handlers on the same subject never run
// concurrently with each other; a slow handler delays only its own
// subject's subsequent deliveries, per spec.md §4.12/§5.
type Handler func(Event)

// Filter reports whether an event matches a *Once subscription.
type Filter func(Event) bool

// Unsubscribe removes a previously registered handler. Safe to call
// more than once; safe to call from within a handler.
type Unsubscribe func()

type subscriber struct {
	id      uint64
	handler Handler
}

type queueState struct {
	mu      sync.Mutex
	subs    []subscriber
	queue   []Event
	running bool
}

// Bus is the engine's event bus: one serial delivery queue per
// subject, running on its own goroutine so that a slow handler on one
// subject never blocks delivery to another (spec.md §5 ordering
// guarantees: "within a subject... across subjects, no ordering is
// promised").
type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	streams map[Subject]*queueState
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{streams: make(map[Subject]*queueState)}
}

func (b *Bus) stream(subject Subject) *queueState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[subject]
	if !ok {
		s = &queueState{}
		b.streams[subject] = s
	}
	return s
}

// Subscribe registers handler on subject, returning an unsubscribe
// handle.
func (b *Bus) Subscribe(subject Subject, handler Handler) Unsubscribe {
	s := b.stream(subject)
	s.mu.Lock()
	id := b.allocID()
	s.subs = append(s.subs, subscriber{id: id, handler: handler})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeOnce delivers at most one event on subject matching filter
// (or every event if filter is nil), then auto-unsubscribes.
func (b *Bus) SubscribeOnce(subject Subject, filter Filter, handler Handler) Unsubscribe {
	var unsub Unsubscribe
	var once sync.Once
	wrapped := func(ev Event) {
		if filter != nil && !filter(ev) {
			return
		}
		once.Do(func() {
			handler(ev)
			go unsub()
		})
	}
	unsub = b.Subscribe(subject, wrapped)
	return unsub
}

func (b *Bus) allocID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID
}

// Publish enqueues an event for subject's subscribers. It never
// blocks on handler execution: delivery for a subject happens on that
// subject's own serial worker goroutine, started lazily and kept
// alive only while its queue is non-empty.
func (b *Bus) Publish(subject Subject, payload any) {
	s := b.stream(subject)
	ev := Event{Subject: subject, Payload: payload}

	s.mu.Lock()
	s.queue = append(s.queue, ev)
	alreadyRunning := s.running
	s.running = true
	s.mu.Unlock()

	if !alreadyRunning {
		go b.drain(s)
	}
}

func (b *Bus) drain(s *queueState) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		handlers := make([]Handler, len(s.subs))
		for i, sub := range s.subs {
			handlers[i] = sub.handler
		}
		s.mu.Unlock()

		for _, h := range handlers {
			h(ev)
		}
	}
}
