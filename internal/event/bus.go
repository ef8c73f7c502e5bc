// Package event provides a pub/sub event system for the server using watermill.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType represents the type of event.
type EventType string

const (
	UserQuery          EventType = "user_query"
	SessionCreated     EventType = "session.created"
	SessionUpdated     EventType = "session.updated"
	SessionDeleted     EventType = "session.deleted"
	SessionDiff        EventType = "session.diff"
	SessionCompacted   EventType = "session.compacted"
	SessionError       EventType = "session.error"
	MessageCreated     EventType = "message.created"
	MessageUpdated     EventType = "message.updated"
	MessageRemoved     EventType = "message.removed"
	MessagePartUpdated EventType = "message.part.updated"
	TodoUpdated        EventType = "session.todo_updated"
	StreamStart        EventType = "stream.start"
	StreamText         EventType = "stream.text"
	StreamReasoning    EventType = "stream.reasoning"
	StreamToolCall     EventType = "stream.tool_call"
	StreamToolResult   EventType = "stream.tool_result"
	StreamCompleted    EventType = "stream.completed"
	StreamError        EventType = "stream.error"
	BackgroundDone     EventType = "background_task.completed"
	BackgroundFailed   EventType = "background_task.failed"
	EnvSwitched        EventType = "environment.switched"
)

// Event represents an event to be published.
//
// SessionID is the "trigger session id" used for per-session subscriber
// routing and rule dispatch (spec §3 Event, §4.2 Event Bus); it is empty for
// events with no natural session scope (e.g. environment.switched).
// Metadata carries out-of-band bookkeeping such as a captured rule error
// (see Bus.Publish), keyed by rule event type.
type Event struct {
	Type      EventType      `json:"type"`
	Data      any            `json:"data"`
	SessionID string         `json:"sessionID,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// subscriberEntry wraps a subscriber with an ID.
type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is the event bus that manages pub/sub using watermill.
// It uses watermill's gochannel for infrastructure while maintaining
// the original direct-call semantics to preserve type information.
type Bus struct {
	mu sync.RWMutex

	// Watermill pub/sub infrastructure for potential future middleware/routing
	pubsub *gochannel.GoChannel

	// Direct subscriber tracking - preserves type information
	subscribers map[EventType][]subscriberEntry
	global      []subscriberEntry

	// session scopes subscribers to a single session id's triggering events
	// (spec §4.2's "per-session" subscription scope), keyed by session id.
	session map[string][]subscriberEntry

	rules *RuleTable

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

// globalBus is the default event bus instance.
var globalBus = newBus()

// newBus creates a new event bus with watermill infrastructure.
func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[EventType][]subscriberEntry),
		session:      make(map[string][]subscriberEntry),
		rules:        NewRuleTable(),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

// newID generates a unique subscriber ID.
func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func Subscribe(eventType EventType, fn Subscriber) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, fn: fn}
	b.subscribers[eventType] = append(b.subscribers[eventType], entry)

	// Return unsubscribe function
	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, fn: fn}
	b.global = append(b.global, entry)

	return func() {
		b.unsubscribeGlobal(id)
	}
}

// SubscribeSession registers a subscriber scoped to a single session: it
// only receives events whose SessionID matches. Returns an unsubscribe
// function. This is the "per-session" scope from spec §4.2.
func SubscribeSession(sessionID string, fn Subscriber) func() {
	return globalBus.SubscribeSession(sessionID, fn)
}

func (b *Bus) SubscribeSession(sessionID string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, fn: fn}
	b.session[sessionID] = append(b.session[sessionID], entry)

	return func() {
		b.unsubscribeSession(sessionID, id)
	}
}

func (b *Bus) unsubscribeSession(sessionID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.session[sessionID]
	for i, entry := range subs {
		if entry.id == id {
			b.session[sessionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.session[sessionID]) == 0 {
		delete(b.session, sessionID)
	}
}

// Rules returns the bus's rule table (spec §4.2 Rule, §4.8 default rules).
func (b *Bus) Rules() *RuleTable {
	return b.rules
}

// Rules returns the global bus's rule table.
func Rules() *RuleTable {
	return globalBus.Rules()
}

// RegisterRule registers a dispatch rule on the global bus's rule table.
// See RuleTable.RegisterRule.
func RegisterRule(eventType EventType, handler Handler, priority int) func() {
	return globalBus.rules.RegisterRule(eventType, handler, priority)
}

// RegisterRule registers a dispatch rule on this bus's rule table.
func (b *Bus) RegisterRule(eventType EventType, handler Handler, priority int) func() {
	return b.rules.RegisterRule(eventType, handler, priority)
}

// unsubscribe removes a subscriber for a specific event type.
func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// unsubscribeGlobal removes a global subscriber.
func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish runs the event through rule dispatch (synchronously, priority
// order, per spec §4.2) and then delivers it to subscribers asynchronously:
// each subscriber is called in its own goroutine so the publisher is not
// blocked by a slow or dead subscriber.
func Publish(event Event) {
	globalBus.Publish(event)
}

func (b *Bus) Publish(event Event) {
	event = b.runRules(event)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.collectSubscribers(event)
	b.mu.RUnlock()

	for _, sub := range subs {
		go sub(event)
	}
}

// PublishSync runs rule dispatch and then delivers the event to every
// subscriber synchronously, in the calling goroutine, before returning.
func PublishSync(event Event) {
	globalBus.PublishSync(event)
}

func (b *Bus) PublishSync(event Event) {
	event = b.runRules(event)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.collectSubscribers(event)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}

// runRules dispatches event to the bus's rule table and returns the event,
// annotated with any captured rule error (spec §4.2: "Rule errors are
// logged and do not prevent subscriber delivery").
func (b *Bus) runRules(evt Event) Event {
	if b.rules == nil {
		return evt
	}
	return b.rules.Dispatch(evt)
}

// collectSubscribers gathers, under the caller's already-held read lock,
// every subscriber that should receive evt: type-scoped, session-scoped
// (when evt.SessionID is set), and global, in that registration order.
func (b *Bus) collectSubscribers(evt Event) []Subscriber {
	subs := make([]Subscriber, 0, len(b.subscribers[evt.Type])+len(b.session[evt.SessionID])+len(b.global))
	for _, entry := range b.subscribers[evt.Type] {
		subs = append(subs, entry.fn)
	}
	if evt.SessionID != "" {
		for _, entry := range b.session[evt.SessionID] {
			subs = append(subs, entry.fn)
		}
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// NewBus creates a new event bus instance.
func NewBus() *Bus {
	return newBus()
}

// Default returns the process-wide global bus backing the package-level
// Publish/Subscribe/Rules functions. Components that need to both publish
// through their own *Bus handle (e.g. the Environment Orchestrator) and
// stay visible to code still using the package-level functions (the SSE
// plane's event.SubscribeAll, the session/handlers package's event.Publish)
// must share this instance rather than constructing their own with NewBus.
func Default() *Bus {
	return globalBus
}

// Reset clears all subscribers from the global bus (for testing).
func Reset() {
	globalBus.mu.Lock()
	globalBus.closed = true
	globalBus.closedCancel()
	globalBus.mu.Unlock()

	// Close the old pubsub
	_ = globalBus.pubsub.Close()

	// Small delay to allow goroutines to clean up
	time.Sleep(10 * time.Millisecond)

	// Create a new global bus
	globalBus = newBus()
}

// Close closes the bus and all its subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()

	b.subscribers = make(map[EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub returns the underlying watermill GoChannel for advanced use cases.
// This can be used for middleware, routing, or when switching to distributed backends.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// PubSub returns the global bus's underlying watermill GoChannel.
func PubSub() *gochannel.GoChannel {
	return globalBus.PubSub()
}
