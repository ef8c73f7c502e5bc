package event

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRuleTable_PriorityOrder(t *testing.T) {
	table := NewRuleTable()

	var mu sync.Mutex
	var order []string

	table.RegisterRule(EventType("x"), FunctionHandler(func(e Event) {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
	}), 10)
	table.RegisterRule(EventType("x"), FunctionHandler(func(e Event) {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
	}), 100)
	table.RegisterRule(EventType("x"), FunctionHandler(func(e Event) {
		mu.Lock()
		order = append(order, "mid")
		mu.Unlock()
	}), 50)

	table.Dispatch(Event{Type: EventType("x")})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "high" || order[1] != "mid" || order[2] != "low" {
		t.Fatalf("expected [high mid low], got %v", order)
	}
}

func TestRuleTable_WildcardRunsLastAsFallback(t *testing.T) {
	table := NewRuleTable()

	var mu sync.Mutex
	var order []string

	table.RegisterRule(EventType("*"), FunctionHandler(func(e Event) {
		mu.Lock()
		order = append(order, "wildcard")
		mu.Unlock()
	}), 1000) // deliberately higher priority than the specific rule
	table.RegisterRule(EventType("x"), FunctionHandler(func(e Event) {
		mu.Lock()
		order = append(order, "specific")
		mu.Unlock()
	}), 1)

	table.Dispatch(Event{Type: EventType("x")})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Fatalf("expected specific rule before wildcard fallback regardless of priority, got %v", order)
	}
}

func TestRuleTable_ErrorCapturedInMetadataWithoutStoppingDispatch(t *testing.T) {
	table := NewRuleTable()

	ran := false
	table.RegisterRule(EventType("x"), Handler{
		Kind: HandlerAgent,
		Fn: func(e Event) {
			panic("unused for agent kind")
		},
		Prompt: "p",
	}, 100)
	table.AgentRunner = func(evt Event, prompt string) error {
		return errors.New("boom")
	}
	table.RegisterRule(EventType("x"), FunctionHandler(func(e Event) {
		ran = true
	}), 50)

	out := table.Dispatch(Event{Type: EventType("x")})

	if !ran {
		t.Fatal("expected lower-priority rule to still run after an earlier rule's error")
	}
	if out.Metadata["rule_error:x"] == nil {
		t.Fatalf("expected rule error captured in metadata, got %v", out.Metadata)
	}
}

func TestRuleTable_Unregister(t *testing.T) {
	table := NewRuleTable()

	calls := 0
	unregister := table.RegisterRule(EventType("x"), FunctionHandler(func(e Event) {
		calls++
	}), 1)

	table.Dispatch(Event{Type: EventType("x")})
	unregister()
	table.Dispatch(Event{Type: EventType("x")})

	if calls != 1 {
		t.Fatalf("expected 1 call before unregister, got %d", calls)
	}
}

func TestBus_PublishSyncRunsRulesBeforeSubscribers(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var order []string

	bus.RegisterRule(SessionCreated, FunctionHandler(func(e Event) {
		mu.Lock()
		order = append(order, "rule")
		mu.Unlock()
	}), 100)
	bus.Subscribe(SessionCreated, func(e Event) {
		mu.Lock()
		order = append(order, "subscriber")
		mu.Unlock()
	})

	bus.PublishSync(Event{Type: SessionCreated})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "rule" || order[1] != "subscriber" {
		t.Fatalf("expected rule to run before subscriber, got %v", order)
	}
}

func TestBus_SubscribeSession_OnlyReceivesMatchingSession(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	wg.Add(1)

	unsub := bus.SubscribeSession("s1", func(e Event) {
		wg.Done()
	})
	defer unsub()

	bus.Subscribe(SessionCreated, func(e Event) {})

	bus.Publish(Event{Type: SessionCreated, SessionID: "s2"})

	// Publish the matching session event after a tiny delay; if the
	// mismatched one had incorrectly triggered the session subscriber,
	// wg.Done() would already have fired (and a second Done would panic).
	time.Sleep(5 * time.Millisecond)
	bus.Publish(Event{Type: SessionCreated, SessionID: "s1"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session-scoped subscriber did not receive matching event")
	}
}
