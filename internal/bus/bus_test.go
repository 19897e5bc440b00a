package bus

import "testing"

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := New()
	var order []string
	b.Subscribe(KindTurnEnded, func(Event) { order = append(order, "first") })
	b.Subscribe(KindTurnEnded, func(Event) { order = append(order, "second") })

	b.Publish(KindTurnEnded, TurnEnded{})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
}

func TestNestedPublishDoesNotRecurse(t *testing.T) {
	b := New()
	var seen []Kind
	b.Subscribe(KindTurnEnded, func(ev Event) {
		seen = append(seen, ev.Kind)
		// Publishing from inside a handler must not re-enter handlers
		// before this dispatch finishes.
		b.Publish(KindModelSelected, ModelSelected{ModelID: "m"})
		seen = append(seen, "after-nested-publish")
	})
	b.Subscribe(KindModelSelected, func(ev Event) {
		seen = append(seen, ev.Kind)
	})

	b.Publish(KindTurnEnded, TurnEnded{})

	want := []Kind{KindTurnEnded, "after-nested-publish", KindModelSelected}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestPublishWithoutHandlers(t *testing.T) {
	b := New()
	// Must not panic.
	b.Publish(KindSessionShutdown, SessionShutdown{})
}

func TestPayloadTypeReachesHandler(t *testing.T) {
	b := New()
	var got TurnEnded
	b.Subscribe(KindTurnEnded, func(ev Event) {
		if p, ok := ev.Payload.(TurnEnded); ok {
			got = p
		}
	})

	b.Publish(KindTurnEnded, TurnEnded{Err: "429", UsageTokens: 42, Idle: true})

	if got.Err != "429" || got.UsageTokens != 42 || !got.Idle {
		t.Errorf("payload = %+v", got)
	}
}
