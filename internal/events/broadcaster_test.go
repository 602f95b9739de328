package events

import (
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	CloseAllSubscribers()

	sub1 := Subscribe()
	if SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after first subscribe, got %d", SubscriberCount())
	}

	sub2 := Subscribe()
	if SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers after second subscribe, got %d", SubscriberCount())
	}

	Unsubscribe(sub1)
	if SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after unsubscribe, got %d", SubscriberCount())
	}

	Unsubscribe(sub2)
	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after all unsubscribed, got %d", SubscriberCount())
	}
}

func TestBroadcastToSubscribers(t *testing.T) {
	sub := Subscribe()
	defer Unsubscribe(sub)

	Emit("info", "node.evaluated", "test", map[string]interface{}{"node_id": "test_node"})

	select {
	case e := <-sub:
		if e.Name != "node.evaluated" {
			t.Errorf("expected event name 'node.evaluated', got '%s'", e.Name)
		}
		if e.Fields["node_id"] != "test_node" {
			t.Errorf("expected node_id 'test_node', got '%v'", e.Fields["node_id"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()

	for i := 0; i < 10; i++ {
		Emit("info", "node.evaluated", "", map[string]interface{}{"i": i})
	}

	recent := RecentEvents(5)
	if len(recent) != 5 {
		t.Errorf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	all := RecentEvents(100)
	if len(all) != 10 {
		t.Errorf("expected 10 events when requesting 100, got %d", len(all))
	}

	zero := RecentEvents(0)
	if len(zero) != 10 {
		t.Errorf("expected 10 events when requesting 0, got %d", len(zero))
	}
}

func TestMultipleSubscribersReceiveEvents(t *testing.T) {
	sub1 := Subscribe()
	sub2 := Subscribe()
	defer Unsubscribe(sub1)
	defer Unsubscribe(sub2)

	Emit("info", "graph.loaded", "", map[string]interface{}{"node_count": 3})

	select {
	case e := <-sub1:
		if e.Name != "graph.loaded" {
			t.Errorf("sub1: expected 'graph.loaded', got '%s'", e.Name)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("sub1: timeout waiting for event")
	}

	select {
	case e := <-sub2:
		if e.Name != "graph.loaded" {
			t.Errorf("sub2: expected 'graph.loaded', got '%s'", e.Name)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("sub2: timeout waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	sub := Subscribe()
	Unsubscribe(sub)

	_, ok := <-sub
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	CloseAllSubscribers()

	sub1 := Subscribe()
	sub2 := Subscribe()
	sub3 := Subscribe()

	if SubscriberCount() != 3 {
		t.Errorf("expected 3 subscribers, got %d", SubscriberCount())
	}

	CloseAllSubscribers()

	_, ok1 := <-sub1
	_, ok2 := <-sub2
	_, ok3 := <-sub3

	if ok1 || ok2 || ok3 {
		t.Error("expected all channels to be closed")
	}

	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after CloseAllSubscribers, got %d", SubscriberCount())
	}
}
