package service

import (
	"context"
	"encoding/json"
	"testing"

	"lyink/relay-service/internal/events"
)

func decodeCounts(t *testing.T, env events.Envelope) map[string]int {
	t.Helper()
	var counts map[string]int
	if err := json.Unmarshal(env.Data, &counts); err != nil {
		t.Fatalf("decode unreadCounts: %v", err)
	}
	return counts
}

func TestReadMarkingIsMonotonic(t *testing.T) {
	delivery, reads, repo, _ := newDeliveryFixture("alice", "bob")

	msg, err := delivery.Send(context.Background(), "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := reads.MarkMessageRead(context.Background(), msg.ID); err != nil {
		t.Fatalf("MarkMessageRead failed: %v", err)
	}
	if !repo.messages[msg.ID].Read {
		t.Fatal("message not marked read")
	}

	// A second acknowledgment and a later edit must not revert it.
	if err := reads.MarkMessageRead(context.Background(), msg.ID); err != nil {
		t.Fatalf("repeat MarkMessageRead failed: %v", err)
	}
	if _, err := delivery.UpdateMessage(context.Background(), msg.ID, "alice", "edited"); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}
	if !repo.messages[msg.ID].Read {
		t.Error("read flag reverted")
	}
}

func TestUnreadAggregationAfterMarking(t *testing.T) {
	delivery, _, repo, pusher := newDeliveryFixture("alice", "bob", "carol")

	// Two unread from bob, one from carol, all addressed to alice.
	for _, send := range []struct{ from, body string }{
		{"bob", "one"}, {"bob", "two"}, {"carol", "three"},
	} {
		if _, err := delivery.Send(context.Background(), send.from, "alice", send.body); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	counts, err := repo.AggregateUnreadBySender(context.Background(), "alice")
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if counts["bob"] != 2 || counts["carol"] != 1 {
		t.Fatalf("counts = %v, want bob:2 carol:1", counts)
	}

	// Alice opens the thread with bob.
	if _, err := delivery.GetConversation(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	counts, err = repo.AggregateUnreadBySender(context.Background(), "alice")
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if _, ok := counts["bob"]; ok {
		t.Errorf("bob still present in unread map: %v", counts)
	}
	if counts["carol"] != 1 {
		t.Errorf("carol count = %d, want 1", counts["carol"])
	}
	if n, _ := repo.CountUnread(context.Background(), "alice", "bob"); n != 0 {
		t.Errorf("CountUnread(alice, bob) = %d, want 0", n)
	}

	// Both of bob's messages produced a messageRead notification to bob.
	if got := pusher.eventsNamed("bob", events.MessageRead); len(got) != 2 {
		t.Errorf("bob got %d messageRead events, want 2", len(got))
	}

	// Alice's own connections got the refreshed map for the sidebar.
	countEvents := pusher.eventsNamed("alice", events.UnreadCounts)
	if len(countEvents) == 0 {
		t.Fatal("requester got no unreadCounts push")
	}
	latest := decodeCounts(t, countEvents[len(countEvents)-1])
	if _, ok := latest["bob"]; ok {
		t.Errorf("pushed map still contains bob: %v", latest)
	}
	if latest["carol"] != 1 {
		t.Errorf("pushed carol count = %d, want 1", latest["carol"])
	}
}

func TestAggregationFailureDoesNotAbortReadMarking(t *testing.T) {
	delivery, reads, repo, _ := newDeliveryFixture("alice", "bob")

	msg, err := delivery.Send(context.Background(), "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	repo.failAggregate = true
	if err := reads.MarkMessageRead(context.Background(), msg.ID); err != nil {
		t.Fatalf("MarkMessageRead surfaced a best-effort aggregation failure: %v", err)
	}
	if !repo.messages[msg.ID].Read {
		t.Error("read mark lost when aggregation failed")
	}
}

func TestMarkConversationReadSkipsOwnMessages(t *testing.T) {
	delivery, _, repo, _ := newDeliveryFixture("alice", "bob")

	sent, err := delivery.Send(context.Background(), "alice", "bob", "to bob")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	received, err := delivery.Send(context.Background(), "bob", "alice", "to alice")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Alice fetching marks only the message addressed to her.
	if _, err := delivery.GetConversation(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if repo.messages[sent.ID].Read {
		t.Error("alice's own outgoing message was marked read by her fetch")
	}
	if !repo.messages[received.ID].Read {
		t.Error("message addressed to alice was not marked read")
	}
}
