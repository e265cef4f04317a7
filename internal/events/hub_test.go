package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypeProcessed, Admission{Service: "github", Status: 200})

	select {
	case ev := <-ch:
		if ev.Type != TypeProcessed {
			t.Errorf("type = %q, want %q", ev.Type, TypeProcessed)
		}
		var a Admission
		if err := json.Unmarshal(ev.Data, &a); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if a.Service != "github" || a.Status != 200 {
			t.Errorf("admission = %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestSnapshotSince(t *testing.T) {
	h := NewHub(4)
	for i := 0; i < 6; i++ {
		h.Publish(TypeRejected, nil)
	}

	// Ring holds the latest 4 (IDs 3..6).
	all := h.SnapshotSince(0)
	if len(all) != 4 {
		t.Fatalf("snapshot len = %d, want 4", len(all))
	}
	if all[0].ID != 3 || all[3].ID != 6 {
		t.Errorf("snapshot IDs = %d..%d, want 3..6", all[0].ID, all[3].ID)
	}

	since := h.SnapshotSince(4)
	if len(since) != 2 {
		t.Errorf("snapshot since 4 len = %d, want 2", len(since))
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub(4)
	_, cancel := h.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(TypeProcessed, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
}
