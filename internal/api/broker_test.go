package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    sid := "s-1"
    ch := b.Subscribe(sid)
    defer func() { recover() }() // ignore close panic if already closed

    evt := SSEEvent{Type: "visit.checked_in", Data: map[string]any{"visitId": "v1"}}
    b.Publish(sid, evt)

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["visitId"].(string) != "v1" { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    // events for other salesmen don't cross over
    b.Publish("s-2", SSEEvent{Type: "visit.checked_out", Data: map[string]any{}})
    select {
    case got := <-ch:
        t.Fatalf("unexpected event: %+v", got)
    case <-time.After(50 * time.Millisecond):
    }

    b.Unsubscribe(sid, ch)
    select {
    case _, ok := <-ch:
        if ok { t.Fatal("channel should be closed after unsubscribe") }
    case <-time.After(50 * time.Millisecond):
        // acceptable if already drained and closed
    }
}
