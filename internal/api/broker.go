package api

import (
    "sync"
)

type SSEEvent struct {
    Type string
    Data map[string]any
}

type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan SSEEvent]struct{} // salesmanId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(salesmanID string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[salesmanID] == nil { b.subs[salesmanID] = map[chan SSEEvent]struct{}{} }
    b.subs[salesmanID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(salesmanID string, ch chan SSEEvent) {
    b.mu.Lock()
    if m := b.subs[salesmanID]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, salesmanID) }
    }
    b.mu.Unlock()
    close(ch)
}

func (b *Broker) Publish(salesmanID string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[salesmanID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
