package api

import (
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/gorilla/websocket"
)

// WebSocket stream of visit events, one subscription per salesman.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
    Type    string          `json:"type"`
    ID      string          `json:"id,omitempty"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
    SalesmanID string   `json:"salesmanId"`
    Events     []string `json:"events,omitempty"`
}

// VisitsWSHandler handles /v1/visits/ws
func (s *Server) VisitsWSHandler(w http.ResponseWriter, r *http.Request) {
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    type sub struct {
        salesmanID string
        ch         chan SSEEvent
    }
    subs := map[string]sub{}

    conn.SetReadLimit(1 << 20)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

    write := func(v any) error { return conn.WriteJSON(v) }

    for {
        var msg wsMessage
        if err := conn.ReadJSON(&msg); err != nil {
            break
        }
        switch msg.Type {
        case "connection_init":
            _ = write(wsMessage{Type: "connection_ack"})
            go func() {
                ticker := time.NewTicker(20 * time.Second)
                defer ticker.Stop()
                for range ticker.C {
                    if err := write(wsMessage{Type: "ping"}); err != nil {
                        return
                    }
                }
            }()
        case "ping":
            _ = write(wsMessage{Type: "pong"})
        case "subscribe":
            var pl wsSubscribePayload
            _ = json.Unmarshal(msg.Payload, &pl)
            if pl.SalesmanID == "" {
                _ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"salesmanId required"}`)})
                _ = write(wsMessage{Type: "complete", ID: msg.ID})
                continue
            }
            // RBAC: salesmen only see their own stream
            pr := s.getPrincipal(r)
            if !pr.ActsFor(pl.SalesmanID) {
                _ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"forbidden"}`)})
                _ = write(wsMessage{Type: "complete", ID: msg.ID})
                continue
            }
            ch := s.Broker.Subscribe(pl.SalesmanID)
            subs[msg.ID] = sub{salesmanID: pl.SalesmanID, ch: ch}
            go func(id string, c chan SSEEvent, want []string) {
                for evt := range c {
                    if len(want) > 0 && !containsEvent(want, evt.Type) {
                        continue
                    }
                    payload, _ := json.Marshal(map[string]any{"event": evt.Type, "data": evt.Data})
                    _ = write(wsMessage{Type: "next", ID: id, Payload: payload})
                }
                _ = write(wsMessage{Type: "complete", ID: id})
            }(msg.ID, ch, pl.Events)
        case "complete":
            if sb, ok := subs[msg.ID]; ok {
                s.Broker.Unsubscribe(sb.salesmanID, sb.ch)
                delete(subs, msg.ID)
            }
        }
    }
    for _, sb := range subs {
        s.Broker.Unsubscribe(sb.salesmanID, sb.ch)
    }
}

func containsEvent(events []string, t string) bool {
    for _, e := range events {
        if e == t || strings.HasPrefix(t, e) {
            return true
        }
    }
    return false
}
