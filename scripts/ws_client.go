// Package main runs a demo WebSocket client for visit events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed a customer with a location
	custBody := []byte(`{"tenantId":"t_demo","customers":[{"externalRef":"c-demo","name":"Demo Mart","location":{"lat":24.8607,"lng":67.0011}}]}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/customers", bytes.NewReader(custBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()

	listResp, err := http.Get(base + "/v1/customers")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = listResp.Body.Close() }()
	var custList struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&custList); err != nil {
		log.Fatal(err)
	}
	if len(custList.Items) == 0 {
		log.Fatal("no customers returned")
	}
	log.Printf("Customer ID: %s", custList.Items[0].ID)

	// Connect WS and subscribe to a salesman's visit events
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/visits/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"salesmanId": "s-1"})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Wait briefly to receive acks and any events
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
