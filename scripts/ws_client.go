// Package main runs a demo WebSocket client for engine events.
package main

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer func() { _ = conn.Close() }()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := conn.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			fmt.Printf("%s %v\n", evt.Type, evt.Data)
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		<-done
	}
}
