// Package wspub republishes the result stream to WebSocket viewers.
package wspub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/flowpool/flowpool/pkg/pipeline"
	"github.com/flowpool/flowpool/pkg/pipeline/event"
)

// Publisher is an http.Handler upgrading connections on a fixed path
// and a pipeline.Operator broadcasting every event to all of them.
//
// Results go out as the same two frames they came in on: the JSON
// metadata frame, then the binary bundle. Clients joining mid-scan get
// the retained start frame first, so they know the scan name.
type Publisher struct {
	path     string
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	start   []byte
}

var _ pipeline.Operator = &Publisher{}
var _ http.Handler = &Publisher{}

func New(path string, logger *log.Logger) *Publisher {
	return &Publisher{
		path:   path,
		logger: logger,
		upgrader: websocket.Upgrader{
			// viewers connect from other hosts on the beamline network
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[*websocket.Conn]struct{}{},
	}
}

func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.path != "" && r.URL.Path != p.path {
		http.NotFound(w, r)
		return
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Printf("viewer upgrade failed: %v", err)
		return
	}

	// registration and the catch-up start frame happen under the lock
	// so a broadcast cannot interleave with them
	p.mu.Lock()
	if p.start != nil {
		if err := conn.WriteMessage(websocket.TextMessage, p.start); err != nil {
			p.mu.Unlock()
			conn.Close()
			return
		}
	}
	p.clients[conn] = struct{}{}
	p.mu.Unlock()

	// viewers never send anything meaningful; read until they hang up
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				p.drop(conn)
				return
			}
		}
	}()
}

// Clients reports how many viewers are connected.
func (p *Publisher) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close hangs up on every viewer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.clients {
		conn.Close()
		delete(p.clients, conn)
	}
	return nil
}

func (p *Publisher) OnStart(_ context.Context, start event.Start) error {
	raw, err := json.Marshal(start)
	if err != nil {
		return err
	}

	// retaining and broadcasting under one lock, so a viewer registering
	// in between cannot get the start frame twice
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = raw
	p.send(frame{websocket.TextMessage, raw})
	return nil
}

func (p *Publisher) OnResult(_ context.Context, result pipeline.Result) error {
	meta, err := json.Marshal(result.Meta)
	if err != nil {
		return err
	}
	bundle, err := result.Bundle.Pack()
	if err != nil {
		return err
	}

	p.broadcast(
		frame{websocket.TextMessage, meta},
		frame{websocket.BinaryMessage, bundle},
	)
	return nil
}

// OnStop clears the retained start frame. Nothing goes over the wire;
// viewers learn about the next scan from its start frame.
func (p *Publisher) OnStop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = nil
	return nil
}

type frame struct {
	messageType int
	data        []byte
}

// broadcast writes the frames, in order, to every client. Clients
// whose write fails are dropped.
func (p *Publisher) broadcast(frames ...frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.send(frames...)
}

// send is broadcast with p.mu already held.
func (p *Publisher) send(frames ...frame) {
	for conn := range p.clients {
		for _, f := range frames {
			if err := conn.WriteMessage(f.messageType, f.data); err != nil {
				p.logger.Printf("dropping viewer %s: %v", conn.RemoteAddr(), err)
				conn.Close()
				delete(p.clients, conn)
				break
			}
		}
	}
}

func (p *Publisher) drop(conn *websocket.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn.Close()
	delete(p.clients, conn)
}
