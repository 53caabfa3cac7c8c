package notifiers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/daniacca/cmsim/internal/solver"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WebSocketNotifier broadcasts run events to every connected websocket
// client. It doubles as the http.Handler that accepts those clients.
type WebSocketNotifier struct {
	id         string
	mu         sync.RWMutex
	clients    map[*websocket.Conn]bool
	upgrader   websocket.Upgrader
	broadcast  chan solver.RunEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewWebSocketNotifier creates a new WebSocket notifier
func NewWebSocketNotifier(id string) *WebSocketNotifier {
	wsn := &WebSocketNotifier{
		id:         id,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan solver.RunEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	wsn.wg.Add(1)
	go wsn.run()
	return wsn
}

func (wsn *WebSocketNotifier) ID() string   { return wsn.id }
func (wsn *WebSocketNotifier) Type() string { return "websocket" }

// ClientCount returns the number of connected clients.
func (wsn *WebSocketNotifier) ClientCount() int {
	wsn.mu.RLock()
	defer wsn.mu.RUnlock()
	return len(wsn.clients)
}

// RegisterClient adds a connection to the broadcast set
func (wsn *WebSocketNotifier) RegisterClient(conn *websocket.Conn) {
	select {
	case wsn.register <- conn:
	case <-wsn.done:
		conn.Close()
	}
}

// UnregisterClient removes and closes a connection
func (wsn *WebSocketNotifier) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsn.unregister <- conn:
	case <-wsn.done:
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Messages sent by clients are discarded.
func (wsn *WebSocketNotifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsn.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wsn.RegisterClient(conn)
	defer wsn.UnregisterClient(conn)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// Notify queues the event for broadcast
func (wsn *WebSocketNotifier) Notify(ctx context.Context, event solver.RunEvent) error {
	select {
	case <-wsn.done:
		return fmt.Errorf("websocket notifier %s is closed", wsn.id)
	default:
	}
	select {
	case wsn.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wsn.done:
		return fmt.Errorf("websocket notifier %s is closed", wsn.id)
	case <-time.After(time.Second):
		return fmt.Errorf("notification queue full")
	}
}

func (wsn *WebSocketNotifier) run() {
	defer wsn.wg.Done()
	for {
		select {
		case <-wsn.done:
			return

		case conn := <-wsn.register:
			if conn == nil {
				continue
			}
			wsn.mu.Lock()
			wsn.clients[conn] = true
			wsn.mu.Unlock()

		case conn := <-wsn.unregister:
			if conn == nil {
				continue
			}
			wsn.mu.Lock()
			if _, ok := wsn.clients[conn]; ok {
				delete(wsn.clients, conn)
				conn.Close()
			}
			wsn.mu.Unlock()

		case event := <-wsn.broadcast:
			wsn.send(event)
		}
	}
}

func (wsn *WebSocketNotifier) send(event solver.RunEvent) {
	payload, err := event.JSON()
	if err != nil {
		return
	}

	wsn.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(wsn.clients))
	for conn := range wsn.clients {
		conns = append(conns, conn)
	}
	wsn.mu.RUnlock()

	var failed []*websocket.Conn
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			failed = append(failed, conn)
			conn.Close()
		}
	}
	if len(failed) > 0 {
		wsn.mu.Lock()
		for _, conn := range failed {
			delete(wsn.clients, conn)
		}
		wsn.mu.Unlock()
	}
}

// Close disconnects every client and stops the broadcaster. It is safe to
// call more than once.
func (wsn *WebSocketNotifier) Close() error {
	wsn.closeOnce.Do(func() {
		close(wsn.done)
		wsn.wg.Wait()

		wsn.mu.Lock()
		for conn := range wsn.clients {
			conn.Close()
			delete(wsn.clients, conn)
		}
		wsn.mu.Unlock()
	})
	return nil
}
