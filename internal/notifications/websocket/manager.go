package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrUserNotConnected = errors.New("user not connected")
	ErrManagerClosed    = errors.New("websocket manager closed")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Manager tracks browser connections per user and routes pushes to them
type Manager struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu    sync.RWMutex
	users map[string]int

	pumps     sync.WaitGroup
	closeOnce sync.Once
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID          string
	UserID      string
	Conn        *websocket.Conn
	Send        chan Message
	ConnectedAt time.Time
	UserAgent   string
}

type directMessage struct {
	userID  string
	message Message
	result  chan error
}

// Hub owns the connection set. Only the hub goroutine closes Send channels.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Message
	direct      chan directMessage
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	done        chan struct{}
}

// NewManager creates a new WebSocket manager. allowedOrigins of ["*"] or
// empty accepts any origin.
func NewManager(logger *zap.Logger, allowedOrigins []string) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Message, 64),
		direct:      make(chan directMessage),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	m := &Manager{
		hub:    hub,
		logger: logger,
		users:  make(map[string]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}

	go m.run()

	return m
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleConnection upgrades the request and attaches the socket to userID.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	select {
	case <-m.hub.stop:
		return nil, ErrManagerClosed
	default:
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan Message, sendBuffer),
		ConnectedAt: time.Now(),
		UserAgent:   r.Header.Get("User-Agent"),
	}

	m.pumps.Add(2)
	select {
	case m.hub.register <- connection:
	case <-m.hub.stop:
		m.pumps.Add(-2)
		conn.Close()
		return nil, ErrManagerClosed
	}

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// readPump reads client frames until the socket fails, then unregisters.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.stop:
		}
		conn.Conn.Close()
		m.pumps.Done()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	_ = conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		if msg.Type == MessageTypePing {
			_ = m.SendToUser(conn.UserID, Message{Type: MessageTypePong})
		}
	}
}

// writePump drains Send into the socket and keeps it alive with pings.
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
		m.pumps.Done()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// run is the hub loop
func (m *Manager) run() {
	h := m.hub
	defer close(h.done)

	drop := func(conn *Connection) {
		if _, ok := h.connections[conn]; !ok {
			return
		}
		delete(h.connections, conn)
		close(conn.Send)
		m.mu.Lock()
		if m.users[conn.UserID]--; m.users[conn.UserID] <= 0 {
			delete(m.users, conn.UserID)
		}
		m.mu.Unlock()
	}

	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			m.mu.Lock()
			m.users[conn.UserID]++
			m.mu.Unlock()
			m.logger.Debug("Connection registered",
				zap.String("connection_id", conn.ID),
				zap.String("user_id", conn.UserID))

		case conn := <-h.unregister:
			drop(conn)

		case dm := <-h.direct:
			delivered := 0
			for conn := range h.connections {
				if conn.UserID != dm.userID {
					continue
				}
				select {
				case conn.Send <- dm.message:
					delivered++
				default:
					m.logger.Warn("Dropping slow connection", zap.String("connection_id", conn.ID))
					drop(conn)
				}
			}
			if delivered == 0 {
				dm.result <- ErrUserNotConnected
			} else {
				dm.result <- nil
			}

		case message := <-h.broadcast:
			for conn := range h.connections {
				select {
				case conn.Send <- message:
				default:
					drop(conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				drop(conn)
			}
			return
		}
	}
}

// SendToUser delivers message to every open connection of userID.
func (m *Manager) SendToUser(userID string, message Message) error {
	message.Target = userID
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	dm := directMessage{userID: userID, message: message, result: make(chan error, 1)}
	select {
	case m.hub.direct <- dm:
	case <-m.hub.stop:
		return ErrManagerClosed
	}
	select {
	case err := <-dm.result:
		return err
	case <-m.hub.done:
		return ErrManagerClosed
	}
}

// Broadcast sends a message to all connected users
func (m *Manager) Broadcast(message Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	select {
	case <-m.hub.stop:
		return ErrManagerClosed
	default:
	}
	select {
	case m.hub.broadcast <- message:
		return nil
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// IsConnected reports whether userID has at least one open socket
func (m *Manager) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[userID] > 0
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.users {
		n += c
	}
	return n
}

// Close stops the hub, closes every connection and waits for the pumps.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.hub.stop)
		<-m.hub.done
		m.pumps.Wait()
	})
}
