package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks the live connections of every user and fans note change
// events out to them.
type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	maxConnPerUser int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	done           chan struct{}
}

func NewManager(maxConnPerUser int, maxMessageSize int64, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client, 16),
		HandleMessage:  make(chan *ClientMessage),
		maxConnPerUser: maxConnPerUser,
		maxMessageSize: maxMessageSize,
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
		done:           make(chan struct{}),
	}
}

// Run serves registrations and inbound messages until ctx is done, then
// closes every connection.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)

		case <-ctx.Done():
			close(m.done)
			m.closeAll()
			return
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		log.Printf("[WebSocket] max connections reached for user %s", client.UserID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true

	log.Printf("[WebSocket] client registered: %s (user: %s, device: %s)", client.ID, client.UserID, client.DeviceID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.userIndex[client.UserID], client.ID)

		if len(m.userIndex[client.UserID]) == 0 {
			delete(m.userIndex, client.UserID)
		}

		close(client.Send)
		log.Printf("[WebSocket] client unregistered: %s", client.ID)
	}
}

// Join hands client to Run. It reports false once the manager has stopped.
func (m *Manager) Join(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

// unregister hands client to Run, or drops the request once Run has exited.
func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.userIndex = make(map[string]map[string]bool)
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		log.Printf("[WebSocket] error unmarshaling message: %v", err)
		return
	}

	switch msg.Type {
	case TypePing:
		pong, err := NewMessage(TypePong, nil)
		if err != nil {
			return
		}
		if err := m.SendToClient(clientMsg.Client.ID, pong); err != nil {
			log.Printf("[WebSocket] error sending pong: %v", err)
		}
	default:
		log.Printf("[WebSocket] unknown message type: %s", msg.Type)
	}
}

// BroadcastToUser queues message for every connection of userID except the
// ones opened by excludeDeviceID. Connections with a full send buffer are
// dropped.
func (m *Manager) BroadcastToUser(userID string, message *Message, excludeDeviceID string) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var stale []*Client

	m.clientsMutex.RLock()
	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		if client.DeviceID == excludeDeviceID {
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			log.Printf("[WebSocket] client %s send buffer full, closing connection", clientID)
			stale = append(stale, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range stale {
		m.unregister(client)
	}

	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		log.Printf("[WebSocket] client %s send buffer full", clientID)
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.userIndex[userID])
}
