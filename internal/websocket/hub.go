package websocket

import (
	"github.com/isdelr/todo-api/internal/models"
	"github.com/rs/zerolog/log"
)

// userMessage is a message addressed to every connection of one user.
type userMessage struct {
	userID  int64
	payload []byte
}

// disconnectRequest closes connections of userID, or those opened with token when
// token is set.
type disconnectRequest struct {
	userID int64
	token  string
}

// clientMessage is a message addressed to a single connection.
type clientMessage struct {
	client  *Client
	payload []byte
}

// Hub maintains the set of active clients and routes messages to the connections
// of the user they belong to. All map access happens on the Run goroutine.
type Hub struct {
	// Registered clients, grouped by the user they authenticated as.
	subscriptions map[int64]map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	publish chan userMessage
	direct     chan clientMessage
	disconnect chan disconnectRequest
	done       chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[int64]map[*Client]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		publish:       make(chan userMessage, 64),
		direct:        make(chan clientMessage, 64),
		disconnect:    make(chan disconnectRequest),
		done:          make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for _, subs := range h.subscriptions {
				for client := range subs {
					close(client.Send)
				}
			}
			h.subscriptions = make(map[int64]map[*Client]bool)
			return
		case client := <-h.Register:
			if h.subscriptions[client.UserID] == nil {
				h.subscriptions[client.UserID] = make(map[*Client]bool)
			}
			h.subscriptions[client.UserID][client] = true
			log.Info().Int64("user_id", client.UserID).Int("user_clients", len(h.subscriptions[client.UserID])).Msg("Client connected")
		case client := <-h.Unregister:
			if subs, ok := h.subscriptions[client.UserID]; ok && subs[client] {
				h.drop(client)
				log.Info().Int64("user_id", client.UserID).Msg("Client disconnected")
			}
		case msg := <-h.direct:
			if h.subscriptions[msg.client.UserID][msg.client] {
				h.deliver(msg.client, msg.payload)
			}
		case req := <-h.disconnect:
			h.closeSessions(req)
		case msg := <-h.publish:
			for client := range h.subscriptions[msg.userID] {
				h.deliver(client, msg.payload)
			}
		}
	}
}

// Stop terminates Run and closes every client's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// SendTo queues payload for every connection of userID.
func (h *Hub) SendTo(userID int64, payload []byte) {
	select {
	case h.publish <- userMessage{userID: userID, payload: payload}:
	case <-h.done:
	}
}

// Join registers a client unless the hub has stopped.
func (h *Hub) Join(client *Client) {
	select {
	case h.Register <- client:
	case <-h.done:
	}
}

// Leave unregisters a client unless the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// DisconnectToken closes every connection that authenticated with token. It
// returns once the hub has dropped them, so no event sent afterwards reaches them.
func (h *Hub) DisconnectToken(token string) {
	if token == "" {
		return
	}
	h.requestDisconnect(disconnectRequest{token: token})
}

// DisconnectUser closes every connection of userID.
func (h *Hub) DisconnectUser(userID int64) {
	h.requestDisconnect(disconnectRequest{userID: userID})
}

func (h *Hub) requestDisconnect(req disconnectRequest) {
	select {
	case h.disconnect <- req:
	case <-h.done:
	}
}

// reply queues payload for a single client.
func (h *Hub) reply(client *Client, payload []byte) {
	select {
	case h.direct <- clientMessage{client: client, payload: payload}:
	case <-h.done:
	}
}

// PublishEvent pushes an activity event to the owning user's connections.
func (h *Hub) PublishEvent(event models.Event) {
	h.SendTo(event.UserID, NewEventMessage(event))
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		// Slow consumer; cut it loose rather than block every other user.
		h.drop(client)
	}
}

func (h *Hub) closeSessions(req disconnectRequest) {
	for userID, subs := range h.subscriptions {
		if req.token == "" && userID != req.userID {
			continue
		}
		for client := range subs {
			if req.token != "" && client.Token != req.token {
				continue
			}
			h.drop(client)
			log.Info().Int64("user_id", client.UserID).Msg("Client disconnected: session revoked")
		}
	}
}

func (h *Hub) drop(client *Client) {
	subs := h.subscriptions[client.UserID]
	delete(subs, client)
	close(client.Send)
	if len(subs) == 0 {
		delete(h.subscriptions, client.UserID)
	}
}
