package controller

import (
	"log"
	"strconv"
	"sync"

	"github.com/gofiber/websocket/v2"

	"teamgrid/config"
	"teamgrid/models"
)

// Events published on a team's channel
const (
	EventTeamCreated        = "created"
	EventTeamUpdated        = "updated"
	EventTeamDeleted        = "deleted"
	EventMemberRemoved      = "member_removed"
	EventInvitationAccepted = "invitation_accepted"
)

// TeamEvent is the wire shape of a broadcast message
type TeamEvent struct {
	Event   string      `json:"event"`
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (cl *wsClient) send(event TeamEvent) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.conn.WriteJSON(event)
}

// TeamHub fans out team events to connected clients. Delivery is
// best-effort: a failed write drops the client and is logged, never
// surfaced to the operation that triggered the event.
type TeamHub struct {
	mu       sync.RWMutex
	channels map[uint]map[*wsClient]struct{}
	logger   *log.Logger
}

func NewTeamHub(logger *log.Logger) *TeamHub {
	return &TeamHub{
		channels: make(map[uint]map[*wsClient]struct{}),
		logger:   logger,
	}
}

func (h *TeamHub) subscribe(teamID uint, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[teamID] == nil {
		h.channels[teamID] = make(map[*wsClient]struct{})
	}
	h.channels[teamID][client] = struct{}{}
}

func (h *TeamHub) unsubscribe(teamID uint, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels[teamID], client)
	if len(h.channels[teamID]) == 0 {
		delete(h.channels, teamID)
	}
}

// Broadcast publishes an event on the team's channel, excluding the
// originating session so actors don't receive their own events.
func (h *TeamHub) Broadcast(teamID uint, event string, data interface{}, exceptSession string) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.channels[teamID]))
	for client := range h.channels[teamID] {
		if client.sessionID != exceptSession {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	message := TeamEvent{
		Event:   event,
		Channel: channelName(teamID),
		Data:    data,
	}

	for _, client := range clients {
		if err := client.send(message); err != nil {
			h.logger.Printf("Failed to deliver %s event for team %d: %v", event, teamID, err)
			h.unsubscribe(teamID, client)
			client.conn.Close()
		}
	}
}

func channelName(teamID uint) string {
	return "Team." + strconv.FormatUint(uint64(teamID), 10)
}

// Handle joins the connection to its team channel after verifying the user
// belongs to the team, then blocks until the peer disconnects.
func (h *TeamHub) Handle(conn *websocket.Conn) {
	defer conn.Close()

	user, ok := conn.Locals("user").(*models.User)
	if !ok {
		return
	}
	sessionID, _ := conn.Locals("sessionID").(string)

	var team models.Team
	if err := config.DB.First(&team, conn.Params("id")).Error; err != nil {
		conn.WriteJSON(map[string]string{"error": "Team not found"})
		return
	}

	if !models.BelongsToTeam(config.DB, user, &team) {
		conn.WriteJSON(map[string]string{"error": "You don't have access to this channel"})
		return
	}

	client := &wsClient{conn: conn, sessionID: sessionID}
	h.subscribe(team.ID, client)
	defer h.unsubscribe(team.ID, client)

	// Drain the connection; clients only listen on this channel.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
