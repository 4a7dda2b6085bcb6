package models

// Action names accepted by the message router.
const (
	ActionSendDirectMessage = "send_direct_message"
	ActionSendGroupMessage  = "send_group_message"
	ActionCreateGroup       = "create_group"
	ActionJoinRoom          = "join_room"
	ActionLeaveRoom         = "leave_room"
	ActionGetRooms          = "get_rooms"
)

// Handshake is the first frame on a connection. UserID is a pointer so a
// missing field can be told apart from user id 0.
type Handshake struct {
	UserID *int `json:"user_id"`
}

// HandshakeAck acknowledges a successful identity handshake.
type HandshakeAck struct {
	Status  string `json:"status"`
	UserID  int    `json:"user_id"`
	Message string `json:"message"`
}

// ActionFrame is an inbound action with its action-specific fields.
type ActionFrame struct {
	Action         string `json:"action"`
	ReceiverID     int    `json:"receiver_id,omitempty"`
	RoomID         string `json:"room_id,omitempty"`
	Content        string `json:"content,omitempty"`
	GroupName      string `json:"group_name,omitempty"`
	ParticipantIDs []int  `json:"participant_ids,omitempty"`
}

// ActionResult is the uniform per-action response shape.
type ActionResult struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	RoomID  string     `json:"room_id,omitempty"`
	Rooms   []RoomInfo `json:"rooms,omitempty"`
}

// RoomInfo describes one room in a get_rooms response.
type RoomInfo struct {
	RoomID           string `json:"room_id"`
	Type             string `json:"type"`
	ParticipantCount int    `json:"participant_count"`
	Participants     []int  `json:"participants"`
}

const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusConnected = "connected"
)

// Success builds a success result.
func Success(message, roomID string) ActionResult {
	return ActionResult{Status: StatusSuccess, Message: message, RoomID: roomID}
}

// Error builds an error result.
func Error(message string) ActionResult {
	return ActionResult{Status: StatusError, Message: message}
}
