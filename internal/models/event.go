package models

// Event types fanned out to room members.
const (
	EventDirectMessage = "direct_message"
	EventGroupMessage  = "group_message"
	EventGroupCreated  = "group_created"
	EventUserJoined    = "user_joined"
	EventUserLeft      = "user_left"
)

// Event is broadcasted through websockets. It is immutable once built and
// serialized exactly once per fan-out.
type Event struct {
	Type         string `json:"type"`
	RoomID       string `json:"room_id"`
	SenderID     int    `json:"sender_id,omitempty"`
	ReceiverID   int    `json:"receiver_id,omitempty"`
	UserID       int    `json:"user_id,omitempty"`
	CreatorID    int    `json:"creator_id,omitempty"`
	GroupName    string `json:"group_name,omitempty"`
	Participants []int  `json:"participants,omitempty"`
	Content      string `json:"content,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// DeliveryOutcome aggregates per-recipient send results for one fan-out.
type DeliveryOutcome struct {
	Delivered int
	Failed    int
	Offline   int
}
