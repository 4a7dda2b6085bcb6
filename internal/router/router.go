package router

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/samber/lo"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/rooms"
)

// Deliverer fans one event out to the live members of a room.
// excludeUserID 0 delivers to everyone.
type Deliverer interface {
	Deliver(roomID string, event models.Event, excludeUserID int) models.DeliveryOutcome
}

// Router resolves inbound actions: target room, sender authorization,
// event construction, persistence, fan-out.
type Router struct {
	registry  *rooms.Registry
	deliverer Deliverer
	messages  repositories.MessageRepository
	now       func() time.Time
}

// New constructs a Router.
func New(registry *rooms.Registry, deliverer Deliverer, messages repositories.MessageRepository) *Router {
	return &Router{
		registry:  registry,
		deliverer: deliverer,
		messages:  messages,
		now:       time.Now,
	}
}

// Event timestamps use a fixed UTC+3 offset, no daylight-saving shifts.
var eventZone = time.FixedZone("UTC+3", 3*60*60)

const defaultGroupName = "New Group"

// Dispatch routes one action frame and returns the uniform result record.
func (r *Router) Dispatch(ctx context.Context, senderID int, frame models.ActionFrame) models.ActionResult {
	var result models.ActionResult
	switch frame.Action {
	case models.ActionSendDirectMessage:
		result = r.handleDirectMessage(ctx, senderID, frame)
	case models.ActionSendGroupMessage:
		result = r.handleGroupMessage(ctx, senderID, frame)
	case models.ActionCreateGroup:
		result = r.handleCreateGroup(senderID, frame)
	case models.ActionJoinRoom:
		result = r.handleJoinRoom(senderID, frame)
	case models.ActionLeaveRoom:
		result = r.handleLeaveRoom(senderID, frame)
	case models.ActionGetRooms:
		result = r.handleGetRooms(senderID)
	default:
		result = models.Error(fmt.Sprintf("unsupported action: %s", frame.Action))
	}
	observability.IncAction(frame.Action, result.Status)
	return result
}

func (r *Router) handleDirectMessage(ctx context.Context, senderID int, frame models.ActionFrame) models.ActionResult {
	if frame.ReceiverID == 0 || frame.Content == "" {
		return models.Error("receiver id and content are required")
	}

	roomID := r.registry.ResolveDirectRoom(senderID, frame.ReceiverID)

	event := models.Event{
		Type:       models.EventDirectMessage,
		RoomID:     roomID,
		SenderID:   senderID,
		ReceiverID: frame.ReceiverID,
		Content:    frame.Content,
		Timestamp:  r.timestamp(),
	}

	r.persist(ctx, senderID, frame.ReceiverID, frame.Content)
	r.deliverer.Deliver(roomID, event, senderID)

	return models.Success("message sent", roomID)
}

func (r *Router) handleGroupMessage(ctx context.Context, senderID int, frame models.ActionFrame) models.ActionResult {
	if frame.RoomID == "" || frame.Content == "" {
		return models.Error("room id and content are required")
	}
	if !r.registry.IsMember(frame.RoomID, senderID) {
		return models.Error("you are not a member of this room")
	}

	event := models.Event{
		Type:      models.EventGroupMessage,
		RoomID:    frame.RoomID,
		SenderID:  senderID,
		Content:   frame.Content,
		Timestamp: r.timestamp(),
	}

	// Group messages have no single receiver; they are stored against the
	// sentinel receiver with the room id as context.
	r.persist(ctx, senderID, repositories.GroupReceiverID, fmt.Sprintf("[%s] %s", frame.RoomID, frame.Content))
	r.deliverer.Deliver(frame.RoomID, event, senderID)

	return models.Success("group message sent", frame.RoomID)
}

func (r *Router) handleCreateGroup(senderID int, frame models.ActionFrame) models.ActionResult {
	if len(frame.ParticipantIDs) == 0 {
		return models.Error("participant list is required")
	}

	name := frame.GroupName
	if name == "" {
		name = defaultGroupName
	}

	participants := lo.Uniq(append([]int{senderID}, frame.ParticipantIDs...))
	roomID := r.registry.CreateGroupRoom(participants)

	event := models.Event{
		Type:         models.EventGroupCreated,
		RoomID:       roomID,
		CreatorID:    senderID,
		GroupName:    name,
		Participants: r.registry.MembersOf(roomID),
		Timestamp:    r.timestamp(),
	}

	// The creator receives the confirmation too, unlike message events.
	r.deliverer.Deliver(roomID, event, 0)

	return models.Success("group created", roomID)
}

func (r *Router) handleJoinRoom(senderID int, frame models.ActionFrame) models.ActionResult {
	if frame.RoomID == "" || !r.registry.AddMember(frame.RoomID, senderID) {
		return models.Error("unknown room id")
	}

	event := models.Event{
		Type:      models.EventUserJoined,
		RoomID:    frame.RoomID,
		UserID:    senderID,
		Timestamp: r.timestamp(),
	}
	r.deliverer.Deliver(frame.RoomID, event, senderID)

	return models.Success("joined room", frame.RoomID)
}

func (r *Router) handleLeaveRoom(senderID int, frame models.ActionFrame) models.ActionResult {
	if frame.RoomID == "" {
		return models.Error("room id is required")
	}

	// Broadcast before removing the leaver so the remaining members still
	// see the notice; the leaver itself is excluded from it.
	event := models.Event{
		Type:      models.EventUserLeft,
		RoomID:    frame.RoomID,
		UserID:    senderID,
		Timestamp: r.timestamp(),
	}
	r.deliverer.Deliver(frame.RoomID, event, senderID)

	r.registry.RemoveMember(frame.RoomID, senderID)

	return models.Success("left room", frame.RoomID)
}

func (r *Router) handleGetRooms(senderID int) models.ActionResult {
	summaries := r.registry.Describe(senderID)

	infos := make([]models.RoomInfo, 0, len(summaries))
	for _, s := range summaries {
		infos = append(infos, models.RoomInfo{
			RoomID:           s.RoomID,
			Type:             string(s.Kind),
			ParticipantCount: len(s.Members),
			Participants:     s.Members,
		})
	}

	return models.ActionResult{Status: models.StatusSuccess, Message: "rooms listed", Rooms: infos}
}

// persist records the message; a failure is logged and counted but never
// blocks delivery.
func (r *Router) persist(ctx context.Context, senderID, receiverID int, content string) {
	if err := r.messages.SaveMessage(ctx, senderID, receiverID, content); err != nil {
		log.Printf("persist message from %d to %d failed: %v", senderID, receiverID, err)
		observability.IncPersistFailure()
	}
}

func (r *Router) timestamp() string {
	return r.now().In(eventZone).Format(time.RFC3339)
}
