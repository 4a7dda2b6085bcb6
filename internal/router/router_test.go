package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/rooms"
)

type recordedDelivery struct {
	roomID            string
	event             models.Event
	exclude           int
	membersAtDelivery []int
}

// stubDeliverer records every fan-out together with the room's member set at
// delivery time, which makes broadcast-before-removal ordering observable.
type stubDeliverer struct {
	registry   *rooms.Registry
	deliveries []recordedDelivery
}

func (s *stubDeliverer) Deliver(roomID string, event models.Event, excludeUserID int) models.DeliveryOutcome {
	s.deliveries = append(s.deliveries, recordedDelivery{
		roomID:            roomID,
		event:             event,
		exclude:           excludeUserID,
		membersAtDelivery: s.registry.MembersOf(roomID),
	})
	return models.DeliveryOutcome{Delivered: len(s.registry.MembersOf(roomID))}
}

func newTestRouter() (*Router, *rooms.Registry, *stubDeliverer, *mocks.MessageRepositoryMock) {
	registry := rooms.NewRegistry()
	deliverer := &stubDeliverer{registry: registry}
	messageRepo := new(mocks.MessageRepositoryMock)
	r := New(registry, deliverer, messageRepo)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return r, registry, deliverer, messageRepo
}

func TestDirectMessageCreatesRoomAndDelivers(t *testing.T) {
	r, registry, deliverer, messageRepo := newTestRouter()
	messageRepo.On("SaveMessage", mock.Anything, 1, 2, "hello").Return(nil).Once()

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action:     models.ActionSendDirectMessage,
		ReceiverID: 2,
		Content:    "hello",
	})

	require.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "direct_1_2", result.RoomID)
	assert.Equal(t, []int{1, 2}, registry.MembersOf("direct_1_2"))

	require.Len(t, deliverer.deliveries, 1)
	d := deliverer.deliveries[0]
	assert.Equal(t, 1, d.exclude)
	assert.Equal(t, models.EventDirectMessage, d.event.Type)
	assert.Equal(t, 1, d.event.SenderID)
	assert.Equal(t, 2, d.event.ReceiverID)
	assert.Equal(t, "hello", d.event.Content)
	assert.Equal(t, "2024-05-01T15:00:00+03:00", d.event.Timestamp)

	messageRepo.AssertExpectations(t)
}

func TestDirectMessageMissingFields(t *testing.T) {
	r, registry, deliverer, _ := newTestRouter()

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action:  models.ActionSendDirectMessage,
		Content: "hello",
	})
	assert.Equal(t, models.StatusError, result.Status)

	result = r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action:     models.ActionSendDirectMessage,
		ReceiverID: 2,
	})
	assert.Equal(t, models.StatusError, result.Status)

	assert.Empty(t, deliverer.deliveries)
	roomCount, _ := registry.Counts()
	assert.Zero(t, roomCount)
}

func TestDirectMessagePersistFailureDoesNotBlockDelivery(t *testing.T) {
	r, _, deliverer, messageRepo := newTestRouter()
	messageRepo.On("SaveMessage", mock.Anything, 1, 2, "hi").Return(assert.AnError).Once()

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action:     models.ActionSendDirectMessage,
		ReceiverID: 2,
		Content:    "hi",
	})

	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Len(t, deliverer.deliveries, 1)
	messageRepo.AssertExpectations(t)
}

func TestGroupMessageRequiresMembership(t *testing.T) {
	r, registry, deliverer, _ := newTestRouter()
	roomID := registry.CreateGroupRoom([]int{2, 3})

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action:  models.ActionSendGroupMessage,
		RoomID:  roomID,
		Content: "hi",
	})

	assert.Equal(t, models.StatusError, result.Status)
	assert.Empty(t, deliverer.deliveries)
}

func TestGroupMessagePersistsWithSentinelReceiver(t *testing.T) {
	r, registry, deliverer, messageRepo := newTestRouter()
	roomID := registry.CreateGroupRoom([]int{1, 2, 3})
	messageRepo.On("SaveMessage", mock.Anything, 1, repositories.GroupReceiverID, "["+roomID+"] hi all").Return(nil).Once()

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action:  models.ActionSendGroupMessage,
		RoomID:  roomID,
		Content: "hi all",
	})

	require.Equal(t, models.StatusSuccess, result.Status)
	require.Len(t, deliverer.deliveries, 1)
	d := deliverer.deliveries[0]
	assert.Equal(t, models.EventGroupMessage, d.event.Type)
	assert.Equal(t, 1, d.exclude)
	assert.Zero(t, d.event.ReceiverID)

	messageRepo.AssertExpectations(t)
}

func TestCreateGroupIncludesCreatorAndBroadcastsToAll(t *testing.T) {
	r, registry, deliverer, _ := newTestRouter()

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action:         models.ActionCreateGroup,
		ParticipantIDs: []int{2, 3, 2},
		GroupName:      "team",
	})

	require.Equal(t, models.StatusSuccess, result.Status)
	require.NotEmpty(t, result.RoomID)
	assert.Equal(t, []int{1, 2, 3}, registry.MembersOf(result.RoomID))

	require.Len(t, deliverer.deliveries, 1)
	d := deliverer.deliveries[0]
	assert.Equal(t, models.EventGroupCreated, d.event.Type)
	assert.Equal(t, 1, d.event.CreatorID)
	assert.Equal(t, "team", d.event.GroupName)
	assert.Equal(t, []int{1, 2, 3}, d.event.Participants)
	// Unlike message events, nobody is excluded: the creator gets the
	// confirmation too.
	assert.Zero(t, d.exclude)
}

func TestCreateGroupDefaultsName(t *testing.T) {
	r, _, deliverer, _ := newTestRouter()

	result := r.Dispatch(context.Background(), 5, models.ActionFrame{
		Action:         models.ActionCreateGroup,
		ParticipantIDs: []int{6},
	})

	require.Equal(t, models.StatusSuccess, result.Status)
	require.Len(t, deliverer.deliveries, 1)
	assert.Equal(t, defaultGroupName, deliverer.deliveries[0].event.GroupName)
}

func TestCreateGroupRequiresParticipants(t *testing.T) {
	r, _, deliverer, _ := newTestRouter()

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{Action: models.ActionCreateGroup})

	assert.Equal(t, models.StatusError, result.Status)
	assert.Empty(t, deliverer.deliveries)
}

func TestJoinRoomBroadcastsExcludingJoiner(t *testing.T) {
	r, registry, deliverer, _ := newTestRouter()
	roomID := registry.CreateGroupRoom([]int{1, 2})

	result := r.Dispatch(context.Background(), 3, models.ActionFrame{
		Action: models.ActionJoinRoom,
		RoomID: roomID,
	})

	require.Equal(t, models.StatusSuccess, result.Status)
	assert.Contains(t, registry.RoomsOf(3), roomID)

	require.Len(t, deliverer.deliveries, 1)
	d := deliverer.deliveries[0]
	assert.Equal(t, models.EventUserJoined, d.event.Type)
	assert.Equal(t, 3, d.event.UserID)
	assert.Equal(t, 3, d.exclude)
}

func TestJoinUnknownRoom(t *testing.T) {
	r, _, deliverer, _ := newTestRouter()

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action: models.ActionJoinRoom,
		RoomID: "group_missing",
	})

	assert.Equal(t, models.StatusError, result.Status)
	assert.Empty(t, deliverer.deliveries)
}

func TestLeaveRoomBroadcastsBeforeRemoval(t *testing.T) {
	r, registry, deliverer, _ := newTestRouter()
	roomID := registry.CreateGroupRoom([]int{1, 2, 3})

	result := r.Dispatch(context.Background(), 2, models.ActionFrame{
		Action: models.ActionLeaveRoom,
		RoomID: roomID,
	})

	require.Equal(t, models.StatusSuccess, result.Status)
	require.Len(t, deliverer.deliveries, 1)
	d := deliverer.deliveries[0]
	assert.Equal(t, models.EventUserLeft, d.event.Type)
	assert.Equal(t, 2, d.exclude)
	// The leaver was still a member when the broadcast went out.
	assert.Equal(t, []int{1, 2, 3}, d.membersAtDelivery)

	assert.NotContains(t, registry.RoomsOf(2), roomID)
	assert.Equal(t, []int{1, 3}, registry.MembersOf(roomID))
}

func TestLastMemberLeavingDeletesRoom(t *testing.T) {
	r, registry, _, _ := newTestRouter()
	roomID := registry.CreateGroupRoom([]int{1})

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{
		Action: models.ActionLeaveRoom,
		RoomID: roomID,
	})

	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.False(t, registry.Exists(roomID))
}

func TestGetRoomsNeverBroadcasts(t *testing.T) {
	r, registry, deliverer, _ := newTestRouter()
	direct := registry.ResolveDirectRoom(1, 2)
	group := registry.CreateGroupRoom([]int{1, 3, 4})

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{Action: models.ActionGetRooms})

	require.Equal(t, models.StatusSuccess, result.Status)
	require.Len(t, result.Rooms, 2)
	assert.Empty(t, deliverer.deliveries)

	byID := map[string]models.RoomInfo{}
	for _, info := range result.Rooms {
		byID[info.RoomID] = info
	}
	assert.Equal(t, "direct", byID[direct].Type)
	assert.Equal(t, 2, byID[direct].ParticipantCount)
	assert.Equal(t, "group", byID[group].Type)
	assert.Equal(t, []int{1, 3, 4}, byID[group].Participants)
}

func TestUnsupportedAction(t *testing.T) {
	r, _, deliverer, _ := newTestRouter()

	result := r.Dispatch(context.Background(), 1, models.ActionFrame{Action: "dance"})

	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Message, "dance")
	assert.Empty(t, deliverer.deliveries)
}
