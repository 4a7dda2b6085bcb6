package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-realtime/internal/middleware"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/rabbitmq"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/rooms"
)

const sessionsRoutingKey = "ws.sessions"

// Dispatcher resolves one inbound action to a result.
type Dispatcher interface {
	Dispatch(ctx context.Context, senderID int, frame models.ActionFrame) models.ActionResult
}

// SessionHandler owns one connection's lifecycle: identity handshake,
// receive loop, dispatch, and unconditional teardown.
type SessionHandler struct {
	hub        *Hub
	registry   *rooms.Registry
	users      repositories.UserRepository
	dispatcher Dispatcher
	publisher  rabbitmq.Publisher
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(hub *Hub, registry *rooms.Registry, users repositories.UserRepository, dispatcher Dispatcher, publisher rabbitmq.Publisher) *SessionHandler {
	return &SessionHandler{
		hub:        hub,
		registry:   registry,
		users:      users,
		dispatcher: dispatcher,
		publisher:  publisher,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs the session until it closes.
func (h *SessionHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := newClient(conn)

	ctx, span := otel.Tracer("chat-realtime/ws").Start(c.Request.Context(), "ws.handshake")
	userID, ok := h.handshake(ctx, cl)
	traceID := span.SpanContext().TraceID().String()
	span.End()
	if !ok {
		_ = cl.close()
		return
	}

	info := newConnInfo(c.Request, middleware.FromContext(c), traceID)
	info.UserID = userID

	h.hub.register(userID, cl)
	observability.IncWSActive()
	h.publishLifecycle(ctx, "ws_connect", info, "")

	if err := cl.writeJSON(models.HandshakeAck{
		Status:  models.StatusConnected,
		UserID:  userID,
		Message: "websocket connection established",
	}); err != nil {
		h.teardown(userID, cl, info, err.Error())
		return
	}

	log.Printf("user %d connected conn_id=%s active=%d", userID, info.ConnID, h.hub.ConnectionCount())
	h.runLoop(c.Request.Context(), userID, cl, info)
}

// handshake consumes the first frame and binds the connection to a user
// identity. On any failure an error response is sent (when possible) and the
// session goes straight to closed without registering.
func (h *SessionHandler) handshake(ctx context.Context, cl *client) (int, bool) {
	_, raw, err := cl.conn.ReadMessage()
	if err != nil {
		return 0, false
	}

	var hs models.Handshake
	if err := json.Unmarshal(raw, &hs); err != nil || hs.UserID == nil {
		_ = cl.writeJSON(models.Error("user identity required"))
		return 0, false
	}

	exists, err := h.users.Exists(ctx, *hs.UserID)
	if err != nil {
		log.Printf("identity lookup for user %d failed: %v", *hs.UserID, err)
		_ = cl.writeJSON(models.Error("identity lookup failed"))
		return 0, false
	}
	if !exists {
		_ = cl.writeJSON(models.Error("user not found"))
		return 0, false
	}
	return *hs.UserID, true
}

func (h *SessionHandler) runLoop(ctx context.Context, userID int, cl *client, info ConnInfo) {
	closeReason := ""
	defer func() {
		h.teardown(userID, cl, info, closeReason)
	}()

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame models.ActionFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			if werr := cl.writeJSON(models.Error("invalid JSON payload")); werr != nil {
				closeReason = werr.Error()
				return
			}
			continue
		}
		if frame.Action == "" {
			if werr := cl.writeJSON(models.Error("action field required")); werr != nil {
				closeReason = werr.Error()
				return
			}
			continue
		}

		result := h.dispatch(ctx, userID, frame)
		if err := cl.writeJSON(result); err != nil {
			closeReason = err.Error()
			return
		}
	}
}

// dispatch shields the receive loop: nothing escapes it uncaught, every
// action yields a result record.
func (h *SessionHandler) dispatch(ctx context.Context, userID int, frame models.ActionFrame) (result models.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("action %q for user %d panicked: %v", frame.Action, userID, r)
			result = models.Error("error while handling action")
		}
	}()
	return h.dispatcher.Dispatch(ctx, userID, frame)
}

// teardown is unconditional and idempotent. Room cleanup only runs when this
// connection was still the registered handle for the user, so the teardown
// of a replaced connection leaves the fresh session's state alone.
func (h *SessionHandler) teardown(userID int, cl *client, info ConnInfo, reason string) {
	if h.hub.unregister(userID, cl) {
		left := h.registry.RemoveUserEverywhere(userID)
		log.Printf("user %d disconnected conn_id=%s rooms_left=%d active=%d", userID, info.ConnID, len(left), h.hub.ConnectionCount())
	}
	_ = cl.close()
	observability.DecWSActive()
	h.publishLifecycle(context.Background(), "ws_disconnect", info, reason)
}

func (h *SessionHandler) publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(event)
	if h.publisher == nil {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = h.publisher.Publish(ctx, sessionsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
