package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"lyink/relay-service/internal/events"
	"lyink/relay-service/internal/presence"
	"lyink/relay-service/internal/service"
)

// Handler owns the live channel: it upgrades connections, binds them to the
// presence registry and dispatches decoded client events into the services.
type Handler struct {
	registry *presence.Registry
	delivery service.DeliveryService
	reads    service.ReadService
	typing   service.TypingService
	logger   *logrus.Logger
	cfg      Config
}

func NewHandler(registry *presence.Registry, delivery service.DeliveryService, reads service.ReadService, typing service.TypingService, logger *logrus.Logger, cfg Config) *Handler {
	return &Handler{
		registry: registry,
		delivery: delivery,
		reads:    reads,
		typing:   typing,
		logger:   logger,
		cfg:      cfg,
	}
}

// Handle runs for the lifetime of one websocket connection.
func (h *Handler) Handle(conn *websocket.Conn) {
	client := newClient(conn, h.cfg, h.logger)

	// Identity may arrive with the upgrade request or later via join.
	// The string "undefined" is what a client with no session serializes.
	if userID := conn.Query("userId"); userID != "" && userID != "undefined" {
		client.bindUser(userID)
		h.registry.Register(userID, client)
	} else {
		// Still let the newcomer know who is online.
		client.Send(events.OnlineUsersEvent(h.registry.Online()))
	}

	h.logger.WithFields(logrus.Fields{
		"conn_id": client.ID(),
		"user_id": client.UserID(),
	}).Info("WebSocket connected")

	go client.writePump()

	h.readLoop(client)

	// A dropped connection removes exactly this binding; the user's other
	// tabs stay registered.
	h.registry.Unregister(client.ID())
	close(client.doneCh)
	conn.Close()

	h.logger.WithFields(logrus.Fields{
		"conn_id": client.ID(),
		"user_id": client.UserID(),
	}).Info("WebSocket disconnected")
}

func (h *Handler) readLoop(client *client) {
	conn := client.conn
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("conn_id", client.ID()).Debug("WebSocket read error")
			}
			return
		}

		in, err := events.Decode(raw)
		if err != nil {
			h.logger.WithError(err).WithField("conn_id", client.ID()).Warn("Rejected client frame")
			client.Send(events.ErrorEvent("invalid event"))
			continue
		}

		h.dispatch(client, in)
	}
}

// dispatch handles one validated inbound event. Service errors never leak to
// the peer beyond a generic error event; persistence writes run on a fresh
// context so a disconnect mid-write does not abort them.
func (h *Handler) dispatch(client *client, in *events.Inbound) {
	ctx := context.Background()

	switch in.Event {
	case events.Join:
		if id := in.Join.UserID; id != "" && id != "undefined" {
			client.bindUser(id)
			h.registry.Register(id, client)
		} else {
			h.registry.BroadcastAll(events.OnlineUsersEvent(h.registry.Online()))
		}

	case events.SendMessage:
		senderID := in.Send.SenderID
		if senderID == "" {
			senderID = client.UserID()
		}
		msg, err := h.delivery.Send(ctx, senderID, in.Send.ReceiverID, in.Send.Message)
		if err != nil {
			if errors.Is(err, service.ErrEmptyMessage) || errors.Is(err, service.ErrSelfConversation) {
				return
			}
			h.logger.WithError(err).Error("Socket send failed")
			client.Send(events.ErrorEvent("failed to send message"))
			return
		}
		// Keep the receiver's sidebar badge current without waiting for a
		// fetch. Best-effort by design of PushUnreadCounts.
		h.reads.PushUnreadCounts(ctx, msg.ReceiverID)

	case events.MarkMessageAsRead:
		if err := h.reads.MarkMessageRead(ctx, in.MarkRead.MessageID); err != nil {
			if !errors.Is(err, service.ErrMessageNotFound) {
				h.logger.WithError(err).Error("Failed to mark message read")
			}
		}

	case events.Typing:
		h.typing.Typing(client.UserID(), in.Typing.ReceiverID)

	case events.StopTyping:
		h.typing.StopTyping(client.UserID(), in.Typing.ReceiverID)
	}
}

// Upgrade is the fiber middleware gating the websocket route.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
