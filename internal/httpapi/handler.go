package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"lyink/relay-service/internal/service"
)

// Handler is the REST face of the relay. Session verification happens
// upstream; by the time a request lands here the authenticated user id is in
// the X-User-ID header.
type Handler struct {
	delivery service.DeliveryService
	contacts service.ContactService
	logger   *logrus.Logger
}

func NewHandler(delivery service.DeliveryService, contacts service.ContactService, logger *logrus.Logger) *Handler {
	return &Handler{
		delivery: delivery,
		contacts: contacts,
		logger:   logger,
	}
}

func (h *Handler) Register(app *fiber.App) {
	api := app.Group("/api", h.requireUser)
	api.Get("/users", h.listContacts)
	api.Post("/messages/send/:id", h.sendMessage)
	api.Get("/messages/:id", h.getMessages)
	api.Put("/messages/:id", h.updateMessage)
	api.Delete("/messages/conversation/:id", h.deleteConversation)
	api.Delete("/messages/:id", h.deleteMessage)
}

func (h *Handler) requireUser(c *fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	c.Locals("userID", userID)
	return c.Next()
}

func currentUser(c *fiber.Ctx) string {
	userID, _ := c.Locals("userID").(string)
	return userID
}

type messageBody struct {
	Message string `json:"message"`
}

func (h *Handler) sendMessage(c *fiber.Ctx) error {
	var body messageBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	msg, err := h.delivery.Send(c.Context(), currentUser(c), c.Params("id"), body.Message)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *Handler) getMessages(c *fiber.Ctx) error {
	messages, err := h.delivery.GetConversation(c.Context(), currentUser(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(messages)
}

func (h *Handler) updateMessage(c *fiber.Ctx) error {
	var body messageBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	msg, err := h.delivery.UpdateMessage(c.Context(), c.Params("id"), currentUser(c), body.Message)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(msg)
}

func (h *Handler) deleteMessage(c *fiber.Ctx) error {
	if err := h.delivery.DeleteMessage(c.Context(), c.Params("id"), currentUser(c)); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"message": "Message deleted"})
}

func (h *Handler) deleteConversation(c *fiber.Ctx) error {
	if err := h.delivery.DeleteConversation(c.Context(), currentUser(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{"message": "Conversation and messages deleted"})
}

func (h *Handler) listContacts(c *fiber.Ctx) error {
	users, err := h.contacts.ListContacts(c.Context(), currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(users)
}

// fail maps the service error taxonomy onto HTTP statuses. Anything outside
// the taxonomy is an internal failure: logged with detail, answered without.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message cannot be empty"})
	case errors.Is(err, service.ErrSelfConversation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot message yourself"})
	case errors.Is(err, service.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, service.ErrMessageNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	case errors.Is(err, service.ErrConversationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("Request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
