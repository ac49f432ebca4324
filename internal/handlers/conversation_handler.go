package handlers

import (
	"net/http"
	"strconv"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// ConversationHandler handles buyer/vendor chat HTTP requests
type ConversationHandler struct {
	conversations *services.ConversationService
	sendLimiter   echo.MiddlewareFunc
}

// NewConversationHandler creates a new ConversationHandler. sendLimiter may be nil.
func NewConversationHandler(conversations *services.ConversationService, sendLimiter echo.MiddlewareFunc) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, sendLimiter: sendLimiter}
}

// RegisterConversationRoutes registers conversation routes
func (h *ConversationHandler) RegisterConversationRoutes(g *echo.Group) {
	var sendMW []echo.MiddlewareFunc
	if h.sendLimiter != nil {
		sendMW = append(sendMW, h.sendLimiter)
	}

	g.POST("/conversations", h.CreateConversation)
	g.GET("/conversations", h.ListConversations)
	g.GET("/conversations/:id/messages", h.ListMessages)
	g.POST("/conversations/:id/messages", h.SendMessage, sendMW...)
	g.PUT("/conversations/:id/read", h.MarkRead)
}

// CreateConversation opens (or returns) the conversation between the current user and a vendor
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req models.CreateConversationRequest
	if err := bindStrict(c, &req); err != nil {
		return httpError(c, err)
	}

	conv, err := h.conversations.GetOrCreateConversation(c.Request().Context(), currentUserID, req.VendorID, req.ServiceID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": conv})
}

// ListConversations returns the current user's inbox for the requested role
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	role := models.Role(c.QueryParam("role"))
	if role == "" {
		role = models.RoleBuyer
	}
	if role == models.RoleAdmin && !isAdmin(c) {
		return echo.NewHTTPError(http.StatusForbidden, errorBody("forbidden", "admin role required"))
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	result, err := h.conversations.ListConversationsForUser(c.Request().Context(), currentUserID, role, page, limit)
	if err != nil {
		return httpError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"conversations": result.Conversations,
		},
		"meta": echo.Map{
			"currentPage":  result.Page,
			"totalItems":   result.Total,
			"itemsPerPage": result.Limit,
			"hasNextPage":  int64(result.Page*result.Limit) < result.Total,
		},
	})
}

// ListMessages returns the conversation history, optionally after a message id
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	convID, err := h.authorize(c, true)
	if err != nil {
		return err
	}
	afterID, err := parseOptionalUint(c, "after")
	if err != nil {
		return httpError(c, err)
	}

	page, err := h.conversations.ListMessages(c.Request().Context(), convID, afterID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": page})
}

// SendMessage appends a message as the current user's side of the conversation
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	convID, err := parseIDParam(c, "id")
	if err != nil {
		return httpError(c, err)
	}
	var req models.SendMessageRequest
	if err := bindStrict(c, &req); err != nil {
		return httpError(c, err)
	}

	ctx := c.Request().Context()
	sender, err := h.conversations.ResolveParticipant(ctx, convID, getUserIDFromContext(c))
	if err != nil {
		return httpError(c, err)
	}

	msg, err := h.conversations.SendMessage(ctx, convID, sender, req.Content)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": msg})
}

// MarkRead marks every message the current user received in the conversation as read
func (h *ConversationHandler) MarkRead(c echo.Context) error {
	convID, err := parseIDParam(c, "id")
	if err != nil {
		return httpError(c, err)
	}

	ctx := c.Request().Context()
	reader, err := h.conversations.ResolveParticipant(ctx, convID, getUserIDFromContext(c))
	if err != nil {
		return httpError(c, err)
	}

	updated, err := h.conversations.MarkMessagesRead(ctx, convID, reader)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"updated": updated}})
}

// authorize parses :id and checks the current user takes part in the
// conversation. Admins may read any conversation when allowAdmin is set.
func (h *ConversationHandler) authorize(c echo.Context, allowAdmin bool) (uint, error) {
	convID, err := parseIDParam(c, "id")
	if err != nil {
		return 0, httpError(c, err)
	}
	if allowAdmin && isAdmin(c) {
		return convID, nil
	}
	if _, err := h.conversations.ResolveParticipant(c.Request().Context(), convID, getUserIDFromContext(c)); err != nil {
		return 0, httpError(c, err)
	}
	return convID, nil
}
