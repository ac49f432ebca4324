package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/services"
	"github.com/labstack/echo/v4"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notifications *services.NotificationService
	enricher      *services.Enricher
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifications *services.NotificationService, enricher *services.Enricher) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		enricher:      enricher,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread", h.GetUnread)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// RegisterAdminRoutes registers the producer endpoint used by back-office
// tooling and other pipelines. g must already require the admin role.
func (h *NotificationHandler) RegisterAdminRoutes(g *echo.Group) {
	g.POST("/notifications", h.CreateNotification)
}

// GetNotifications returns paginated notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx := c.Request().Context()
	result, err := h.notifications.ListNotifications(ctx, currentUserID, page, limit)
	if err != nil {
		return httpError(c, err)
	}

	totalPages := int(math.Ceil(float64(result.Total) / float64(result.Limit)))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": h.enricher.EnrichNotifications(ctx, result.Notifications),
		},
		"meta": echo.Map{
			"currentPage":     result.Page,
			"totalPages":      totalPages,
			"totalItems":      result.Total,
			"itemsPerPage":    result.Limit,
			"hasNextPage":     result.Page < totalPages,
			"hasPreviousPage": result.Page > 1,
		},
	})
}

// GetUnread returns the newest unread notifications
func (h *NotificationHandler) GetUnread(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	unread, err := h.notifications.ListUnreadNotifications(ctx, currentUserID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"notifications": h.enricher.EnrichNotifications(ctx, unread)},
	})
}

// GetGroupedNotifications returns notifications grouped by time period
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	grouped, err := h.notifications.GroupedNotifications(ctx, currentUserID)
	if err != nil {
		return httpError(c, err)
	}
	unreadCount, err := h.notifications.UnreadCount(ctx, currentUserID)
	if err != nil {
		return httpError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": h.enricher.EnrichGrouped(ctx, grouped),
			"unreadCount":   unreadCount,
		},
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	count, err := h.notifications.UnreadCount(c.Request().Context(), currentUserID)
	if err != nil {
		return httpError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkAsRead marks one of the current user's notifications as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	if err := h.notifications.MarkNotificationReadFor(c.Request().Context(), currentUserID, c.Param("id")); err != nil {
		return httpError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"success": true}})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID, err := requireUser(c)
	if err != nil {
		return err
	}

	updated, err := h.notifications.MarkAllNotificationsRead(c.Request().Context(), currentUserID)
	if err != nil {
		return httpError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"updated": updated}})
}

// CreateNotification stores a notification for any user
func (h *NotificationHandler) CreateNotification(c echo.Context) error {
	var req models.CreateNotificationRequest
	if err := bindStrict(c, &req); err != nil {
		return httpError(c, err)
	}

	n, err := h.notifications.CreateNotification(c.Request().Context(), req)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": n})
}
