package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crediflow/bankbridge/internal/webhooks"
)

// WebhookRoutes registers webhook endpoints.
type WebhookRoutes struct {
	events *webhooks.Handler
}

// NewWebhookRoutes constructs webhook routes.
func NewWebhookRoutes(events *webhooks.Handler) *WebhookRoutes {
	return &WebhookRoutes{events: events}
}

// RegisterRoutes registers webhook endpoints.
func (w *WebhookRoutes) RegisterRoutes(s *echo.Echo) {
	s.POST("/webhooks/events", w.handleEventWebhook)
	s.GET("/healthz", w.handleHealth)
}

func (w *WebhookRoutes) handleEventWebhook(c echo.Context) error {
	w.events.Handle(c.Response(), c.Request())
	return nil
}

func (w *WebhookRoutes) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
