package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-bot/internal/store"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util"
)

// TicketsHandler exposes read-only ticket data for operators and
// dashboards. All mutation happens through the chat flows.
type TicketsHandler struct {
	store store.TicketStore
	loc   *time.Location
}

// NewTicketsHandler creates the handler.
func NewTicketsHandler(st store.TicketStore, loc *time.Location) *TicketsHandler {
	return &TicketsHandler{store: st, loc: loc}
}

// GetTicket handles GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("ticket id must be a number", map[string]any{
			"id": c.Params("id"),
		})
	}

	ticket, err := h.store.GetTicket(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return apperrors.MapError(err)
	}

	return c.JSON(fiber.Map{"data": ticket})
}

// GetSummary handles GET /reports/summary?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Both bounds are optional and inclusive; they are interpreted in the
// reference timezone.
func (h *TicketsHandler) GetSummary(c *fiber.Ctx) error {
	var dateRange store.DateRange

	if raw := c.Query("from"); raw != "" {
		from, err := time.ParseInLocation("2006-01-02", raw, h.loc)
		if err != nil {
			return apperrors.NewValidationError("'from' must look like YYYY-MM-DD", map[string]any{"from": raw})
		}
		dateRange.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.ParseInLocation("2006-01-02", raw, h.loc)
		if err != nil {
			return apperrors.NewValidationError("'to' must look like YYYY-MM-DD", map[string]any{"to": raw})
		}
		end := to.AddDate(0, 0, 1)
		dateRange.To = &end
	}
	if dateRange.From != nil && dateRange.To != nil && dateRange.To.Before(*dateRange.From) {
		return apperrors.NewValidationError("the end date is before the start date", nil)
	}

	summary, err := h.store.Summary(c.UserContext(), dateRange)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": summary})
}
