package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/inquirydesk/inquiry-service/internal/api/dto"
	"github.com/inquirydesk/inquiry-service/internal/auth"
	"github.com/inquirydesk/inquiry-service/internal/directory"
	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/service"
	apperrors "github.com/inquirydesk/inquiry-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		Type:         req.TicketType,
		TargetID:     req.TargetID,
		Subject:      req.Subject,
		FirstMessage: req.FirstMessage,
	}
	if req.EntityRef != nil {
		input.Entity = &domain.EntityRef{Type: req.EntityRef.Type, ID: req.EntityRef.ID}
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(service.TicketSummary{
		Ticket:    *ticket,
		Direction: domain.DirectionSent,
	})})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	filter, page, pageSize, err := parseTicketListQuery(c)
	if err != nil {
		return err
	}
	return h.list(c, actor, filter, page, pageSize)
}

// ListSupportQueue GET /support/tickets lists support tickets awaiting
// operators.
func (h *TicketsHandler) ListSupportQueue(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	filter, page, pageSize, err := parseTicketListQuery(c)
	if err != nil {
		return err
	}
	support := domain.TicketTypeSupport
	received := domain.DirectionReceived
	filter.Type = &support
	filter.Direction = &received
	return h.list(c, actor, filter, page, pageSize)
}

func (h *TicketsHandler) list(c *fiber.Ctx, actor service.Actor, filter service.TicketListFilter, page, pageSize int) error {
	summaries, err := h.service.ListTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, ticketSummary(s))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": dto.PageMeta{Page: page, PageSize: pageSize, Count: len(items)},
	})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	thread, err := h.service.GetThread(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(thread)})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}
	msg, err := h.service.PostMessage(c.UserContext(), actor, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TicketMessageResponse{
		ID:        msg.ID,
		TicketID:  msg.TicketID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}})
}

// ResolveTicket POST /tickets/:id/resolve.
func (h *TicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Resolve(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketStatus(ticket)})
}

// DisputeTicket POST /tickets/:id/dispute.
func (h *TicketsHandler) DisputeTicket(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Dispute(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketStatus(ticket)})
}

func actorFromContext(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthenticated("authentication required")
	}
	return service.Actor{UserID: principal.UserID, Operator: principal.IsOperator()}, nil
}

func parseTicketListQuery(c *fiber.Ctx) (service.TicketListFilter, int, int, error) {
	filter := service.TicketListFilter{}
	if raw := strings.TrimSpace(c.Query("direction")); raw != "" {
		dir := domain.Direction(raw)
		if dir != domain.DirectionSent && dir != domain.DirectionReceived {
			return filter, 0, 0, apperrors.NewInvalidArgument("direction must be sent or received", map[string]any{"direction": raw})
		}
		filter.Direction = &dir
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		typ := domain.TicketType(raw)
		if !typ.Valid() {
			return filter, 0, 0, apperrors.NewInvalidArgument("unknown ticket type", map[string]any{"type": raw})
		}
		filter.Type = &typ
	}
	if raw := strings.TrimSpace(c.Query("search")); raw != "" {
		filter.SearchTerm = &raw
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, page, pageSize, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(s service.TicketSummary) dto.TicketSummary {
	t := s.Ticket
	out := dto.TicketSummary{
		ID:          t.ID,
		RequesterID: t.RequesterID,
		TargetID:    t.TargetID,
		TicketType:  t.Type,
		EntityName:  s.EntityName,
		Subject:     t.Subject,
		Status:      t.Status,
		Direction:   s.Direction,
		Counterpart: profileResponse(s.Counterpart),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ResolvedAt:  t.ResolvedAt,
	}
	if t.Entity != nil {
		out.EntityRef = &dto.EntityRefPayload{Type: t.Entity.Type, ID: t.Entity.ID}
	}
	return out
}

func ticketDetail(thread *service.Thread) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		TicketSummary: ticketSummary(thread.TicketSummary),
		Messages:      make([]dto.TicketMessageResponse, 0, len(thread.Messages)),
	}
	for _, m := range thread.Messages {
		resp.Messages = append(resp.Messages, dto.TicketMessageResponse{
			ID:            m.Message.ID,
			TicketID:      m.Message.TicketID,
			SenderID:      m.Message.SenderID,
			Sender:        profileResponse(m.Sender),
			Body:          m.Message.Body,
			VerifiedReply: m.VerifiedReply,
			CreatedAt:     m.Message.CreatedAt,
		})
	}
	return resp
}

func ticketStatus(t *domain.Ticket) dto.TicketStatusResponse {
	return dto.TicketStatusResponse{
		ID:         t.ID,
		Status:     t.Status,
		UpdatedAt:  t.UpdatedAt,
		ResolvedAt: t.ResolvedAt,
	}
}

func profileResponse(p *directory.Profile) *dto.ProfileResponse {
	if p == nil {
		return nil
	}
	return &dto.ProfileResponse{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
}
