package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nexusmail/nexus-mailer/internal/domain"
	"github.com/nexusmail/nexus-mailer/internal/service"
	"github.com/nexusmail/nexus-mailer/pkg/response"
	"github.com/nexusmail/nexus-mailer/pkg/validator"
)

type MessageHandler struct {
	service *service.MessageService
}

func NewMessageHandler(service *service.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

type ScheduleMessageRequest struct {
	UserID       int64  `json:"userId" validate:"required,gt=0"`
	Recipient    string `json:"recipient" validate:"required,email"`
	Subject      string `json:"subject" validate:"required,max=255"`
	Body         string `json:"body" validate:"required"`
	DelaySeconds int64  `json:"delaySeconds" validate:"gte=0"`
}

// ScheduleMessage godoc
// @Summary Schedule a single email
// @Description Queues one rendered email for dispatch, optionally delayed by delaySeconds
// @Tags messages
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param message body ScheduleMessageRequest true "Message to schedule"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages [post]
func (h *MessageHandler) ScheduleMessage(c echo.Context) error {
	var req ScheduleMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	delay := time.Duration(req.DelaySeconds) * time.Second
	message, err := h.service.ScheduleMessage(c.Request().Context(), req.UserID, req.Recipient, req.Subject, req.Body, delay)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Message scheduled successfully", message)
}

// GetMessage godoc
// @Summary Get a message
// @Description Retrieves a single message by id, including tracking timestamps
// @Tags messages
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Message ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/{id} [get]
func (h *MessageHandler) GetMessage(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, fmt.Errorf("invalid message id"))
	}

	message, err := h.service.GetMessage(c.Request().Context(), id)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if message == nil {
		return response.NotFound(c, fmt.Sprintf("no message found with id %d", id))
	}

	return response.Ok(c, message)
}

// GetAllMessages godoc
// @Summary Get all messages
// @Description Retrieves a paginated list of messages with optional status filter
// @Tags messages
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (pending, sent, failed)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages [get]
func (h *MessageHandler) GetAllMessages(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	statusStr := c.QueryParam("status")

	var status *domain.MessageStatus
	if statusStr != "" {
		parsedStatus := domain.MessageStatus(statusStr)
		status = &parsedStatus
	}

	messages, totalCount, err := h.service.GetAllMessages(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, messages, page, pageSize, totalCount)
}

// GetStats godoc
// @Summary Get message statistics
// @Description Returns message counts by status plus open and click totals
// @Tags messages
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/stats [get]
func (h *MessageHandler) GetStats(c echo.Context) error {
	stats, err := h.service.GetStats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"pending": stats.Pending,
		"sent":    stats.Sent,
		"failed":  stats.Failed,
		"opened":  stats.Opened,
		"clicked": stats.Clicked,
		"total":   stats.Pending + stats.Sent + stats.Failed,
	})
}

// ReplayAllFailedMessages godoc
// @Summary Replay all failed messages
// @Description Resets status='pending' for all failed messages so the scheduler can resend them
// @Tags messages
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/replay [post]
func (h *MessageHandler) ReplayAllFailedMessages(c echo.Context) error {
	count, err := h.service.ReplayAllFailedMessages(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"replayed": count,
	})
}

// ReplayFailedMessage godoc
// @Summary Replay a single failed message
// @Description Resets status='pending' for a specific failed message so the scheduler can resend it
// @Tags messages
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Message ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/{id}/replay [post]
func (h *MessageHandler) ReplayFailedMessage(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, fmt.Errorf("invalid message id"))
	}

	if err := h.service.ReplayFailedMessage(c.Request().Context(), id); err != nil {
		// "No failed message found" lands here too; 400 keeps the helper surface small.
		return response.BadRequest(c, err)
	}

	return response.Ok(c, map[string]any{
		"replayed": 1,
	})
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
