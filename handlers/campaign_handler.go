package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nexusmail/nexus-mailer/internal/service"
	"github.com/nexusmail/nexus-mailer/pkg/response"
	"github.com/nexusmail/nexus-mailer/pkg/validator"
)

type CampaignHandler struct {
	service *service.CampaignService
}

func NewCampaignHandler(service *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{service: service}
}

type CreateCampaignRequest struct {
	UserID      int64    `json:"userId" validate:"required,gt=0"`
	Name        string   `json:"name" validate:"required,max=255"`
	Subject     string   `json:"subject" validate:"required,max=255"`
	Body        string   `json:"body" validate:"required"`
	Recipients  []string `json:"recipients" validate:"required,min=1,dive,email"`
	ScheduledAt string   `json:"scheduledAt"`
}

// CreateCampaign godoc
// @Summary Create a campaign
// @Description Creates a campaign and queues one message per recipient
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param campaign body CreateCampaignRequest true "Campaign to create"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c echo.Context) error {
	var req CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	var scheduledAt time.Time
	if req.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			return response.BadRequest(c, fmt.Errorf("scheduledAt must be RFC3339, e.g. 2026-01-02T15:04:05Z"))
		}
		scheduledAt = parsed
	}

	campaign, queued, err := h.service.CreateCampaign(
		c.Request().Context(),
		req.UserID,
		req.Name, req.Subject, req.Body,
		req.Recipients,
		scheduledAt,
	)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Campaign created successfully", map[string]any{
		"campaign": campaign,
		"queued":   queued,
	})
}

// ListCampaigns godoc
// @Summary List campaigns
// @Description Lists the user's campaigns with per-status message counts
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param userId query int true "User ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c echo.Context) error {
	userID, err := strconv.ParseInt(c.QueryParam("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return response.BadRequest(c, fmt.Errorf("userId must be a positive integer"))
	}

	campaigns, err := h.service.ListCampaigns(c.Request().Context(), userID)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, campaigns)
}

// GetCampaign godoc
// @Summary Get a campaign
// @Description Retrieves a single campaign by id
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, fmt.Errorf("invalid campaign id"))
	}

	campaign, err := h.service.GetCampaign(c.Request().Context(), id)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if campaign == nil {
		return response.NotFound(c, fmt.Sprintf("no campaign found with id %d", id))
	}

	return response.Ok(c, campaign)
}

// DeleteCampaign godoc
// @Summary Delete a campaign
// @Description Deletes a campaign and all of its messages
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param id path int true "Campaign ID"
// @Success 204 "No Content"
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id} [delete]
func (h *CampaignHandler) DeleteCampaign(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, fmt.Errorf("invalid campaign id"))
	}

	if err := h.service.DeleteCampaign(c.Request().Context(), id); err != nil {
		return response.BadRequest(c, err)
	}

	return response.NoContent(c)
}
