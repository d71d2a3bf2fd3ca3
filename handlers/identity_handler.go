package handlers

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nexusmail/nexus-mailer/internal/domain"
	"github.com/nexusmail/nexus-mailer/internal/service"
	"github.com/nexusmail/nexus-mailer/pkg/response"
	"github.com/nexusmail/nexus-mailer/pkg/validator"
)

type IdentityHandler struct {
	service *service.IdentityService
}

func NewIdentityHandler(service *service.IdentityService) *IdentityHandler {
	return &IdentityHandler{service: service}
}

type SaveIdentityRequest struct {
	UserID    int64  `json:"userId" validate:"required,gt=0"`
	Host      string `json:"host" validate:"required,hostname_rfc1123"`
	Port      int    `json:"port" validate:"required,gt=0,lte=65535"`
	UseTLS    bool   `json:"useTls"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"fromEmail" validate:"required,email"`
	Signature string `json:"signature"`
}

// SaveIdentity godoc
// @Summary Create or replace SMTP settings
// @Description Saves the user's relay settings; each user has exactly one identity
// @Tags identities
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param identity body SaveIdentityRequest true "Relay settings"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/identities [put]
func (h *IdentityHandler) SaveIdentity(c echo.Context) error {
	var req SaveIdentityRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	identity, err := h.service.SaveIdentity(c.Request().Context(), &domain.SMTPIdentity{
		UserID:    req.UserID,
		Host:      req.Host,
		Port:      req.Port,
		UseTLS:    req.UseTLS,
		Username:  req.Username,
		Password:  req.Password,
		FromEmail: req.FromEmail,
		Signature: req.Signature,
	})
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "SMTP settings saved", identity)
}

// GetIdentity godoc
// @Summary Get SMTP settings
// @Description Retrieves the user's relay settings; the password is never returned
// @Tags identities
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Param userId query int true "User ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/identities [get]
func (h *IdentityHandler) GetIdentity(c echo.Context) error {
	userID, err := strconv.ParseInt(c.QueryParam("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return response.BadRequest(c, fmt.Errorf("userId must be a positive integer"))
	}

	identity, err := h.service.GetIdentity(c.Request().Context(), userID)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if identity == nil {
		return response.NotFound(c, fmt.Sprintf("no SMTP settings found for user %d", userID))
	}

	return response.Ok(c, identity)
}
