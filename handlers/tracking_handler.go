package handlers

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/nexusmail/nexus-mailer/internal/service"
	"github.com/nexusmail/nexus-mailer/pkg/logger"
	"github.com/nexusmail/nexus-mailer/pkg/response"
)

// transparentGIF is a 1x1 transparent pixel, served for every open beacon
// request regardless of whether the token resolved.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type TrackingHandler struct {
	service *service.TrackingService
}

func NewTrackingHandler(service *service.TrackingService) *TrackingHandler {
	return &TrackingHandler{service: service}
}

// TrackOpen godoc
// @Summary Open tracking beacon
// @Description Records the first open for the token and returns a 1x1 transparent GIF
// @Tags tracking
// @Produce image/gif
// @Param token path string true "Tracking token"
// @Success 200 {file} binary
// @Router /track/{token} [get]
func (h *TrackingHandler) TrackOpen(c echo.Context) error {
	token := c.Param("token")

	// Mail clients only see the pixel. Unknown tokens and storage errors
	// must not change what we serve.
	if token != "" {
		if _, err := h.service.RegisterOpen(c.Request().Context(), token); err != nil {
			logger.Errorf("failed to record open for token %s: %v", token, err)
		}
	}

	c.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	return c.Blob(http.StatusOK, "image/gif", transparentGIF)
}

// TrackClick godoc
// @Summary Click tracking redirect
// @Description Records the click for the token and redirects to the original destination
// @Tags tracking
// @Produce json
// @Param token path string true "Tracking token"
// @Param url query string true "Original destination URL"
// @Success 302
// @Failure 400 {object} response.ErrorResponse
// @Router /click/{token} [get]
func (h *TrackingHandler) TrackClick(c echo.Context) error {
	token := c.Param("token")

	dest := c.QueryParam("url")
	if dest == "" {
		return response.BadRequest(c, fmt.Errorf("missing url parameter"))
	}

	parsed, err := url.Parse(dest)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return response.BadRequest(c, fmt.Errorf("url must be an absolute http or https URL"))
	}

	// The recipient is mid-click. Recording is best effort; the redirect
	// happens no matter what.
	if token != "" {
		if _, err := h.service.RegisterClick(c.Request().Context(), token); err != nil {
			logger.Errorf("failed to record click for token %s: %v", token, err)
		}
	}

	return c.Redirect(http.StatusFound, dest)
}
