package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/nexusmail/nexus-mailer/internal/dispatch"
	"github.com/nexusmail/nexus-mailer/pkg/response"
)

type SchedulerHandler struct {
	scheduler *dispatch.Scheduler
	ctx       context.Context
}

func NewSchedulerHandler(sched *dispatch.Scheduler, ctx context.Context) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		ctx:       ctx,
	}
}

// StartScheduler godoc
// @Summary Start the dispatch scheduler
// @Description Starts the periodic batch dispatch loop
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/start [post]
func (h *SchedulerHandler) StartScheduler(c echo.Context) error {
	if h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already running", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Start(h.ctx); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler started successfully", h.scheduler.GetStatus())
}

// StopScheduler godoc
// @Summary Stop the dispatch scheduler
// @Description Stops the periodic batch dispatch loop; in-flight batches run to completion
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/stop [post]
func (h *SchedulerHandler) StopScheduler(c echo.Context) error {
	if !h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already stopped", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler stopped successfully", h.scheduler.GetStatus())
}

// GetSchedulerStatus godoc
// @Summary Get scheduler status
// @Description Returns the current status of the dispatch scheduler
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/status [get]
func (h *SchedulerHandler) GetSchedulerStatus(c echo.Context) error {
	return response.Ok(c, h.scheduler.GetStatus())
}
